package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// GetTracksHandler lists the user's track library.
func (h *APIHandler) GetTracksHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	tracks, err := h.trackRepo.GetAllTracksByUserID(userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

// DeleteTrackHandler removes a track from the library. Projects that embed
// the track keep their copy.
func (h *APIHandler) DeleteTrackHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	trackID := mux.Vars(r)["id"]
	track, err := h.trackRepo.GetTrackByID(trackID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if track == nil || track.UserID != userID {
		writeError(w, http.StatusNotFound, "Track not found")
		return
	}

	if err := h.trackRepo.DeleteTrack(trackID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
