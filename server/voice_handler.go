package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/mux"

	"melodizr/core/convert"
	"melodizr/logger"
	"melodizr/model"
	"melodizr/storage"
)

// GetVoicesHandler lists the user's voice library.
func (h *APIHandler) GetVoicesHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	voices, err := h.voiceRepo.GetVoicesByUserID(userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, voices)
}

// RenameVoiceHandler updates a voice's title.
func (h *APIHandler) RenameVoiceHandler(w http.ResponseWriter, r *http.Request) {
	voice, ok := h.loadOwnedVoice(w, r)
	if !ok {
		return
	}

	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	if err := h.voiceRepo.UpdateVoiceTitle(voice.ID, req.Title); err != nil {
		writeDomainError(w, err)
		return
	}
	voice.Title = req.Title
	writeJSON(w, http.StatusOK, voice)
}

// DeleteVoiceHandler removes a voice along with its backing audio. Tracks
// converted from it are not touched. The local file is authoritative; the
// mirrored object is removed best-effort.
func (h *APIHandler) DeleteVoiceHandler(w http.ResponseWriter, r *http.Request) {
	voice, ok := h.loadOwnedVoice(w, r)
	if !ok {
		return
	}

	if err := h.voiceRepo.DeleteVoice(voice.ID); err != nil {
		writeDomainError(w, err)
		return
	}
	h.removeVoiceAudio(r, voice)

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *APIHandler) removeVoiceAudio(r *http.Request, voice *model.Voice) {
	if voice.URI == "" {
		return
	}
	if err := os.Remove(voice.URI); err != nil && !os.IsNotExist(err) {
		logger.Warn("voice file removal failed", logger.String("uri", voice.URI), logger.ErrorField(err))
	}
	objectName := "voices/" + filepath.Base(voice.URI)
	if err := storage.RemoveAudioObject(r.Context(), objectName); err != nil {
		logger.Debug("voice mirror removal failed", logger.String("object", objectName), logger.ErrorField(err))
	}
}

// UseVoiceHandler enters the recording flow's review step with a saved
// voice, so it can be re-converted without re-recording.
func (h *APIHandler) UseVoiceHandler(w http.ResponseWriter, r *http.Request) {
	voice, ok := h.loadOwnedVoice(w, r)
	if !ok {
		return
	}

	h.machine.SetUser(voice.UserID)
	if err := h.machine.StartFromVoice(voice); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.recordStatus())
}

// GenerateBeatboxHandler runs the two-sample beatbox flow: a timbre voice
// plus a rhythm voice produce a generated drum loop saved to the library.
func (h *APIHandler) GenerateBeatboxHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req struct {
		TimbreVoiceID string `json:"timbreVoiceId"`
		RhythmVoiceID string `json:"rhythmVoiceId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TimbreVoiceID == "" || req.RhythmVoiceID == "" {
		writeError(w, http.StatusBadRequest, "timbreVoiceId and rhythmVoiceId are required")
		return
	}

	timbre, err := h.voiceRepo.GetVoiceByID(req.TimbreVoiceID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	rhythm, err := h.voiceRepo.GetVoiceByID(req.RhythmVoiceID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if timbre == nil || rhythm == nil || timbre.UserID != userID || rhythm.UserID != userID {
		writeError(w, http.StatusNotFound, "Voice not found")
		return
	}

	generatedPath, err := h.gateway.GenerateBeatbox(r.Context(), timbre.URI, rhythm.URI)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	track, err := h.saveGeneratedTrack(r, userID, generatedPath, timbre.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, track)
}

func (h *APIHandler) saveGeneratedTrack(r *http.Request, userID int64, path, voiceID string) (*model.Track, error) {
	dur, err := h.prober.DurationMillis(r.Context(), path)
	if err != nil {
		logger.Warn("could not probe generated audio", logger.String("path", path), logger.ErrorField(err))
	}

	track := convert.NewGeneratedTrack(userID, path, dur, voiceID)
	if err := h.trackRepo.CreateTrack(track); err != nil {
		return nil, err
	}
	return track, nil
}

func (h *APIHandler) loadOwnedVoice(w http.ResponseWriter, r *http.Request) (*model.Voice, bool) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return nil, false
	}

	voice, err := h.voiceRepo.GetVoiceByID(mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	if voice == nil || voice.UserID != userID {
		writeError(w, http.StatusNotFound, "Voice not found")
		return nil, false
	}
	return voice, true
}
