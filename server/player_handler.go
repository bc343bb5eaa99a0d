package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"melodizr/logger"
)

// playerStatusResponse is the transport snapshot returned by player
// endpoints.
type playerStatusResponse struct {
	Playing           bool  `json:"playing"`
	PositionMillis    int64 `json:"positionMillis"`
	MaxDurationMillis int64 `json:"maxDurationMillis"`
	LoadedLayers      int   `json:"loadedLayers"`
}

func (h *APIHandler) playerStatus() playerStatusResponse {
	return playerStatusResponse{
		Playing:           h.engine.IsPlaying(),
		PositionMillis:    h.engine.Position(),
		MaxDurationMillis: h.engine.MaxDuration(),
		LoadedLayers:      h.engine.LoadedLayers(),
	}
}

// PlayerLoadHandler loads a project's non-muted tracks into the playback
// engine. Layers that fail to load are skipped, not fatal.
func (h *APIHandler) PlayerLoadHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	project, err := h.projectRepo.GetProjectByID(mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if project == nil || project.UserID != userID {
		writeError(w, http.StatusNotFound, "Project not found")
		return
	}

	if err := h.engine.Load(r.Context(), project.ActiveTracks()); err != nil {
		writeDomainError(w, err)
		return
	}

	logger.Info("project loaded into player",
		logger.String("projectId", project.ID),
		logger.Int("layers", h.engine.LoadedLayers()))
	writeJSON(w, http.StatusOK, h.playerStatus())
}

// PlayerStatusHandler reports the transport state.
func (h *APIHandler) PlayerStatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.playerStatus())
}

// PlayerPlayHandler starts or resumes all loaded layers.
func (h *APIHandler) PlayerPlayHandler(w http.ResponseWriter, r *http.Request) {
	h.engine.Play()
	writeJSON(w, http.StatusOK, h.playerStatus())
}

// PlayerPauseHandler pauses all loaded layers, keeping position.
func (h *APIHandler) PlayerPauseHandler(w http.ResponseWriter, r *http.Request) {
	h.engine.Pause()
	writeJSON(w, http.StatusOK, h.playerStatus())
}

// PlayerSeekHandler moves the shared position. Out-of-range positions are
// clamped to the timeline.
func (h *APIHandler) PlayerSeekHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PositionMillis int64 `json:"positionMillis"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	h.engine.Seek(req.PositionMillis)
	writeJSON(w, http.StatusOK, h.playerStatus())
}

// PlayerStopHandler stops playback and rewinds to zero.
func (h *APIHandler) PlayerStopHandler(w http.ResponseWriter, r *http.Request) {
	h.engine.Stop()
	writeJSON(w, http.StatusOK, h.playerStatus())
}

// PlayerUnloadHandler releases all layers.
func (h *APIHandler) PlayerUnloadHandler(w http.ResponseWriter, r *http.Request) {
	h.engine.Unload()
	writeJSON(w, http.StatusOK, h.playerStatus())
}
