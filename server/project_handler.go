package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"melodizr/cache"
	"melodizr/logger"
	"melodizr/model"
)

// GetProjectsHandler lists the user's projects, newest first. The Redis
// index is tried first; a miss falls back to MySQL and repopulates it.
func (h *APIHandler) GetProjectsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	summaries, err := cache.GetProjectIndex(r.Context(), userID)
	if err != nil {
		logger.Warn("project index cache read failed", logger.ErrorField(err))
	}
	if summaries == nil {
		summaries, err = h.projectRepo.GetProjectSummariesByUserID(userID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if err := cache.PutProjectIndex(r.Context(), userID, summaries); err != nil {
			logger.Warn("project index cache write failed", logger.ErrorField(err))
		}
	}

	writeJSON(w, http.StatusOK, summaries)
}

// CreateProjectHandler creates an empty project.
func (h *APIHandler) CreateProjectHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Title == "" {
		req.Title = "Untitled project"
	}

	project := &model.Project{
		ID:     uuid.NewString(),
		UserID: userID,
		Title:  req.Title,
		Tracks: []model.Track{},
	}
	if err := h.projectRepo.CreateProject(project); err != nil {
		writeDomainError(w, err)
		return
	}
	h.invalidateProjectIndex(r, userID)

	writeJSON(w, http.StatusCreated, project)
}

// GetProjectHandler returns a full project including its tracks.
func (h *APIHandler) GetProjectHandler(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadOwnedProject(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// UpdateProjectHandler renames a project and/or replaces its track list.
// Track order in the payload is preserved as display order.
func (h *APIHandler) UpdateProjectHandler(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadOwnedProject(w, r)
	if !ok {
		return
	}

	var req struct {
		Title  *string        `json:"title"`
		Tracks *[]model.Track `json:"tracks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Title != nil {
		project.Title = *req.Title
	}
	if req.Tracks != nil {
		project.Tracks = *req.Tracks
	}

	if err := h.projectRepo.SaveProject(project); err != nil {
		writeDomainError(w, err)
		return
	}
	h.invalidateProjectIndex(r, project.UserID)

	writeJSON(w, http.StatusOK, project)
}

// RenameProjectHandler changes only a project's title, without rewriting the
// track list the way a full update does.
func (h *APIHandler) RenameProjectHandler(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadOwnedProject(w, r)
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

	if err := h.projectRepo.RenameProject(project.ID, req.Title); err != nil {
		writeDomainError(w, err)
		return
	}
	h.invalidateProjectIndex(r, project.UserID)
	project.Title = req.Title

	writeJSON(w, http.StatusOK, project)
}

// DeleteProjectHandler removes a project. Track files and library entries
// survive.
func (h *APIHandler) DeleteProjectHandler(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadOwnedProject(w, r)
	if !ok {
		return
	}

	if err := h.projectRepo.DeleteProject(project.ID); err != nil {
		writeDomainError(w, err)
		return
	}
	h.invalidateProjectIndex(r, project.UserID)

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// AddTrackToProjectHandler appends a library track to a project.
func (h *APIHandler) AddTrackToProjectHandler(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadOwnedProject(w, r)
	if !ok {
		return
	}

	var req struct {
		TrackID string `json:"trackId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TrackID == "" {
		writeError(w, http.StatusBadRequest, "trackId is required")
		return
	}

	track, err := h.trackRepo.GetTrackByID(req.TrackID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if track == nil || track.UserID != project.UserID {
		writeError(w, http.StatusNotFound, "Track not found")
		return
	}

	project.Tracks = append(project.Tracks, *track)
	if err := h.projectRepo.SaveProject(project); err != nil {
		writeDomainError(w, err)
		return
	}
	h.invalidateProjectIndex(r, project.UserID)

	writeJSON(w, http.StatusOK, project)
}

// AddPresetTrackHandler adds a bundled preset sample to a project, mapped to
// the given session tempo. The preset's rate is fixed at add time.
func (h *APIHandler) AddPresetTrackHandler(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadOwnedProject(w, r)
	if !ok {
		return
	}

	var req struct {
		Title       string `json:"title"`
		URI         string `json:"uri"`
		OriginalBPM int    `json:"originalBpm"`
		TargetBPM   int    `json:"targetBpm"`
		TargetBars  int    `json:"targetBars"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.URI == "" || req.OriginalBPM <= 0 || req.TargetBPM <= 0 || req.TargetBars <= 0 {
		writeError(w, http.StatusBadRequest, "uri, originalBpm, targetBpm and targetBars are required")
		return
	}

	params := model.CalculatePresetParams(req.OriginalBPM, model.ClampBPM(req.TargetBPM), req.TargetBars)
	track := model.Track{
		ID:             uuid.NewString(),
		UserID:         project.UserID,
		Title:          req.Title,
		URI:            req.URI,
		DurationMillis: params.TotalDurationMillis,
		PlaybackSettings: &model.PlaybackSettings{
			Type:        "preset",
			OriginalBPM: req.OriginalBPM,
			TargetBPM:   model.ClampBPM(req.TargetBPM),
			TargetBars:  req.TargetBars,
			Rate:        params.Rate,
			LoopCount:   req.TargetBars,
		},
		CreatedAt: time.Now(),
	}

	project.Tracks = append(project.Tracks, track)
	if err := h.projectRepo.SaveProject(project); err != nil {
		writeDomainError(w, err)
		return
	}
	h.invalidateProjectIndex(r, project.UserID)

	writeJSON(w, http.StatusOK, project)
}

// RemoveTrackFromProjectHandler removes one track from a project.
func (h *APIHandler) RemoveTrackFromProjectHandler(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadOwnedProject(w, r)
	if !ok {
		return
	}

	trackID := mux.Vars(r)["track_id"]
	kept := project.Tracks[:0]
	removed := false
	for _, t := range project.Tracks {
		if t.ID == trackID {
			removed = true
			continue
		}
		kept = append(kept, t)
	}
	if !removed {
		writeError(w, http.StatusNotFound, "Track not in project")
		return
	}
	project.Tracks = kept

	if err := h.projectRepo.SaveProject(project); err != nil {
		writeDomainError(w, err)
		return
	}
	h.invalidateProjectIndex(r, project.UserID)

	writeJSON(w, http.StatusOK, project)
}

// MuteTrackHandler toggles a track's muted flag inside a project.
func (h *APIHandler) MuteTrackHandler(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadOwnedProject(w, r)
	if !ok {
		return
	}

	var req struct {
		IsMuted bool `json:"isMuted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	track := project.FindTrack(mux.Vars(r)["track_id"])
	if track == nil {
		writeError(w, http.StatusNotFound, "Track not in project")
		return
	}
	track.IsMuted = req.IsMuted

	if err := h.projectRepo.SaveProject(project); err != nil {
		writeDomainError(w, err)
		return
	}
	h.invalidateProjectIndex(r, project.UserID)

	writeJSON(w, http.StatusOK, project)
}

// loadOwnedProject resolves {id} and enforces ownership. On failure it has
// already written the response.
func (h *APIHandler) loadOwnedProject(w http.ResponseWriter, r *http.Request) (*model.Project, bool) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return nil, false
	}

	project, err := h.projectRepo.GetProjectByID(mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	if project == nil || project.UserID != userID {
		writeError(w, http.StatusNotFound, "Project not found")
		return nil, false
	}
	return project, true
}

func (h *APIHandler) invalidateProjectIndex(r *http.Request, userID int64) {
	if err := cache.InvalidateProjectIndex(r.Context(), userID); err != nil {
		logger.Warn("project index invalidation failed", logger.ErrorField(err))
	}
}
