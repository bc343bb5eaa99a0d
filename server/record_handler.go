package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"melodizr/core/control"
	"melodizr/logger"
	"melodizr/model"
)

// recordStatus is the machine snapshot returned by every record endpoint.
// KeyOptions lists the valid keyHint values for auto-tune configuration.
type recordStatusResponse struct {
	Step              control.Step            `json:"step"`
	BPM               int                     `json:"bpm"`
	Bars              int                     `json:"bars"`
	MaxDurationMillis int64                   `json:"maxDurationMillis"`
	Config            control.ModeConfig      `json:"config"`
	KeyOptions        []string                `json:"keyOptions"`
	Attempt           *model.RecordingAttempt `json:"attempt,omitempty"`
}

func (h *APIHandler) recordStatus() recordStatusResponse {
	return recordStatusResponse{
		Step:              h.machine.Step(),
		BPM:               h.machine.BPM(),
		Bars:              h.machine.Bars(),
		MaxDurationMillis: control.MaxCaptureDurationMillis(h.machine.BPM(), h.machine.Bars()),
		Config:            h.machine.Config(),
		KeyOptions:        model.KeyScaleOptions,
		Attempt:           h.machine.Attempt(),
	}
}

// RecordStatusHandler reports the recording flow state.
func (h *APIHandler) RecordStatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.recordStatus())
}

// RecordConfigureHandler updates tempo and conversion mode before or during
// review. BPM is clamped to the supported range.
func (h *APIHandler) RecordConfigureHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BPM    *int                `json:"bpm"`
		Bars   *int                `json:"bars"`
		Config *control.ModeConfig `json:"config"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	bpm, bars := h.machine.BPM(), h.machine.Bars()
	if req.BPM != nil {
		bpm = *req.BPM
	}
	if req.Bars != nil {
		bars = *req.Bars
	}
	h.machine.SetTempo(bpm, bars)
	if req.Config != nil {
		h.machine.Configure(*req.Config)
	}

	writeJSON(w, http.StatusOK, h.recordStatus())
}

// RecordStartHandler opens the microphone, runs the count-in and starts
// capturing. The response arrives once capture is rolling; count-in ticks
// and capture progress stream over /ws/record.
func (h *APIHandler) RecordStartHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	h.machine.SetUser(userID)

	if err := h.machine.StartRecording(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.recordStatus())
}

// RecordStopHandler ends the capture and moves to review.
func (h *APIHandler) RecordStopHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.machine.StopRecording(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.recordStatus())
}

// RecordUploadHandler accepts a picked audio file instead of a live
// recording. The file must fit the session's duration ceiling.
func (h *APIHandler) RecordUploadHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	h.machine.SetUser(userID)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse multipart form: %v", err))
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing 'audio' in form")
		return
	}
	defer file.Close()

	if err := os.MkdirAll(h.cfg.TmpDir, 0755); err != nil {
		writeDomainError(w, err)
		return
	}
	localPath := filepath.Join(h.cfg.TmpDir, fmt.Sprintf("upload_%d%s", time.Now().UnixMilli(), filepath.Ext(header.Filename)))
	dst, err := os.Create(localPath)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		os.Remove(localPath)
		writeDomainError(w, err)
		return
	}
	dst.Close()

	if err := h.machine.UploadFile(r.Context(), localPath, header.Filename); err != nil {
		os.Remove(localPath)
		writeDomainError(w, err)
		return
	}

	logger.Info("upload accepted into review", logger.String("file", header.Filename))
	writeJSON(w, http.StatusOK, h.recordStatus())
}

// RecordConvertHandler sends the pending attempt to the conversion gateway.
// On success the machine persists the voice and track and returns to idle;
// on failure it stays in review for a manual retry.
func (h *APIHandler) RecordConvertHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.machine.Convert(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.recordStatus())
}

// RecordRetakeHandler discards the pending attempt.
func (h *APIHandler) RecordRetakeHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.machine.Retake(); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.recordStatus())
}

// RecordCloseHandler tears the recording flow down from any step.
func (h *APIHandler) RecordCloseHandler(w http.ResponseWriter, r *http.Request) {
	h.metronome.Stop()
	h.machine.Close()
	writeJSON(w, http.StatusOK, h.recordStatus())
}

// MetronomeStartHandler starts a free-running metronome at the session tempo
// (or an explicit bpm), for practicing before committing to a take. Beats
// stream over /ws/record; restarting while running resets the downbeat.
func (h *APIHandler) MetronomeStartHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BPM *int `json:"bpm"`
	}
	// An empty body means the session tempo.
	_ = json.NewDecoder(r.Body).Decode(&req)

	bpm := h.machine.BPM()
	if req.BPM != nil {
		bpm = model.ClampBPM(*req.BPM)
	}
	h.metronome.Start(bpm)

	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "started", "bpm": bpm})
}

// MetronomeStopHandler silences the free-running metronome. Idempotent.
func (h *APIHandler) MetronomeStopHandler(w http.ResponseWriter, r *http.Request) {
	h.metronome.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}
