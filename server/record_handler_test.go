package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"melodizr/core/control"
	"melodizr/model"
)

func newTestHandler(t *testing.T) *APIHandler {
	t.Helper()
	machine := control.NewMachine(nil, nil, nil, nil, 120, 4)
	t.Cleanup(machine.Close)
	return NewAPIHandler(nil, nil, nil, nil, machine, nil, nil, nil, nil)
}

func authedRequest(method, target string, body []byte, userID int64) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	ctx := context.WithValue(req.Context(), ctxKeyUserID, userID)
	return req.WithContext(ctx)
}

func TestRecordStatusListsKeyOptions(t *testing.T) {
	h := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.RecordStatusHandler(rec, authedRequest(http.MethodGet, "/api/record/status", nil, 7))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp recordStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, model.KeyScaleOptions, resp.KeyOptions)
	assert.Equal(t, 120, resp.BPM)
	assert.Equal(t, int64(8000), resp.MaxDurationMillis)
}

func TestMetronomeHandlersToggleDriver(t *testing.T) {
	h := newTestHandler(t)
	defer h.metronome.Stop()

	rec := httptest.NewRecorder()
	h.MetronomeStartHandler(rec, authedRequest(http.MethodPost, "/api/record/metronome/start", []byte(`{"bpm":300}`), 7))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"bpm":180`) // clamped
	assert.True(t, h.metronome.Running())

	rec = httptest.NewRecorder()
	h.MetronomeStopHandler(rec, authedRequest(http.MethodPost, "/api/record/metronome/stop", nil, 7))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, h.metronome.Running())
}

func TestMetronomeStartDefaultsToSessionTempo(t *testing.T) {
	h := newTestHandler(t)
	defer h.metronome.Stop()
	h.machine.SetTempo(90, 4)

	rec := httptest.NewRecorder()
	h.MetronomeStartHandler(rec, authedRequest(http.MethodPost, "/api/record/metronome/start", nil, 7))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"bpm":90`)
	assert.True(t, h.metronome.Running())
}

func TestRecordCloseSilencesMetronome(t *testing.T) {
	h := newTestHandler(t)

	h.metronome.Start(120)
	require.True(t, h.metronome.Running())

	rec := httptest.NewRecorder()
	h.RecordCloseHandler(rec, authedRequest(http.MethodPost, "/api/record/close", nil, 7))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, h.metronome.Running())
}
