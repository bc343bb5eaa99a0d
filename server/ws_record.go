package server

import (
	"net/http"

	"melodizr/core/capture"
	"melodizr/core/control"
	"melodizr/model"
)

// Record flow event stream. Every connected client sees the same machine:
// step changes, count-in ticks, capture progress and conversion completions.

type recordEvent struct {
	Type      string       `json:"type"`
	Step      control.Step `json:"step,omitempty"`
	Remaining int          `json:"remaining,omitempty"`
	Elapsed   int64        `json:"elapsedMillis,omitempty"`
	AutoStop  bool         `json:"autoStopped,omitempty"`
	Voice     *model.Voice `json:"voice,omitempty"`
	Track     *model.Track `json:"track,omitempty"`
}

// beatEvent is a standalone metronome tick. Cycle runs 0..3; the downbeat is
// flagged strong.
type beatEvent struct {
	Type   string `json:"type"`
	Cycle  int    `json:"cycle"`
	Strong bool   `json:"strong"`
}

// WebSocketRecordHandler streams recording flow events to the client.
func (h *APIHandler) WebSocketRecordHandler(w http.ResponseWriter, r *http.Request) {
	serveHub(h.recordHub, w, r)
}

// machineEvents adapts the control machine's callbacks onto the record hub.
func (h *APIHandler) machineEvents() control.Events {
	return control.Events{
		OnStep: func(step control.Step) {
			h.recordHub.broadcast(recordEvent{Type: "step", Step: step})
		},
		OnCountIn: func(remaining int) {
			h.recordHub.broadcast(recordEvent{Type: "countIn", Remaining: remaining})
		},
		OnProgress: func(p capture.Progress) {
			h.recordHub.broadcast(recordEvent{Type: "progress", Elapsed: p.ElapsedMillis, AutoStop: p.AutoStopped})
		},
		OnComplete: func(voice *model.Voice, track *model.Track) {
			h.recordHub.broadcast(recordEvent{Type: "complete", Voice: voice, Track: track})
		},
	}
}
