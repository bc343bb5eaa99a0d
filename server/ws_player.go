package server

import "net/http"

type playerEvent struct {
	Type           string `json:"type"`
	PositionMillis int64  `json:"positionMillis"`
	Playing        bool   `json:"playing"`
}

// WebSocketPlayerHandler streams the shared position counter to the client.
func (h *APIHandler) WebSocketPlayerHandler(w http.ResponseWriter, r *http.Request) {
	serveHub(h.playerHub, w, r)
}

// positionListener adapts the playback engine's position ticks onto the
// player hub.
func (h *APIHandler) positionListener() func(pos int64, playing bool) {
	return func(pos int64, playing bool) {
		h.playerHub.broadcast(playerEvent{Type: "position", PositionMillis: pos, Playing: playing})
	}
}
