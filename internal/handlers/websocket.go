// -----------------------------------------------------------------------
// WebSocketHandler - pushes live snapshots to connected clients
// -----------------------------------------------------------------------

package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/marketsync/internal/services/status"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

const snapshotPushInterval = time.Second

// WebSocketHandler streams the live snapshot for one data kind at a fixed
// interval. Each connection is an independent poller of the aggregator, so
// a slow client never blocks ingestion.
type WebSocketHandler struct {
	statusService *status.Service
	logger        arbor.ILogger
}

// NewWebSocketHandler creates a new websocket handler
func NewWebSocketHandler(statusService *status.Service, logger arbor.ILogger) *WebSocketHandler {
	return &WebSocketHandler{
		statusService: statusService,
		logger:        logger,
	}
}

// HandleProgress upgrades the connection and pushes snapshots until the
// client disconnects.
// GET /ws/progress?kind=eod_prices
func (h *WebSocketHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	if kind == "" {
		http.Error(w, "kind query parameter is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	h.logger.Debug().Str("kind", kind).Str("remote", r.RemoteAddr).Msg("Progress stream connected")

	// Reader goroutine: drain control frames and detect disconnect
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(snapshotPushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			h.logger.Debug().Str("kind", kind).Msg("Progress stream disconnected")
			return
		case <-ticker.C:
			payload := map[string]interface{}{"state": "idle", "kind": kind}
			if snapshot, ok := h.statusService.GetLiveSnapshot(kind); ok {
				payload = map[string]interface{}{"state": "active", "snapshot": snapshot}
			}
			if err := conn.WriteJSON(payload); err != nil {
				h.logger.Debug().Err(err).Str("kind", kind).Msg("Progress stream write failed")
				return
			}
		}
	}
}
