package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/marketsync/internal/services/status"
)

// ProgressHandler serves live snapshot polls
type ProgressHandler struct {
	statusService *status.Service
	logger        arbor.ILogger
}

// NewProgressHandler creates a new progress handler
func NewProgressHandler(statusService *status.Service, logger arbor.ILogger) *ProgressHandler {
	return &ProgressHandler{
		statusService: statusService,
		logger:        logger,
	}
}

// GetSnapshotHandler returns the live snapshot for a data kind, or idle.
// Safe under arbitrary concurrent polling at sub-second intervals.
// GET /api/progress/{kind}
func (h *ProgressHandler) GetSnapshotHandler(w http.ResponseWriter, r *http.Request, kind string) {
	snapshot, ok := h.statusService.GetLiveSnapshot(kind)
	if !ok {
		WriteJSON(w, http.StatusOK, map[string]string{
			"state": "idle",
			"kind":  kind,
		})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"state":    "active",
		"snapshot": snapshot,
	})
}
