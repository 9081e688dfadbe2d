package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/queue"
)

// FailedHandler exposes parked failed jobs for inspection
type FailedHandler struct {
	storage interfaces.StorageManager
	logger  arbor.ILogger
}

// NewFailedHandler creates a new failed jobs handler
func NewFailedHandler(storage interfaces.StorageManager, logger arbor.ILogger) *FailedHandler {
	return &FailedHandler{
		storage: storage,
		logger:  logger,
	}
}

// ListFailedHandler handles GET /api/failed requests
func (h *FailedHandler) ListFailedHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	queueName := r.URL.Query().Get("queue")
	if queueName == "" {
		queueName = queue.QueueLogs
	}
	limit := QueryInt(r, "limit", 50)

	jobs, err := h.storage.FailedJobStorage().GetFailedJobs(r.Context(), queueName, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("queue", queueName).Msg("Failed to read failed jobs")
		WriteError(w, http.StatusInternalServerError, "Failed to read failed jobs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"queue": queueName,
		"jobs":  jobs,
		"count": len(jobs),
	})
}
