package handlers

import (
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/interfaces"
	badgerstorage "github.com/ternarybob/vigil/internal/storage/badger"
)

// LogsHandler serves raw stored log entries
type LogsHandler struct {
	storage interfaces.StorageManager
	logger  arbor.ILogger
}

// NewLogsHandler creates a new raw logs handler
func NewLogsHandler(storage interfaces.StorageManager, logger arbor.ILogger) *LogsHandler {
	return &LogsHandler{
		storage: storage,
		logger:  logger,
	}
}

// RawLogsHandler handles GET /api/raw requests
func (h *LogsHandler) RawLogsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		runID = interfaces.RunIDLatest
	}

	filter := interfaces.LogFilter{
		Source: r.URL.Query().Get("source"),
		Filter: r.URL.Query().Get("filter"),
		Limit:  QueryInt(r, "limit", 100),
		Offset: QueryInt(r, "offset", 0),
	}

	entries, total, err := h.storage.LogStorage().GetLogs(r.Context(), runID, filter)
	if err != nil {
		if errors.Is(err, badgerstorage.ErrRunNotFound) {
			WriteError(w, http.StatusNotFound, "Run not found")
			return
		}
		h.logger.Error().Err(err).Str("run_id", runID).Msg("Failed to read logs")
		WriteError(w, http.StatusInternalServerError, "Failed to read logs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"logs":     entries,
		"total":    total,
		"limit":    filter.Limit,
		"offset":   filter.Offset,
		"has_more": filter.Offset+len(entries) < total,
	})
}
