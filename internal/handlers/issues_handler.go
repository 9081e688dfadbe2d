package handlers

import (
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/interfaces"
	badgerstorage "github.com/ternarybob/vigil/internal/storage/badger"
)

// IssuesHandler serves detected issues
type IssuesHandler struct {
	storage interfaces.StorageManager
	logger  arbor.ILogger
}

// NewIssuesHandler creates a new issues handler
func NewIssuesHandler(storage interfaces.StorageManager, logger arbor.ILogger) *IssuesHandler {
	return &IssuesHandler{
		storage: storage,
		logger:  logger,
	}
}

// ListIssuesHandler handles GET /api/issues requests. Issues are
// returned sorted by count descending, then last-seen descending.
func (h *IssuesHandler) ListIssuesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		runID = interfaces.RunIDLatest
	}

	filter := interfaces.IssueFilter{
		Source: r.URL.Query().Get("source"),
		Level:  r.URL.Query().Get("level"),
		Limit:  QueryInt(r, "limit", 100),
		Offset: QueryInt(r, "offset", 0),
	}

	issues, total, err := h.storage.IssueStorage().GetIssues(r.Context(), runID, filter)
	if err != nil {
		if errors.Is(err, badgerstorage.ErrRunNotFound) {
			WriteError(w, http.StatusNotFound, "Run not found")
			return
		}
		h.logger.Error().Err(err).Str("run_id", runID).Msg("Failed to read issues")
		WriteError(w, http.StatusInternalServerError, "Failed to read issues")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"issues":   issues,
		"total":    total,
		"limit":    filter.Limit,
		"offset":   filter.Offset,
		"has_more": filter.Offset+len(issues) < total,
	})
}
