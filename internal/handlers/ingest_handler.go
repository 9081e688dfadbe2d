package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/ternarybob/vigil/internal/services/intake"
)

// IngestHandler accepts log batches for asynchronous processing
type IngestHandler struct {
	intake *intake.Service
	logger arbor.ILogger
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(intakeService *intake.Service, logger arbor.ILogger) *IngestHandler {
	return &IngestHandler{
		intake: intakeService,
		logger: logger,
	}
}

// IngestHandler handles POST /api/ingest requests. The batch is
// validated synchronously and enqueued; the response never waits for
// persistence or pattern matching.
func (h *IngestHandler) IngestHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	start := time.Now()

	var batch models.LogBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to decode log batch")
		WriteJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": "Invalid request body: " + err.Error(),
			"retry": true,
		})
		return
	}

	jobID, err := h.intake.Accept(r.Context(), &batch)
	if err != nil {
		if intake.IsValidationError(err) {
			WriteJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error": err.Error(),
				"retry": true,
			})
			return
		}
		h.logger.Error().Err(err).Msg("Failed to enqueue log batch")
		WriteError(w, http.StatusInternalServerError, "Failed to accept batch")
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"message":         "Batch accepted for processing",
		"run_id":          batch.RunID,
		"source":          batch.Source,
		"job_id":          jobID,
		"processing_time": fmt.Sprintf("%dms", time.Since(start).Milliseconds()),
	})
}
