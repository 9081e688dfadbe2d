package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/services/runs"
)

// ControlHandler exposes run lifecycle operations
type ControlHandler struct {
	runs   *runs.Service
	logger arbor.ILogger
}

// NewControlHandler creates a new control handler
func NewControlHandler(runService *runs.Service, logger arbor.ILogger) *ControlHandler {
	return &ControlHandler{
		runs:   runService,
		logger: logger,
	}
}

type clearRequest struct {
	NewRunID string `json:"new_run_id,omitempty"`
	Callback string `json:"callback,omitempty"`
}

// ClearHandler handles POST /api/control/clear requests. Clearing is
// destructive: the previous latest run's logs, issues and callback are
// deleted before the new run is registered.
func (h *ControlHandler) ClearHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req clearRequest
	if r.Body != nil {
		// An empty body is fine, clearing does not require parameters
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			WriteError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	previous, next, err := h.runs.StartNewRun(r.Context(), req.NewRunID, req.Callback)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to start new run")
		WriteError(w, http.StatusInternalServerError, "Failed to start new run")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"previous_run_id": previous,
		"new_run_id":      next,
	})
}
