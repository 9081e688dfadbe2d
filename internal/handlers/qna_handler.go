package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/services/analysis"
)

// QnAHandler answers natural-language questions about a run's logs
type QnAHandler struct {
	analysis *analysis.Service
	logger   arbor.ILogger
}

// NewQnAHandler creates a new Q&A handler
func NewQnAHandler(analysisService *analysis.Service, logger arbor.ILogger) *QnAHandler {
	return &QnAHandler{
		analysis: analysisService,
		logger:   logger,
	}
}

type qnaRequest struct {
	Query string `json:"query"`
	RunID string `json:"run_id,omitempty"`
}

// QnAHandler handles POST /api/qna requests. LLM failures are absorbed
// into the fallback answer and still return 200; only a run with no
// logs yields 404.
func (h *QnAHandler) QnAHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req qnaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Query == "" {
		WriteError(w, http.StatusBadRequest, "Query field is required")
		return
	}

	result, err := h.analysis.Analyze(r.Context(), req.Query, req.RunID)
	if err != nil {
		if errors.Is(err, analysis.ErrNoLogs) {
			WriteError(w, http.StatusNotFound, "No logs found for run")
			return
		}
		h.logger.Error().Err(err).Msg("Analysis failed")
		WriteError(w, http.StatusInternalServerError, "Analysis failed")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"question":    result.Question,
		"answer":      result.Answer,
		"run_id":      result.RunID,
		"token_usage": result.TokenUsage,
		"fallback":    result.Fallback,
	})
}
