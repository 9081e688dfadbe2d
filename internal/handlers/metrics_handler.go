package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/queue"
	"github.com/ternarybob/vigil/internal/services/analysis"
)

// MetricsHandler reports queue depths, failed job counts, breaker state
// and accumulated LLM token usage
type MetricsHandler struct {
	logsQueue   *queue.Manager
	issuesQueue *queue.Manager
	storage     interfaces.StorageManager
	analysis    *analysis.Service
	logger      arbor.ILogger
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(
	logsQueue *queue.Manager,
	issuesQueue *queue.Manager,
	storage interfaces.StorageManager,
	analysisService *analysis.Service,
	logger arbor.ILogger,
) *MetricsHandler {
	return &MetricsHandler{
		logsQueue:   logsQueue,
		issuesQueue: issuesQueue,
		storage:     storage,
		analysis:    analysisService,
		logger:      logger,
	}
}

// MetricsHandler handles GET /api/metrics requests
func (h *MetricsHandler) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	ctx := r.Context()

	logsDepth, err := h.logsQueue.Depth(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to read logs queue depth")
	}
	issuesDepth, err := h.issuesQueue.Depth(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to read issues queue depth")
	}

	failedStorage := h.storage.FailedJobStorage()
	logsFailed, _ := failedStorage.CountFailedJobs(ctx, queue.QueueLogs)
	issuesFailed, _ := failedStorage.CountFailedJobs(ctx, queue.QueueIssues)

	usage := h.analysis.Metrics().Total()

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"queues": map[string]interface{}{
			queue.QueueLogs: map[string]int{
				"depth":  logsDepth,
				"failed": logsFailed,
			},
			queue.QueueIssues: map[string]int{
				"depth":  issuesDepth,
				"failed": issuesFailed,
			},
		},
		"llm": map[string]interface{}{
			"breaker_state":     h.analysis.BreakerState(),
			"prompt_tokens":     usage.PromptTokens,
			"completion_tokens": usage.CompletionTokens,
			"total_tokens":      usage.Total(),
		},
	})
}
