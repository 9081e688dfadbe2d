package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
	badgerstorage "github.com/ternarybob/vigil/internal/storage/badger"
)

// ErrNoLogs is returned when the resolved run has no stored logs.
// The LLM is never contacted in that case.
var ErrNoLogs = errors.New("no logs found for run")

const systemPrompt = `You are a log analysis assistant. You are given the stored logs of one debugging run and a question about them. Answer concisely and concretely, citing timestamps and sources from the logs. If the logs do not contain the answer, say so.`

// Result is the answer to one query
type Result struct {
	Question   string                `json:"question"`
	Answer     string                `json:"answer"`
	RunID      string                `json:"run_id"`
	TokenUsage interfaces.TokenUsage `json:"token_usage"`
	Fallback   bool                  `json:"fallback"`
}

// Service answers free-text questions about a run's logs. The LLM
// dependency is guarded by a circuit breaker; any failure on that path
// degrades to a deterministic statistical summary rather than an error.
type Service struct {
	storage     interfaces.StorageManager
	llm         interfaces.LLMService
	breaker     *Breaker
	metrics     *Metrics
	logger      arbor.ILogger
	tokenBudget int
}

// NewService creates the analysis service
func NewService(config *common.AnalysisConfig, storage interfaces.StorageManager, llm interfaces.LLMService, logger arbor.ILogger) *Service {
	window, _ := time.ParseDuration(config.BreakerWindow)
	cooldown, _ := time.ParseDuration(config.BreakerCooldown)

	tokenBudget := config.TokenBudget
	if tokenBudget <= 0 {
		tokenBudget = 8000
	}

	return &Service{
		storage:     storage,
		llm:         llm,
		breaker:     NewBreaker(window, config.BreakerErrorRate, config.BreakerMinRequests, cooldown),
		metrics:     NewMetrics(),
		logger:      logger,
		tokenBudget: tokenBudget,
	}
}

// Metrics returns the injected token usage accumulator
func (s *Service) Metrics() *Metrics {
	return s.metrics
}

// BreakerState returns the current circuit breaker state
func (s *Service) BreakerState() string {
	return s.breaker.State()
}

// Analyze answers a query about the resolved run's logs.
// Returns ErrNoLogs when the run cannot be resolved or holds no logs;
// every other degradation comes back as a fallback Result, never as an
// error.
func (s *Service) Analyze(ctx context.Context, query, runID string) (*Result, error) {
	resolved, err := s.storage.RunStorage().ResolveRunID(ctx, runID)
	if err != nil {
		if errors.Is(err, badgerstorage.ErrRunNotFound) {
			return nil, ErrNoLogs
		}
		return nil, fmt.Errorf("failed to resolve run: %w", err)
	}

	logs, total, err := s.storage.LogStorage().GetLogs(ctx, resolved, interfaces.LogFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to read logs: %w", err)
	}
	if total == 0 {
		return nil, ErrNoLogs
	}

	transcript := s.renderTranscript(logs)

	if s.llm == nil {
		return &Result{
			Question: query,
			Answer:   s.fallbackAnswer(logs),
			RunID:    resolved,
			Fallback: true,
		}, nil
	}

	if err := s.breaker.Allow(); err == nil {
		userMessage := fmt.Sprintf("Query: %s\n\nLogs:\n%s", query, transcript)
		answer, usage, llmErr := s.llm.Complete(ctx, systemPrompt, userMessage)
		s.breaker.Record(llmErr == nil)

		if llmErr == nil {
			s.metrics.Add(resolved, usage)
			return &Result{
				Question:   query,
				Answer:     answer,
				RunID:      resolved,
				TokenUsage: usage,
			}, nil
		}

		s.logger.Warn().
			Err(llmErr).
			Str("run_id", resolved).
			Msg("LLM analysis failed, returning fallback summary")
	} else {
		s.logger.Warn().
			Str("run_id", resolved).
			Str("breaker_state", s.breaker.State()).
			Msg("Circuit breaker open, returning fallback summary")
	}

	return &Result{
		Question: query,
		Answer:   s.fallbackAnswer(logs),
		RunID:    resolved,
		Fallback: true,
	}, nil
}

// renderTranscript renders logs as a flat timestamped transcript,
// bounded by the token budget (approximated at 4 chars per token).
// When the run exceeds the budget the most recent entries win.
func (s *Service) renderTranscript(logs []models.LogEntry) string {
	charBudget := s.tokenBudget * 4

	// Walk backwards collecting the newest lines that fit
	var lines []string
	used := 0
	for i := len(logs) - 1; i >= 0; i-- {
		line := fmt.Sprintf("[%s] [%s] [%s] %s", logs[i].Timestamp, strings.ToUpper(logs[i].Level), logs[i].Source, logs[i].Message)
		if used+len(line)+1 > charBudget && len(lines) > 0 {
			break
		}
		lines = append(lines, line)
		used += len(line) + 1
	}

	// Restore chronological order
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return strings.Join(lines, "\n")
}

// fallbackAnswer is the deterministic analysis used when the LLM path
// is unavailable: counts by level, counts by source and the most
// recent error messages.
func (s *Service) fallbackAnswer(logs []models.LogEntry) string {
	levelCounts := make(map[string]int)
	sourceCounts := make(map[string]int)
	var errorMessages []string

	for _, entry := range logs {
		levelCounts[entry.Level]++
		sourceCounts[entry.Source]++
		if entry.Level == models.LevelError {
			errorMessages = append(errorMessages, fmt.Sprintf("[%s] %s", entry.Timestamp, entry.Message))
		}
	}

	var b strings.Builder
	b.WriteString("Automated summary (language model unavailable):\n\n")

	b.WriteString(fmt.Sprintf("Total log entries: %d\n\nBy level:\n", len(logs)))
	for _, level := range []string{models.LevelError, models.LevelWarn, models.LevelInfo, models.LevelDebug} {
		if count := levelCounts[level]; count > 0 {
			b.WriteString(fmt.Sprintf("  %s: %d\n", level, count))
		}
	}

	b.WriteString("\nBy source:\n")
	sources := make([]string, 0, len(sourceCounts))
	for source := range sourceCounts {
		sources = append(sources, source)
	}
	sort.Strings(sources)
	for _, source := range sources {
		b.WriteString(fmt.Sprintf("  %s: %d\n", source, sourceCounts[source]))
	}

	if len(errorMessages) > 0 {
		b.WriteString("\nMost recent errors:\n")
		start := len(errorMessages) - 5
		if start < 0 {
			start = 0
		}
		for _, msg := range errorMessages[start:] {
			b.WriteString("  " + msg + "\n")
		}
	}

	return b.String()
}
