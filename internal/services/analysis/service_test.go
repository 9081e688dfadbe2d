package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
	badgerstorage "github.com/ternarybob/vigil/internal/storage/badger"
)

// stubLLM is a scriptable LLMService for tests
type stubLLM struct {
	answer string
	usage  interfaces.TokenUsage
	err    error
	calls  int
}

func (s *stubLLM) Complete(ctx context.Context, systemPrompt, userMessage string) (string, interfaces.TokenUsage, error) {
	s.calls++
	if s.err != nil {
		return "", interfaces.TokenUsage{}, s.err
	}
	return s.answer, s.usage, nil
}

func (s *stubLLM) HealthCheck(ctx context.Context) error { return nil }
func (s *stubLLM) Close() error                          { return nil }

func newTestStorage(t *testing.T) interfaces.StorageManager {
	t.Helper()

	manager, err := badgerstorage.NewManager(common.GetLogger(), &common.BadgerConfig{Path: t.TempDir()}, time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() {
		manager.Close()
	})
	return manager
}

func testAnalysisConfig() *common.AnalysisConfig {
	return &common.AnalysisConfig{
		TokenBudget:        8000,
		BreakerWindow:      "1m",
		BreakerErrorRate:   0.5,
		BreakerMinRequests: 2,
		BreakerCooldown:    "1m",
	}
}

func seedLogs(t *testing.T, storage interfaces.StorageManager, runID string) {
	t.Helper()

	ctx := context.Background()
	_, err := storage.LogStorage().AppendLogs(ctx, runID, "api", []models.LogEntry{
		{Timestamp: "2025-11-08T10:00:01Z", Level: "info", Message: "service started"},
		{Timestamp: "2025-11-08T10:00:02Z", Level: "error", Message: "db connection lost"},
		{Timestamp: "2025-11-08T10:00:03Z", Level: "warn", Message: "retrying"},
	})
	require.NoError(t, err)
	require.NoError(t, storage.RunStorage().SetLatestRun(ctx, runID))
}

func TestAnalyze_Success(t *testing.T) {
	storage := newTestStorage(t)
	seedLogs(t, storage, "run_a")

	llm := &stubLLM{
		answer: "The database connection dropped at 10:00:02.",
		usage:  interfaces.TokenUsage{PromptTokens: 120, CompletionTokens: 30},
	}
	svc := NewService(testAnalysisConfig(), storage, llm, common.GetLogger())

	result, err := svc.Analyze(context.Background(), "what went wrong?", "latest")
	require.NoError(t, err)
	assert.Equal(t, "run_a", result.RunID)
	assert.Equal(t, llm.answer, result.Answer)
	assert.False(t, result.Fallback)
	assert.Equal(t, 150, result.TokenUsage.Total())

	// Successful calls accumulate into the injected metrics
	assert.Equal(t, 120, svc.Metrics().Usage("run_a").PromptTokens)
	assert.Equal(t, 150, svc.Metrics().Total().Total())
}

func TestAnalyze_NoLogs(t *testing.T) {
	storage := newTestStorage(t)
	llm := &stubLLM{answer: "unused"}
	svc := NewService(testAnalysisConfig(), storage, llm, common.GetLogger())

	// No latest run at all
	_, err := svc.Analyze(context.Background(), "anything?", "latest")
	assert.ErrorIs(t, err, ErrNoLogs)

	// Explicit run with zero logs
	_, err = svc.Analyze(context.Background(), "anything?", "run_empty")
	assert.ErrorIs(t, err, ErrNoLogs)

	// The LLM is never contacted for missing runs
	assert.Equal(t, 0, llm.calls)
}

// faultyRunStorage fails every run resolution with a fixed error
type faultyRunStorage struct {
	interfaces.RunStorage
	err error
}

func (f *faultyRunStorage) ResolveRunID(ctx context.Context, runID string) (string, error) {
	return "", f.err
}

// faultyStorage swaps the run storage out of a real manager
type faultyStorage struct {
	interfaces.StorageManager
	runs interfaces.RunStorage
}

func (f *faultyStorage) RunStorage() interfaces.RunStorage { return f.runs }

func TestAnalyze_StorageFailureIsNotNoLogs(t *testing.T) {
	inner := newTestStorage(t)
	diskErr := errors.New("value log corrupted")
	storage := &faultyStorage{
		StorageManager: inner,
		runs:           &faultyRunStorage{RunStorage: inner.RunStorage(), err: diskErr},
	}

	llm := &stubLLM{answer: "unused"}
	svc := NewService(testAnalysisConfig(), storage, llm, common.GetLogger())

	_, err := svc.Analyze(context.Background(), "anything?", "latest")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoLogs)
	assert.ErrorIs(t, err, diskErr)
	assert.Equal(t, 0, llm.calls)
}

func TestAnalyze_FallbackOnLLMFailure(t *testing.T) {
	storage := newTestStorage(t)
	seedLogs(t, storage, "run_a")

	llm := &stubLLM{err: errors.New("quota exceeded")}
	svc := NewService(testAnalysisConfig(), storage, llm, common.GetLogger())

	result, err := svc.Analyze(context.Background(), "what went wrong?", "run_a")
	require.NoError(t, err, "LLM failures must not surface as errors")
	assert.True(t, result.Fallback)
	assert.Contains(t, result.Answer, "Total log entries: 3")
	assert.Contains(t, result.Answer, "error: 1")
	assert.Contains(t, result.Answer, "api: 3")
	assert.Contains(t, result.Answer, "db connection lost")
}

func TestAnalyze_BreakerFailsFast(t *testing.T) {
	storage := newTestStorage(t)
	seedLogs(t, storage, "run_a")

	llm := &stubLLM{err: errors.New("provider down")}
	svc := NewService(testAnalysisConfig(), storage, llm, common.GetLogger())

	// Two failures trip the breaker (minRequests=2, rate 1.0)
	for i := 0; i < 2; i++ {
		result, err := svc.Analyze(context.Background(), "q", "run_a")
		require.NoError(t, err)
		assert.True(t, result.Fallback)
	}
	assert.Equal(t, StateOpen, svc.BreakerState())
	callsBefore := llm.calls

	// Open breaker: the provider is no longer contacted but callers
	// still get a fallback answer
	result, err := svc.Analyze(context.Background(), "q", "run_a")
	require.NoError(t, err)
	assert.True(t, result.Fallback)
	assert.Equal(t, callsBefore, llm.calls)
}

func TestAnalyze_FallbackCapsErrorMessages(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	var entries []models.LogEntry
	for i := 0; i < 8; i++ {
		entries = append(entries, models.LogEntry{
			Timestamp: time.Date(2025, 11, 8, 10, 0, i, 0, time.UTC).Format(time.RFC3339),
			Level:     "error",
			Message:   "boom " + string(rune('a'+i)),
		})
	}
	_, err := storage.LogStorage().AppendLogs(ctx, "run_a", "api", entries)
	require.NoError(t, err)

	llm := &stubLLM{err: errors.New("down")}
	svc := NewService(testAnalysisConfig(), storage, llm, common.GetLogger())

	result, err := svc.Analyze(ctx, "q", "run_a")
	require.NoError(t, err)

	// Only the 5 most recent error messages are listed
	assert.NotContains(t, result.Answer, "boom a")
	assert.NotContains(t, result.Answer, "boom c")
	assert.Contains(t, result.Answer, "boom d")
	assert.Contains(t, result.Answer, "boom h")
}
