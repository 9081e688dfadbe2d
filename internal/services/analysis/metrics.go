package analysis

import (
	"sync"

	"github.com/ternarybob/vigil/internal/interfaces"
)

// Metrics accumulates LLM token usage per run. Owned and injected by
// the service instance rather than living in package globals, so it
// can be read and reset independently in tests and via the metrics
// endpoint.
type Metrics struct {
	mu     sync.Mutex
	perRun map[string]interfaces.TokenUsage
	total  interfaces.TokenUsage
}

// NewMetrics creates an empty metrics accumulator
func NewMetrics() *Metrics {
	return &Metrics{
		perRun: make(map[string]interfaces.TokenUsage),
	}
}

// Add records usage from one successful completion
func (m *Metrics) Add(runID string, usage interfaces.TokenUsage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := m.perRun[runID]
	u.PromptTokens += usage.PromptTokens
	u.CompletionTokens += usage.CompletionTokens
	m.perRun[runID] = u

	m.total.PromptTokens += usage.PromptTokens
	m.total.CompletionTokens += usage.CompletionTokens
}

// Usage returns the accumulated usage for one run
func (m *Metrics) Usage(runID string) interfaces.TokenUsage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.perRun[runID]
}

// Total returns the accumulated usage across all runs
func (m *Metrics) Total() interfaces.TokenUsage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// Reset clears the counters for one run
func (m *Metrics) Reset(runID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.perRun, runID)
}
