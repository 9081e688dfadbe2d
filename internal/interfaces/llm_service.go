package interfaces

import "context"

// TokenUsage reports prompt/completion token counts for one LLM call
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Total returns the combined token count
func (u TokenUsage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

// LLMService - external language model provider. May fail on quota,
// auth or timeout; callers are expected to guard it (circuit breaker)
// rather than assume availability.
type LLMService interface {
	// Complete submits a system prompt and user message and returns
	// the generated text plus token usage.
	Complete(ctx context.Context, systemPrompt, userMessage string) (string, TokenUsage, error)

	// HealthCheck verifies the provider is reachable.
	HealthCheck(ctx context.Context) error

	Close() error
}
