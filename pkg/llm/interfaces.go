// Package llm provides the LLM client layer used by the Proposal Source.
package llm

import "context"

// GenerateResponseResult holds a chat completion response with usage stats.
type GenerateResponseResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// LLMClient defines the interface for LLM operations.
// Use this interface for dependency injection to enable mocking in tests.
type LLMClient interface {
	// GenerateResponse generates a chat completion response.
	GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (*GenerateResponseResult, error)

	// GetModel returns the configured model name.
	GetModel() string

	// GetEndpoint returns the configured endpoint.
	GetEndpoint() string
}

// Ensure implementations satisfy LLMClient at compile time.
var (
	_ LLMClient = (*Client)(nil)
	_ LLMClient = (*AnthropicClient)(nil)
	_ LLMClient = (*MockLLMClient)(nil)
)
