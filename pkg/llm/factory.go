package llm

import (
	"fmt"

	"go.uber.org/zap"
)

// Provider names accepted by New.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

// New creates an LLMClient for the configured provider.
// The "mock" provider returns a client that always yields an empty response;
// it exists for offline runs where the resolver's heuristic-only fallback is
// the intended behavior.
func New(cfg *Config, logger *zap.Logger) (LLMClient, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewClient(cfg, logger)
	case ProviderAnthropic:
		return NewAnthropicClient(cfg, logger)
	case ProviderMock:
		return NewMockLLMClient(), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
