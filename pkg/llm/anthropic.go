package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

// anthropicMaxTokens bounds proposal responses; mapping proposals are small.
const anthropicMaxTokens = 2048

// AnthropicClient provides access to the Anthropic Messages API.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
	logger *zap.Logger
}

// NewAnthropicClient creates a new Anthropic-backed LLM client.
func NewAnthropicClient(cfg *Config, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	return &AnthropicClient{
		client: anthropic.NewClient(cfg.APIKey),
		model:  cfg.Model,
		logger: logger.Named("llm-anthropic"),
	}, nil
}

// GenerateResponse generates a chat completion response with usage stats.
func (c *AnthropicClient) GenerateResponse(
	ctx context.Context,
	prompt string,
	systemMessage string,
	temperature float64,
) (*GenerateResponseResult, error) {
	temp := float32(temperature)

	c.logger.Debug("LLM request",
		zap.String("model", c.model),
		zap.Int("prompt_len", len(prompt)))

	start := time.Now()

	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		System:      systemMessage,
		Messages:    []anthropic.Message{anthropic.NewUserTextMessage(prompt)},
		MaxTokens:   anthropicMaxTokens,
		Temperature: &temp,
	})
	if err != nil {
		c.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, classifyError(err, c.model)
	}

	if len(resp.Content) == 0 {
		return nil, NewError(ErrorTypeResponse, "no content in response", true, nil)
	}

	c.logger.Info("LLM request completed",
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &GenerateResponseResult{
		Content:          resp.Content[0].GetText(),
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}, nil
}

// GetModel returns the configured model name.
func (c *AnthropicClient) GetModel() string {
	return c.model
}

// GetEndpoint returns the API endpoint identifier.
func (c *AnthropicClient) GetEndpoint() string {
	return "https://api.anthropic.com"
}
