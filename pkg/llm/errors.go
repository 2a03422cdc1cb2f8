package llm

import (
	"fmt"
	"strings"
)

// ErrorType classifies LLM failures.
type ErrorType string

const (
	ErrorTypeAuth      ErrorType = "auth"
	ErrorTypeEndpoint  ErrorType = "endpoint"
	ErrorTypeModel     ErrorType = "model"
	ErrorTypeRateLimit ErrorType = "rate_limit"
	ErrorTypeTimeout   ErrorType = "timeout"
	ErrorTypeResponse  ErrorType = "response"
	ErrorTypeUnknown   ErrorType = "unknown"
)

// Error represents a structured LLM error with classification.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int
	Model      string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	parts = append(parts, string(e.Type))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}

	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements the retry.RetryableError interface.
// This allows the retry package to check retryability without importing llm.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a new structured LLM error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// classifyError converts a raw provider error into a structured Error by
// matching common status codes and message fragments.
func classifyError(err error, model string) *Error {
	msg := err.Error()
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key"):
		return &Error{Type: ErrorTypeAuth, Message: "authentication failed", Retryable: false, Cause: err, StatusCode: 401, Model: model}
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit"):
		return &Error{Type: ErrorTypeRateLimit, Message: "rate limited", Retryable: true, Cause: err, StatusCode: 429, Model: model}
	case strings.Contains(lower, "404") || strings.Contains(lower, "model not found") || strings.Contains(lower, "does not exist"):
		return &Error{Type: ErrorTypeModel, Message: "model not found", Retryable: false, Cause: err, StatusCode: 404, Model: model}
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return &Error{Type: ErrorTypeTimeout, Message: "request timed out", Retryable: true, Cause: err, Model: model}
	case strings.Contains(lower, "500") || strings.Contains(lower, "502") || strings.Contains(lower, "503"):
		return &Error{Type: ErrorTypeEndpoint, Message: "server error", Retryable: true, Cause: err, Model: model}
	default:
		return &Error{Type: ErrorTypeUnknown, Message: "request failed", Retryable: false, Cause: err, Model: model}
	}
}
