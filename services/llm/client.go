package llm

import (
	"context"
	"fmt"

	"github.com/AleutianAI/CoherenceKernel/services/kernel/datatypes"
)

// GenerationParams carries the optional sampling knobs passed through to
// whichever provider serves the call. Nil fields mean provider defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// Completion is the provider-neutral result of one chat call.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// TotalTokens returns input plus output token count.
func (c *Completion) TotalTokens() int {
	return c.InputTokens + c.OutputTokens
}

// Client defines the standard interface for any LLM backend.
type Client interface {
	// Chat sends messages to the named model and returns the completion.
	// Provider-level HTTP failures surface as *APIError so callers can
	// classify them.
	Chat(ctx context.Context, model string, messages []datatypes.Message, params GenerationParams) (*Completion, error)

	// Provider returns the provider key used in candidate refs,
	// e.g. "anthropic" or "ollama".
	Provider() string
}

// APIError is a non-2xx provider response.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// IsClientError reports a 4xx status.
func (e *APIError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// IsServerError reports a 5xx status.
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500
}
