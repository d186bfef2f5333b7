package llm

import (
	"context"
	"encoding/json"
)

// Provider defines the interface for interacting with LLM backends.
// Implementations handle protocol-specific details such as request
// formatting, authentication, and response parsing.
type Provider interface {
	// Complete sends a chat completion request and returns the full response.
	Complete(ctx context.Context, messages []Message, tools []Tool) (*Response, error)

	// Stream sends a chat completion request and returns a channel of
	// incremental deltas. The channel is closed when the response ends; a
	// mid-stream transport failure is delivered as a final Delta carrying
	// Err before the channel closes.
	Stream(ctx context.Context, messages []Message, tools []Tool) (<-chan Delta, error)

	// CompleteStructured sends a completion request whose output is
	// constrained to the given JSON schema and returns the raw object.
	CompleteStructured(ctx context.Context, messages []Message, schema Schema) (json.RawMessage, error)
}

// Config holds common configuration for LLM providers.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
}
