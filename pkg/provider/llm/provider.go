// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (a local Ollama instance
// by default, or any OpenAI-compatible endpoint) and exposes a single
// blocking chat completion. The dialogue engine constrains replies with a
// JSON schema, so every request may carry a [ResponseSchema] that the backend
// forwards as its native structured-output option.
//
// Implementors must be safe for concurrent use.
package llm

import (
	"context"

	"github.com/MrWong99/kaiwa/pkg/types"
)

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ResponseSchema constrains the reply to a JSON document matching Schema.
type ResponseSchema struct {
	// Name identifies the schema to backends that require one (OpenAI).
	Name string

	// Schema is a JSON Schema object in its decoded map form.
	Schema map[string]any
}

// CompletionRequest carries everything the LLM needs to produce a response.
// Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history, system prompt first when
	// present. The last message is from the user and drives the response.
	Messages []types.Message

	// Temperature controls output randomness in [0.0, 2.0]. Zero leaves the
	// provider default in place.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means provider
	// default.
	MaxTokens int

	// ResponseSchema, if set, requests structured JSON output.
	ResponseSchema *ResponseSchema
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response. It
	// returns promptly with ctx.Err() in the chain once ctx is cancelled.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
