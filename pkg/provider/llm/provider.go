// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API and exposes a uniform
// completion interface so the script generator can request structured output
// without coupling to any specific SDK.
//
// Implementors must be safe for concurrent use and must propagate context
// cancellation promptly.
package llm

import "context"

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// CompletionRequest carries everything the LLM needs to produce a response.
type CompletionRequest struct {
	// SystemPrompt is a high-priority instruction injected before the user
	// prompt. Providers without a dedicated system channel should prepend it
	// as a system-role message.
	SystemPrompt string

	// Prompt is the user-facing request text. Must be non-empty.
	Prompt string

	// Temperature controls output randomness in the range [0.0, 2.0].
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means provider
	// default.
	MaxTokens int

	// ForceJSON asks the backend to constrain decoding to valid JSON. On
	// backends with native structured output this is a hard guarantee; others
	// may only bias towards JSON, so callers must still validate the result.
	ForceJSON bool

	// ResponseSchema is an optional JSON Schema the response must conform to
	// when ForceJSON is set. Ignored by backends without schema support.
	ResponseSchema map[string]any
}

// CompletionResponse is the model's full reply.
type CompletionResponse struct {
	// Content is the full text of the reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
//
// Implementations must be safe for concurrent use from multiple goroutines.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	//
	// Returns an error if the request fails or if ctx is cancelled before the
	// completion arrives. Transport and authentication failures must be
	// returned as errors, never as empty responses.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Name returns a short identifier for logging and metrics ("openai").
	Name() string
}
