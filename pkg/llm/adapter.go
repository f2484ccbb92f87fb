package llm

import (
	"context"
	"encoding/json"
)

// Message is one turn of model input.
type Message struct {
	Role    string
	Content string
}

// Request is the provider-neutral generation input.
type Request struct {
	System      string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the provider-neutral generation output.
type Response struct {
	Text         string
	Usage        Usage
	FinishReason string
}

// Adapter is a text-generation backend. Providers translate Request to
// their own wire format and back.
type Adapter interface {
	Generate(ctx context.Context, req Request) (Response, error)
	Name() string
}

// StructuredAdapter additionally produces JSON constrained to a schema.
// Intent classification and any other parse-sensitive call sites use
// this instead of free-form Generate.
type StructuredAdapter interface {
	Adapter
	GenerateStructured(ctx context.Context, prompt string, schema json.RawMessage) (json.RawMessage, error)
}
