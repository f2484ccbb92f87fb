package mock

import (
	"context"
	"encoding/json"

	"github.com/voxmail/voxmail/pkg/llm"
)

type LLMConfig struct {
	ResponseText string
	Structured   json.RawMessage
	Err          error
}

// LLMAdapter returns canned responses. A zero Structured value makes
// GenerateStructured return an empty object, which classification treats
// as a miss and routes to the pattern fallback.
type LLMAdapter struct {
	cfg LLMConfig
}

func NewLLMAdapter(cfg LLMConfig) *LLMAdapter {
	if cfg.ResponseText == "" {
		cfg.ResponseText = "mock response"
	}
	return &LLMAdapter{cfg: cfg}
}

func (a *LLMAdapter) Name() string { return "mock_llm" }

func (a *LLMAdapter) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	if a.cfg.Err != nil {
		return llm.Response{}, a.cfg.Err
	}
	return llm.Response{Text: a.cfg.ResponseText, FinishReason: "stop"}, nil
}

func (a *LLMAdapter) GenerateStructured(ctx context.Context, prompt string, schema json.RawMessage) (json.RawMessage, error) {
	if a.cfg.Err != nil {
		return nil, a.cfg.Err
	}
	if a.cfg.Structured == nil {
		return json.RawMessage(`{}`), nil
	}
	return a.cfg.Structured, nil
}

// Summarize satisfies the mailbox summarizer without an API call.
func (a *LLMAdapter) Summarize(ctx context.Context, text string, maxWords int) (string, error) {
	if a.cfg.Err != nil {
		return "", a.cfg.Err
	}
	return a.cfg.ResponseText, nil
}

var _ llm.StructuredAdapter = (*LLMAdapter)(nil)
