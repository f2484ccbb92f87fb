package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/voxmail/voxmail/pkg/errorsx"
	"github.com/voxmail/voxmail/pkg/llm"
	"github.com/voxmail/voxmail/pkg/resilience"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Adapter talks to the Gemini generateContent API. It backs both
// free-form generation (body summaries) and schema-constrained
// classification.
type Adapter struct {
	APIKey  string
	Model   string
	BaseURL string
	Client  *http.Client
}

func NewAdapter(apiKey, model string) *Adapter {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &Adapter{
		APIKey:  apiKey,
		Model:   model,
		BaseURL: defaultBaseURL,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *Adapter) Name() string { return "gemini" }

// Wire types. The Gemini API uses camelCase field names.
type request struct {
	Contents          []content  `json:"contents"`
	SystemInstruction *content   `json:"systemInstruction,omitempty"`
	GenerationConfig  *genConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text,omitempty"`
}

type genConfig struct {
	Temperature        *float64        `json:"temperature,omitempty"`
	MaxOutputTokens    *int            `json:"maxOutputTokens,omitempty"`
	ResponseMIMEType   string          `json:"responseMimeType,omitempty"`
	ResponseJSONSchema json.RawMessage `json:"responseJsonSchema,omitempty"`
}

type response struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func (a *Adapter) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	wire := request{}
	if req.System != "" {
		wire.SystemInstruction = &content{Parts: []part{{Text: req.System}}}
	}
	for _, m := range req.Messages {
		role := m.Role
		if role == "assistant" {
			role = "model"
		}
		wire.Contents = append(wire.Contents, content{Role: role, Parts: []part{{Text: m.Content}}})
	}
	cfg := &genConfig{}
	if req.Temperature > 0 {
		cfg.Temperature = &req.Temperature
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = &req.MaxTokens
	}
	wire.GenerationConfig = cfg

	out, err := a.call(ctx, wire)
	if err != nil {
		return llm.Response{}, err
	}
	return a.toResponse(out)
}

// GenerateStructured asks for JSON constrained to the given schema and
// returns the raw candidate text, which is valid JSON per the API
// contract.
func (a *Adapter) GenerateStructured(ctx context.Context, prompt string, schema json.RawMessage) (json.RawMessage, error) {
	wire := request{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: &genConfig{
			ResponseMIMEType:   "application/json",
			ResponseJSONSchema: schema,
		},
	}
	out, err := a.call(ctx, wire)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonLLMStructured)
	}
	resp, err := a.toResponse(out)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonLLMStructured)
	}
	return json.RawMessage(resp.Text), nil
}

// Summarize condenses text for voice playback.
func (a *Adapter) Summarize(ctx context.Context, text string, maxWords int) (string, error) {
	prompt := fmt.Sprintf(
		"Summarize the following text in at most %d words, keeping the key point. "+
			"Respond with only the summary.\n\n%s", maxWords, text)
	resp, err := a.Generate(ctx, llm.Request{
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonLLMGenerate)
	}
	return resp.Text, nil
}

func (a *Adapter) call(ctx context.Context, wire request) (*response, error) {
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/models/%s:generateContent", a.BaseURL, a.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", a.APIKey)

	resp, err := a.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		raw, _ := io.ReadAll(resp.Body)
		return nil, errorsx.Wrap(
			resilience.RateLimitError{Provider: "gemini", Message: string(raw)},
			errorsx.ReasonLLMRateLimit)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gemini: status %d: %s", resp.StatusCode, raw)
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *Adapter) toResponse(out *response) (llm.Response, error) {
	if len(out.Candidates) == 0 {
		return llm.Response{}, errors.New("gemini: no candidates")
	}
	cand := out.Candidates[0]
	text := ""
	for _, p := range cand.Content.Parts {
		text += p.Text
	}
	return llm.Response{
		Text:         text,
		FinishReason: cand.FinishReason,
		Usage: llm.Usage{
			PromptTokens:     out.UsageMetadata.PromptTokenCount,
			CompletionTokens: out.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      out.UsageMetadata.TotalTokenCount,
		},
	}, nil
}

func (a *Adapter) client() *http.Client {
	if a.Client != nil {
		return a.Client
	}
	return http.DefaultClient
}

var (
	_ llm.StructuredAdapter = (*Adapter)(nil)
)
