package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxmail/voxmail/pkg/llm"
	"github.com/voxmail/voxmail/pkg/resilience"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*Adapter, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	a := NewAdapter("test-key", "gemini-2.0-flash")
	a.BaseURL = srv.URL
	a.Client = srv.Client()
	return a, srv
}

func TestGenerateMapsRolesAndUsage(t *testing.T) {
	var got request
	a, srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content":      map[string]any{"parts": []map[string]any{{"text": "hi there"}}},
				"finishReason": "STOP",
			}},
			"usageMetadata": map[string]any{"promptTokenCount": 3, "candidatesTokenCount": 2, "totalTokenCount": 5},
		})
	})
	defer srv.Close()

	resp, err := a.Generate(context.Background(), llm.Request{
		System: "be brief",
		Messages: []llm.Message{
			{Role: "user", Content: "hello"},
			{Role: "assistant", Content: "yes?"},
		},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Text != "hi there" {
		t.Fatalf("text = %q", resp.Text)
	}
	if resp.Usage.TotalTokens != 5 {
		t.Fatalf("total tokens = %d", resp.Usage.TotalTokens)
	}
	if got.SystemInstruction == nil || got.SystemInstruction.Parts[0].Text != "be brief" {
		t.Fatalf("system instruction not forwarded: %+v", got.SystemInstruction)
	}
	if got.Contents[1].Role != "model" {
		t.Fatalf("assistant role not mapped to model: %q", got.Contents[1].Role)
	}
}

func TestGenerateStructuredSetsSchema(t *testing.T) {
	var got request
	a, srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{"parts": []map[string]any{{"text": `{"intent":"HELP"}`}}},
			}},
		})
	})
	defer srv.Close()

	schema := json.RawMessage(`{"type":"object"}`)
	raw, err := a.GenerateStructured(context.Background(), "classify this", schema)
	if err != nil {
		t.Fatalf("GenerateStructured: %v", err)
	}
	var parsed struct {
		Intent string `json:"intent"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("candidate text is not JSON: %v", err)
	}
	if parsed.Intent != "HELP" {
		t.Fatalf("intent = %q", parsed.Intent)
	}
	if got.GenerationConfig.ResponseMIMEType != "application/json" {
		t.Fatalf("mime type = %q", got.GenerationConfig.ResponseMIMEType)
	}
	if string(got.GenerationConfig.ResponseJSONSchema) != string(schema) {
		t.Fatalf("schema not forwarded")
	}
}

func TestRateLimitSurfacesTypedError(t *testing.T) {
	a, srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("quota exceeded"))
	})
	defer srv.Close()

	_, err := a.Generate(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "hello"}},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !resilience.IsRateLimit(err) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
}
