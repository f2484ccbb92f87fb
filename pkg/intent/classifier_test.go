package intent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type fakeLLM struct {
	raw string
	err error
}

func (f *fakeLLM) GenerateStructured(_ context.Context, _ string, _ json.RawMessage) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.raw), nil
}

func TestRecognizeAcceptsConfidentAIResult(t *testing.T) {
	llm := &fakeLLM{raw: `{"intent":"SEND_EMAIL","confidence":0.95,"entities":{"recipient":"bob@example.com","subject":"standup"}}`}
	c := NewClassifier(llm, nil)

	got := c.Recognize(context.Background(), "shoot bob a note about standup", Context{})
	if got.Type != TypeSendEmail {
		t.Fatalf("type = %v, want send_email", got.Type)
	}
	if got.Confidence != 0.95 {
		t.Fatalf("confidence = %v", got.Confidence)
	}
	if got.Entities.Send == nil || got.Entities.Send.Recipient != "bob@example.com" {
		t.Fatalf("entities = %+v", got.Entities)
	}
}

func TestRecognizeGateIsStrict(t *testing.T) {
	// Exactly 0.7 must NOT be accepted from the model; the pattern
	// fallback picks the utterance up at 0.8 instead.
	llm := &fakeLLM{raw: `{"intent":"READ_EMAIL","confidence":0.7}`}
	c := NewClassifier(llm, nil)

	got := c.Recognize(context.Background(), "read my emails", Context{})
	if got.Type != TypeReadEmail {
		t.Fatalf("type = %v", got.Type)
	}
	if got.Confidence != patternConfidence {
		t.Fatalf("confidence = %v, want pattern fallback %v", got.Confidence, patternConfidence)
	}
}

func TestRecognizeFallsBackOnLLMError(t *testing.T) {
	llm := &fakeLLM{err: errors.New("upstream 500")}
	c := NewClassifier(llm, nil)

	got := c.Recognize(context.Background(), "check my inbox", Context{})
	if got.Type != TypeReadEmail || got.Confidence != patternConfidence {
		t.Fatalf("got %v/%v, want pattern result", got.Type, got.Confidence)
	}
}

func TestRecognizeSlotAnswer(t *testing.T) {
	llm := &fakeLLM{raw: `{"intent":"UNCLEAR","confidence":0.2}`}
	c := NewClassifier(llm, nil)

	ctxCollecting := Context{
		Collecting:    true,
		CurrentIntent: TypeSendEmail,
		HasDraft:      true,
		HasRecipient:  true,
	}
	got := c.Recognize(context.Background(), "Quarterly results", ctxCollecting)
	if got.Type != TypeSendEmail {
		t.Fatalf("type = %v, want send_email", got.Type)
	}
	if got.Confidence != slotAnswerConfidence {
		t.Fatalf("confidence = %v, want %v", got.Confidence, slotAnswerConfidence)
	}
	if got.Entities.Send == nil || got.Entities.Send.Subject != "Quarterly results" {
		t.Fatalf("slot answer should have filled subject, got %+v", got.Entities)
	}
	if got.Entities.Send.Recipient != "" || got.Entities.Send.Body != "" {
		t.Fatalf("slot answer filled the wrong field: %+v", got.Entities.Send)
	}
}

func TestRecognizeUnclearOutsideCollecting(t *testing.T) {
	llm := &fakeLLM{raw: `{"intent":"UNCLEAR","confidence":0.1}`}
	c := NewClassifier(llm, nil)

	got := c.Recognize(context.Background(), "purple monkey dishwasher", Context{})
	if got.Type != TypeUnclear || got.Confidence != 0.0 {
		t.Fatalf("got %v/%v, want unclear at 0.0", got.Type, got.Confidence)
	}
	if got.OriginalText != "purple monkey dishwasher" {
		t.Fatalf("original text not preserved")
	}
}

func TestRecognizeWithoutLLM(t *testing.T) {
	c := NewClassifier(nil, nil)
	got := c.Recognize(context.Background(), "yes", Context{Confirming: true})
	if got.Type != TypeConfirm {
		t.Fatalf("type = %v, want confirm", got.Type)
	}
}

func TestParseType(t *testing.T) {
	if ParseType("SEND_EMAIL") != TypeSendEmail {
		t.Fatalf("uppercase label should parse")
	}
	if ParseType("made_up_label") != TypeUnclear {
		t.Fatalf("unknown label should collapse to unclear")
	}
}
