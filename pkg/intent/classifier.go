package intent

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/voxmail/voxmail/pkg/errorsx"
)

// aiConfidenceGate is the minimum model confidence accepted before the
// classifier falls back to patterns. The comparison is strict.
const aiConfidenceGate = 0.7

const (
	patternConfidence    = 0.8
	slotAnswerConfidence = 0.7
)

// StructuredClassifier produces schema-constrained JSON from a prompt.
// The gemini provider satisfies it; tests use a canned fake.
type StructuredClassifier interface {
	GenerateStructured(ctx context.Context, prompt string, schema json.RawMessage) (json.RawMessage, error)
}

// Classifier turns a transcript into a UserIntent. The model path runs
// first; regex patterns and conversation context catch what it misses,
// so classification never returns an error, only lower confidence.
type Classifier struct {
	llm    StructuredClassifier
	logger *slog.Logger
}

func NewClassifier(llm StructuredClassifier, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{llm: llm, logger: logger}
}

// Recognize classifies a single utterance against the conversation context.
func (c *Classifier) Recognize(ctx context.Context, text string, convCtx Context) UserIntent {
	if c.llm != nil {
		if out, ok := c.aiRecognize(ctx, text, convCtx); ok {
			return out
		}
	}
	return c.patternRecognize(text, convCtx)
}

func (c *Classifier) aiRecognize(ctx context.Context, text string, convCtx Context) (UserIntent, bool) {
	raw, err := c.llm.GenerateStructured(ctx, buildPrompt(text, convCtx), classificationSchema)
	if err != nil {
		c.logger.Warn("ai intent classification failed",
			"reason", errorsx.Reason(err), "error", err)
		return UserIntent{}, false
	}

	var result classification
	if err := json.Unmarshal(raw, &result); err != nil {
		c.logger.Warn("ai classification returned malformed json", "error", err)
		return UserIntent{}, false
	}

	kind := ParseType(result.Intent)
	if result.Confidence <= aiConfidenceGate {
		c.logger.Debug("ai classification below confidence gate",
			"intent", kind, "confidence", result.Confidence)
		return UserIntent{}, false
	}

	return UserIntent{
		Type:         kind,
		Confidence:   result.Confidence,
		Entities:     result.typedEntities(kind),
		OriginalText: text,
	}, true
}

func (c *Classifier) patternRecognize(text string, convCtx Context) UserIntent {
	if kind, ok := matchPatterns(text); ok {
		return UserIntent{
			Type:         kind,
			Confidence:   patternConfidence,
			Entities:     extractEntities(text, kind),
			OriginalText: text,
		}
	}

	if convCtx.Collecting {
		return c.slotAnswer(text, convCtx)
	}

	return UserIntent{Type: TypeUnclear, OriginalText: text}
}

// slotAnswer assumes a free-form utterance during info collection is the
// answer to the field currently being asked for.
func (c *Classifier) slotAnswer(text string, convCtx Context) UserIntent {
	if convCtx.CurrentIntent != TypeSendEmail || !convCtx.HasDraft {
		return UserIntent{Type: TypeUnclear, OriginalText: text}
	}

	answer := strings.TrimSpace(text)
	send := &SendEntities{}
	switch {
	case !convCtx.HasRecipient:
		send.Recipient = answer
	case !convCtx.HasSubject:
		send.Subject = answer
	case !convCtx.HasBody:
		send.Body = answer
	}

	return UserIntent{
		Type:         TypeSendEmail,
		Confidence:   slotAnswerConfidence,
		Entities:     Entities{Send: send},
		OriginalText: text,
	}
}
