package mail

import (
	"context"
	"time"
)

// Summarizer condenses text for speech. The gemini provider implements
// it; tests stub it.
type Summarizer interface {
	Summarize(ctx context.Context, text string, maxWords int) (string, error)
}

// Presentation thresholds. Bodies past summarizeThreshold get an LLM
// summary capped at summaryWordCap words; shorter ones are truncated to
// truncateLen characters.
const (
	summarizeThreshold = 200
	summaryWordCap     = 50
	truncateLen        = 100
)

// preview renders a message body at voice length. A summarizer failure
// degrades to plain truncation rather than surfacing an error.
func preview(ctx context.Context, s Summarizer, body string) (string, error) {
	if len(body) > summarizeThreshold {
		if s != nil {
			out, err := s.Summarize(ctx, body, summaryWordCap)
			if err == nil {
				return out, nil
			}
			return truncate(body), err
		}
		return truncate(body), nil
	}
	return truncate(body), nil
}

func truncate(body string) string {
	if len(body) > truncateLen {
		return body[:truncateLen] + "..."
	}
	return body
}

// spokenDate phrases a timestamp the way a person would say it.
func spokenDate(t, now time.Time) string {
	if t.IsZero() {
		return "unknown time"
	}
	t = t.In(now.Location())

	clock := t.Format("3:04 PM")
	ty, tm, td := t.Date()
	ny, nm, nd := now.Date()
	if ty == ny && tm == nm && td == nd {
		return "today at " + clock
	}
	yy, ym, yd := now.AddDate(0, 0, -1).Date()
	if ty == yy && tm == ym && td == yd {
		return "yesterday at " + clock
	}
	return t.Format("January 2 at 3:04 PM")
}
