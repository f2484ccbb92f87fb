package mail

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeSummarizer struct {
	out string
	err error
}

func (f *fakeSummarizer) Summarize(_ context.Context, _ string, _ int) (string, error) {
	return f.out, f.err
}

func TestPreviewShortBodyPassesThrough(t *testing.T) {
	body := "See you at noon."
	got, err := preview(context.Background(), nil, body)
	if err != nil || got != body {
		t.Fatalf("preview = %q, %v", got, err)
	}
}

func TestPreviewMediumBodyTruncates(t *testing.T) {
	// Between the truncation length and the summarize threshold.
	body := strings.Repeat("a", 150)
	got, err := preview(context.Background(), &fakeSummarizer{out: "should not be used"}, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != strings.Repeat("a", 100)+"..." {
		t.Fatalf("got %q", got)
	}
}

func TestPreviewLongBodySummarizes(t *testing.T) {
	body := strings.Repeat("word ", 100)
	got, err := preview(context.Background(), &fakeSummarizer{out: "a short summary"}, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "a short summary" {
		t.Fatalf("got %q", got)
	}
}

func TestPreviewSummarizerFailureDegrades(t *testing.T) {
	body := strings.Repeat("b", 250)
	got, err := preview(context.Background(), &fakeSummarizer{err: errors.New("quota")}, body)
	if err == nil {
		t.Fatalf("expected the summarizer error to be reported")
	}
	if got != strings.Repeat("b", 100)+"..." {
		t.Fatalf("fallback truncation wrong: %q", got)
	}
}

func TestSpokenDate(t *testing.T) {
	now := time.Date(2025, time.March, 15, 18, 0, 0, 0, time.UTC)
	cases := []struct {
		t    time.Time
		want string
	}{
		{time.Date(2025, time.March, 15, 15, 4, 0, 0, time.UTC), "today at 3:04 PM"},
		{time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC), "yesterday at 9:30 AM"},
		{time.Date(2025, time.February, 2, 15, 4, 0, 0, time.UTC), "February 2 at 3:04 PM"},
		{time.Time{}, "unknown time"},
	}
	for _, tc := range cases {
		if got := spokenDate(tc.t, now); got != tc.want {
			t.Fatalf("spokenDate(%v) = %q, want %q", tc.t, got, tc.want)
		}
	}
}

func TestSenderFallsBackToLocalPart(t *testing.T) {
	name, email := senderOf(Message{SenderEmail: "dave@example.com"})
	if name != "dave" || email != "dave@example.com" {
		t.Fatalf("got %q, %q", name, email)
	}

	name, email = senderOf(Message{})
	if email != "Unknown" || name != "Unknown" {
		t.Fatalf("got %q, %q", name, email)
	}
}
