package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/voxmail/voxmail/pkg/intent"
	"github.com/voxmail/voxmail/pkg/mail"
)

// scriptedRecognizer returns canned intents in order, falling back to the
// real pattern table when the script runs out.
type scriptedRecognizer struct {
	script []intent.UserIntent
	calls  int
}

func (r *scriptedRecognizer) Recognize(_ context.Context, text string, _ intent.Context) intent.UserIntent {
	if r.calls < len(r.script) {
		out := r.script[r.calls]
		r.calls++
		out.OriginalText = text
		return out
	}
	r.calls++
	return intent.UserIntent{Type: intent.TypeUnclear, OriginalText: text}
}

// patternRecognizer drives the manager through the real classifier with no
// LLM attached.
func patternRecognizer() Recognizer {
	return intent.NewClassifier(nil, nil)
}

type fakeMail struct {
	sent       []mail.SendRequest
	sendErr    error
	recent     []mail.Summary
	recentErr  error
	results    []mail.SearchResult
	searchErr  error
	lastLimit  int
	lastUnread bool
}

func (f *fakeMail) Send(_ context.Context, req mail.SendRequest) (mail.SendResult, error) {
	if f.sendErr != nil {
		return mail.SendResult{}, f.sendErr
	}
	f.sent = append(f.sent, req)
	return mail.SendResult{MessageID: "m-1"}, nil
}

func (f *fakeMail) ReadRecent(_ context.Context, limit int, unreadOnly bool) ([]mail.Summary, error) {
	f.lastLimit = limit
	f.lastUnread = unreadOnly
	return f.recent, f.recentErr
}

func (f *fakeMail) Search(_ context.Context, _ string, _ mail.SearchField, _ int) ([]mail.SearchResult, error) {
	return f.results, f.searchErr
}

func (f *fakeMail) MarkRead(_ context.Context, _ string) error { return nil }

func sendIntent(e *intent.SendEntities) intent.UserIntent {
	return intent.UserIntent{
		Type:       intent.TypeSendEmail,
		Confidence: 0.9,
		Entities:   intent.Entities{Send: e},
	}
}

func TestSlotFillingOrderIndependent(t *testing.T) {
	fields := []*intent.SendEntities{
		{Recipient: "a@b.com"},
		{Subject: "S"},
		{Body: "B"},
	}
	perms := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}

	for _, perm := range perms {
		rec := &scriptedRecognizer{}
		for _, i := range perm {
			rec.script = append(rec.script, sendIntent(fields[i]))
		}
		m := NewManager(rec, &fakeMail{}, nil)

		for _, i := range perm {
			m.ProcessTurn(context.Background(), fmt.Sprintf("turn %d", i))
		}

		if !m.state.Draft.Complete() {
			t.Fatalf("perm %v: draft incomplete: %+v", perm, m.state.Draft)
		}
		if m.state.Phase != PhaseWaitingConfirmation {
			t.Fatalf("perm %v: phase = %v, want waiting_confirmation", perm, m.state.Phase)
		}
	}
}

func TestSingleTurnFullEntities(t *testing.T) {
	rec := &scriptedRecognizer{script: []intent.UserIntent{
		sendIntent(&intent.SendEntities{Recipient: "a@b.com", Subject: "S", Body: "B"}),
	}}
	m := NewManager(rec, &fakeMail{}, nil)

	resp := m.ProcessTurn(context.Background(), "send a@b.com an email")
	if m.state.Phase != PhaseWaitingConfirmation {
		t.Fatalf("phase = %v, want waiting_confirmation in a single turn", m.state.Phase)
	}
	if !strings.Contains(resp, "a@b.com") || !strings.Contains(resp, "'S'") {
		t.Fatalf("confirmation prompt missing draft fields: %q", resp)
	}
}

func TestConfirmSendsExactlyOnce(t *testing.T) {
	svc := &fakeMail{}
	m := NewManager(patternRecognizer(), svc, nil)
	m.state.Phase = PhaseWaitingConfirmation
	m.state.CurrentIntent = intent.TypeSendEmail
	m.state.Draft = &Draft{Recipient: "a@b.com", Subject: "S", Body: "B"}

	resp := m.ProcessTurn(context.Background(), "yes")

	if len(svc.sent) != 1 {
		t.Fatalf("send called %d times, want 1", len(svc.sent))
	}
	got := svc.sent[0]
	if got.To != "a@b.com" || got.Subject != "S" || got.Body != "B" {
		t.Fatalf("sent %+v, want exact draft fields", got)
	}
	if m.state.Phase != PhaseIdle {
		t.Fatalf("phase = %v, want idle after send", m.state.Phase)
	}
	if m.state.Draft != nil {
		t.Fatalf("draft not cleared after successful send")
	}
	if resp != "Great! I've sent your email to a@b.com." {
		t.Fatalf("response = %q", resp)
	}
}

func TestConfirmDeclinedKeepsDraft(t *testing.T) {
	svc := &fakeMail{}
	m := NewManager(patternRecognizer(), svc, nil)
	m.state.Phase = PhaseWaitingConfirmation
	m.state.CurrentIntent = intent.TypeSendEmail
	m.state.Draft = &Draft{Recipient: "a@b.com", Subject: "S", Body: "B"}

	resp := m.ProcessTurn(context.Background(), "no")

	if len(svc.sent) != 0 {
		t.Fatalf("declined confirmation still sent")
	}
	if m.state.Phase != PhaseCollectingInfo {
		t.Fatalf("phase = %v, want collecting_info", m.state.Phase)
	}
	if m.state.Draft == nil || m.state.Draft.Recipient != "a@b.com" {
		t.Fatalf("draft lost on decline: %+v", m.state.Draft)
	}
	if resp != "Okay, what would you like to change?" {
		t.Fatalf("response = %q", resp)
	}
}

func TestSendFailurePreservesDraft(t *testing.T) {
	svc := &fakeMail{sendErr: errors.New("provider 502")}
	m := NewManager(patternRecognizer(), svc, nil)
	m.state.Phase = PhaseWaitingConfirmation
	m.state.CurrentIntent = intent.TypeSendEmail
	m.state.Draft = &Draft{Recipient: "a@b.com", Subject: "S", Body: "B"}

	resp := m.ProcessTurn(context.Background(), "yes")

	if m.state.Phase != PhaseIdle {
		t.Fatalf("phase = %v, want idle after failed send", m.state.Phase)
	}
	if m.state.Draft == nil {
		t.Fatalf("draft must survive a failed send so the user can retry")
	}
	if !strings.Contains(resp, "error sending the email") {
		t.Fatalf("response = %q", resp)
	}
}

func TestAmbiguousConfirmationAsksWhichField(t *testing.T) {
	m := NewManager(patternRecognizer(), &fakeMail{}, nil)
	m.state.Phase = PhaseWaitingConfirmation
	m.state.CurrentIntent = intent.TypeSendEmail
	m.state.Draft = &Draft{Recipient: "a@b.com", Subject: "S", Body: "B"}

	resp := m.ProcessTurn(context.Background(), "make the subject shorter maybe")
	if m.state.Phase != PhaseCollectingInfo {
		t.Fatalf("phase = %v, want collecting_info", m.state.Phase)
	}
	if resp != "What would you like to change? The recipient, subject, or message?" {
		t.Fatalf("response = %q", resp)
	}
}

func TestCancelAtIdleNeverMutates(t *testing.T) {
	m := NewManager(patternRecognizer(), &fakeMail{}, nil)

	before := *m.state
	resp := m.ProcessTurn(context.Background(), "cancel")

	if resp != "There's nothing to cancel. How can I help you?" {
		t.Fatalf("response = %q", resp)
	}
	if m.state.Phase != before.Phase || m.state.CurrentIntent != before.CurrentIntent || m.state.Draft != nil {
		t.Fatalf("idle cancel mutated state")
	}
}

func TestCancelMidCollectionNamesOperation(t *testing.T) {
	rec := &scriptedRecognizer{script: []intent.UserIntent{
		sendIntent(&intent.SendEntities{Recipient: "a@b.com"}),
		{Type: intent.TypeCancel, Confidence: 0.8},
	}}
	m := NewManager(rec, &fakeMail{}, nil)

	m.ProcessTurn(context.Background(), "send an email to a@b.com")
	resp := m.ProcessTurn(context.Background(), "cancel")

	if !strings.Contains(resp, "cancelled the send_email") {
		t.Fatalf("response = %q", resp)
	}
	if m.state.Phase != PhaseIdle || m.state.Draft != nil {
		t.Fatalf("cancel did not reset state: phase=%v draft=%+v", m.state.Phase, m.state.Draft)
	}
}

func TestHistoryCapFIFO(t *testing.T) {
	m := NewManager(patternRecognizer(), &fakeMail{}, nil)

	for i := 0; i < 30; i++ {
		m.ProcessTurn(context.Background(), fmt.Sprintf("utterance %d", i))
	}

	if len(m.state.History) != historyCap {
		t.Fatalf("history length = %d, want %d", len(m.state.History), historyCap)
	}
	// Each turn appends a user and an assistant message; after 30 turns
	// the window must hold the newest entries in order.
	last := m.state.History[len(m.state.History)-2]
	if last.Role != "user" || last.Content != "utterance 29" {
		t.Fatalf("newest user entry = %+v", last)
	}
	for i := 1; i < len(m.state.History); i++ {
		if m.state.History[i].Timestamp.Before(m.state.History[i-1].Timestamp) {
			t.Fatalf("retained history out of order at %d", i)
		}
	}
}

func TestResetPreservesHistory(t *testing.T) {
	m := NewManager(patternRecognizer(), &fakeMail{}, nil)
	m.ProcessTurn(context.Background(), "hello there")
	m.state.Phase = PhaseCollectingInfo
	m.state.Draft = &Draft{Recipient: "a@b.com"}

	n := len(m.state.History)
	m.Reset()

	if m.state.Phase != PhaseIdle || m.state.Draft != nil {
		t.Fatalf("reset left state dirty")
	}
	if len(m.state.History) != n {
		t.Fatalf("reset dropped history: %d -> %d", n, len(m.state.History))
	}
}

func TestReadEmailBranches(t *testing.T) {
	t.Run("empty inbox", func(t *testing.T) {
		rec := &scriptedRecognizer{script: []intent.UserIntent{
			{Type: intent.TypeReadEmail, Confidence: 0.9},
		}}
		m := NewManager(rec, &fakeMail{}, nil)

		resp := m.ProcessTurn(context.Background(), "read my emails")
		if resp != "You don't have any new emails in your inbox." {
			t.Fatalf("response = %q", resp)
		}
		if m.state.Phase != PhaseIdle {
			t.Fatalf("phase = %v, want idle", m.state.Phase)
		}
	})

	t.Run("five results inline three", func(t *testing.T) {
		svc := &fakeMail{}
		for i := 1; i <= 5; i++ {
			svc.recent = append(svc.recent, mail.Summary{
				SenderName: fmt.Sprintf("Sender %d", i),
				Subject:    fmt.Sprintf("Subject %d", i),
			})
		}
		rec := &scriptedRecognizer{script: []intent.UserIntent{
			{Type: intent.TypeReadEmail, Confidence: 0.9,
				Entities: intent.Entities{Read: &intent.ReadEntities{Count: 5}}},
		}}
		m := NewManager(rec, svc, nil)

		resp := m.ProcessTurn(context.Background(), "read my last five emails")
		if !strings.HasPrefix(resp, "You have 5 recent emails. ") {
			t.Fatalf("response = %q", resp)
		}
		if !strings.Contains(resp, "Email 3: From Sender 3") {
			t.Fatalf("third email not inlined: %q", resp)
		}
		if strings.Contains(resp, "Email 4:") {
			t.Fatalf("fourth email must not be inlined: %q", resp)
		}
		if !strings.Contains(resp, "And 2 more. ") {
			t.Fatalf("remainder count missing: %q", resp)
		}
		if svc.lastLimit != 5 {
			t.Fatalf("limit passed = %d, want 5", svc.lastLimit)
		}
	})

	t.Run("provider failure", func(t *testing.T) {
		rec := &scriptedRecognizer{script: []intent.UserIntent{
			{Type: intent.TypeReadEmail, Confidence: 0.9},
		}}
		m := NewManager(rec, &fakeMail{recentErr: errors.New("nylas down")}, nil)

		resp := m.ProcessTurn(context.Background(), "read my emails")
		if resp != "I had trouble accessing your emails. Please try again later." {
			t.Fatalf("response = %q", resp)
		}
		if m.state.Phase != PhaseIdle {
			t.Fatalf("failure must land in idle, got %v", m.state.Phase)
		}
	})
}

func TestSearchEmailBranches(t *testing.T) {
	t.Run("missing query collects", func(t *testing.T) {
		rec := &scriptedRecognizer{script: []intent.UserIntent{
			{Type: intent.TypeSearchEmail, Confidence: 0.9},
		}}
		m := NewManager(rec, &fakeMail{}, nil)

		resp := m.ProcessTurn(context.Background(), "search my emails")
		if resp != "What would you like to search for in your emails?" {
			t.Fatalf("response = %q", resp)
		}
		if m.state.Phase != PhaseCollectingInfo {
			t.Fatalf("phase = %v", m.state.Phase)
		}
	})

	t.Run("no matches", func(t *testing.T) {
		rec := &scriptedRecognizer{script: []intent.UserIntent{
			{Type: intent.TypeSearchEmail, Confidence: 0.9,
				Entities: intent.Entities{Search: &intent.SearchEntities{Query: "budget", Field: intent.FieldAll}}},
		}}
		m := NewManager(rec, &fakeMail{}, nil)

		resp := m.ProcessTurn(context.Background(), "search for budget")
		if resp != "I couldn't find any emails matching 'budget'." {
			t.Fatalf("response = %q", resp)
		}
	})

	t.Run("three results inline two", func(t *testing.T) {
		svc := &fakeMail{results: []mail.SearchResult{
			{ID: "1", SenderName: "A", Subject: "S1"},
			{ID: "2", SenderName: "B", Subject: "S2"},
			{ID: "3", SenderName: "C", Subject: "S3"},
		}}
		rec := &scriptedRecognizer{script: []intent.UserIntent{
			{Type: intent.TypeSearchEmail, Confidence: 0.9,
				Entities: intent.Entities{Search: &intent.SearchEntities{Query: "budget", Field: intent.FieldAll}}},
		}}
		m := NewManager(rec, svc, nil)

		resp := m.ProcessTurn(context.Background(), "search for budget")
		if !strings.HasPrefix(resp, "I found 3 emails matching 'budget'. ") {
			t.Fatalf("response = %q", resp)
		}
		if strings.Contains(resp, "Result 3:") {
			t.Fatalf("third result must not be inlined: %q", resp)
		}
		if !strings.Contains(resp, "And 1 more results.") {
			t.Fatalf("overflow count missing: %q", resp)
		}
		if len(m.state.LastSearchResults) != 3 {
			t.Fatalf("search ids not recorded: %v", m.state.LastSearchResults)
		}
	})
}

func TestUnclearDuringCollectionReasks(t *testing.T) {
	rec := &scriptedRecognizer{script: []intent.UserIntent{
		sendIntent(&intent.SendEntities{Recipient: "a@b.com"}),
		{Type: intent.TypeUnclear},
	}}
	m := NewManager(rec, &fakeMail{}, nil)

	m.ProcessTurn(context.Background(), "send an email to a@b.com")
	resp := m.ProcessTurn(context.Background(), "mumble")

	if resp != "What's the subject of your email?" {
		t.Fatalf("unclear during collection should re-ask the missing field, got %q", resp)
	}
}

func TestConfirmOutsideConfirmationPhase(t *testing.T) {
	m := NewManager(patternRecognizer(), &fakeMail{}, nil)
	resp := m.ProcessTurn(context.Background(), "yes")
	if resp != "I'm not sure what you're confirming. How can I help you?" {
		t.Fatalf("response = %q", resp)
	}
}

func TestReplyStub(t *testing.T) {
	rec := &scriptedRecognizer{script: []intent.UserIntent{
		{Type: intent.TypeReplyEmail, Confidence: 0.9},
	}}
	m := NewManager(rec, &fakeMail{}, nil)
	resp := m.ProcessTurn(context.Background(), "reply to that email")
	if !strings.Contains(resp, "coming soon") {
		t.Fatalf("response = %q", resp)
	}
}

func TestRepeatReturnsLastUtterance(t *testing.T) {
	rec := &scriptedRecognizer{script: []intent.UserIntent{
		{Type: intent.TypeHelp, Confidence: 0.9},
		{Type: intent.TypeRepeat, Confidence: 0.9},
	}}
	m := NewManager(rec, &fakeMail{}, nil)

	first := m.ProcessTurn(context.Background(), "help")
	again := m.ProcessTurn(context.Background(), "say that again")
	if first != again {
		t.Fatalf("repeat did not replay the last utterance")
	}
}
