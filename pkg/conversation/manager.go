package conversation

import (
	"context"
	"log/slog"
	"strings"

	"github.com/voxmail/voxmail/pkg/errorsx"
	"github.com/voxmail/voxmail/pkg/intent"
	"github.com/voxmail/voxmail/pkg/mail"
)

// Recognizer classifies one utterance against the conversation context.
type Recognizer interface {
	Recognize(ctx context.Context, text string, convCtx intent.Context) intent.UserIntent
}

const (
	defaultReadCount   = 3
	defaultSearchLimit = 10
)

// Confirmation-phase word sets. Matched by substring against the raw
// utterance; short idiomatic replies are more reliably caught here than
// by the classifier.
var (
	affirmativeWords = []string{"yes", "yeah", "yep", "sure", "correct", "right", "send it"}
	negativeWords    = []string{"no", "nope", "cancel", "stop", "wait"}
)

// Manager is the conversation state machine. One manager owns one
// session's state; turns are processed strictly one at a time by the
// caller, so no internal locking is needed.
type Manager struct {
	recognizer Recognizer
	mail       mail.Service
	state      *State
	logger     *slog.Logger
}

func NewManager(recognizer Recognizer, svc mail.Service, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		recognizer: recognizer,
		mail:       svc,
		state:      NewState(),
		logger:     logger,
	}
}

// State exposes the conversation state for session snapshots.
func (m *Manager) State() *State { return m.state }

// Restore replaces the manager's state, for sessions rehydrated from a store.
func (m *Manager) Restore(s *State) {
	if s != nil {
		m.state = s
	}
}

// Reset abandons any in-flight operation. History is kept.
func (m *Manager) Reset() {
	m.state.Reset()
	m.logger.Info("conversation state reset")
}

// ProcessTurn consumes one finalized transcript and returns the utterance
// to speak next. It never fails; collaborator errors become apologies.
func (m *Manager) ProcessTurn(ctx context.Context, text string) (response string) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("turn processing panicked", "panic", r)
			response = respTurnError
		}
	}()

	m.state.AddMessage("user", text)

	it := m.recognizer.Recognize(ctx, text, m.intentContext())
	m.logger.Info("recognized intent",
		"intent", it.Type, "confidence", it.Confidence, "phase", m.state.Phase)

	if m.state.Phase == PhaseWaitingConfirmation {
		response = m.confirmationPhase(ctx, text, it)
	} else {
		response = m.dispatch(ctx, it)
	}

	m.state.AddMessage("assistant", response)
	return response
}

func (m *Manager) dispatch(ctx context.Context, it intent.UserIntent) string {
	switch it.Type {
	case intent.TypeSendEmail:
		return m.handleSend(it)
	case intent.TypeReadEmail:
		return m.handleRead(ctx, it)
	case intent.TypeSearchEmail:
		return m.handleSearch(ctx, it)
	case intent.TypeReplyEmail:
		return respReplyStub
	case intent.TypeConfirm:
		return m.handleConfirm(ctx)
	case intent.TypeCancel:
		return m.handleCancel()
	case intent.TypeHelp:
		return respHelp
	case intent.TypeGreeting:
		return respGreeting
	case intent.TypeGoodbye:
		return respGoodbye
	case intent.TypeThankYou:
		return respThanks
	case intent.TypeRepeat:
		return m.handleRepeat()
	default:
		return m.handleUnclear()
	}
}

// intentContext snapshots the state fields the classifier biases on.
func (m *Manager) intentContext() intent.Context {
	ctx := intent.Context{
		Collecting:    m.state.Phase == PhaseCollectingInfo,
		Confirming:    m.state.Phase == PhaseWaitingConfirmation,
		CurrentIntent: m.state.CurrentIntent,
	}
	if d := m.state.Draft; d != nil {
		ctx.HasDraft = true
		ctx.HasRecipient = d.Recipient != ""
		ctx.HasSubject = d.Subject != ""
		ctx.HasBody = d.Body != ""
	}
	for _, msg := range m.state.RecentContext(4) {
		ctx.Recent = append(ctx.Recent, intent.Exchange{Role: msg.Role, Content: msg.Content})
	}
	return ctx
}

func (m *Manager) handleSend(it intent.UserIntent) string {
	m.state.Phase = PhaseCollectingInfo
	m.state.CurrentIntent = intent.TypeSendEmail

	if m.state.Draft == nil {
		m.state.Draft = &Draft{}
	}
	m.state.Draft.Merge(it.Entities.Send)

	if missing := m.state.Draft.Missing(); len(missing) > 0 {
		return askForField(missing[0])
	}

	m.state.Phase = PhaseWaitingConfirmation
	return confirmationPrompt(m.state.Draft)
}

func (m *Manager) handleRead(ctx context.Context, it intent.UserIntent) string {
	m.state.Phase = PhaseProcessing
	m.state.CurrentIntent = intent.TypeReadEmail

	count := defaultReadCount
	unreadOnly := false
	if r := it.Entities.Read; r != nil {
		if r.Count > 0 {
			count = r.Count
		}
		unreadOnly = r.Filter == "unread"
	}

	emails, err := m.mail.ReadRecent(ctx, count, unreadOnly)
	m.state.Phase = PhaseIdle
	if err != nil {
		m.logger.Error("reading emails failed", "reason", errorsx.Reason(err), "error", err)
		return respReadFailed
	}
	if len(emails) == 0 {
		return respNoEmails
	}
	return readResponse(emails)
}

func (m *Manager) handleSearch(ctx context.Context, it intent.UserIntent) string {
	m.state.Phase = PhaseProcessing
	m.state.CurrentIntent = intent.TypeSearchEmail

	query := ""
	field := mail.SearchAll
	if s := it.Entities.Search; s != nil {
		query = s.Query
		if s.Field != "" {
			field = mail.SearchField(s.Field)
		}
	}
	if query == "" {
		m.state.Phase = PhaseCollectingInfo
		return respAskQuery
	}

	results, err := m.mail.Search(ctx, query, field, defaultSearchLimit)
	m.state.Phase = PhaseIdle
	if err != nil {
		m.logger.Error("searching emails failed", "reason", errorsx.Reason(err), "error", err)
		return respSearchFault
	}
	if len(results) == 0 {
		return noMatchesResponse(query)
	}

	m.state.LastSearchQuery = query
	m.state.LastSearchResults = m.state.LastSearchResults[:0]
	for _, r := range results {
		m.state.LastSearchResults = append(m.state.LastSearchResults, r.ID)
	}
	return searchResponse(query, results)
}

func (m *Manager) handleConfirm(ctx context.Context) string {
	if m.state.Phase != PhaseWaitingConfirmation {
		return respNothingToConfirm
	}
	if m.state.CurrentIntent == intent.TypeSendEmail && m.state.Draft != nil {
		return m.executeSend(ctx)
	}
	return respConfirmUnknown
}

// executeSend performs the confirmed send. The recipient is captured
// before Reset clears the draft; on failure the draft survives so the
// user can retry without re-dictating.
func (m *Manager) executeSend(ctx context.Context) string {
	draft := m.state.Draft
	recipient := draft.Recipient

	_, err := m.mail.Send(ctx, mail.SendRequest{
		To:      draft.Recipient,
		Subject: draft.Subject,
		Body:    draft.Body,
	})
	if err != nil {
		m.logger.Error("sending email failed", "reason", errorsx.Reason(err), "error", err)
		m.state.Phase = PhaseIdle
		return respSendFailed
	}

	m.state.Reset()
	return sentResponse(recipient)
}

func (m *Manager) handleCancel() string {
	if m.state.Phase == PhaseIdle {
		return respNothingToCancel
	}
	name := "current operation"
	if m.state.CurrentIntent != "" {
		name = m.state.CurrentIntent.String()
	}
	m.state.Reset()
	return cancelledResponse(name)
}

func (m *Manager) handleRepeat() string {
	if last, ok := m.state.LastAssistantMessage(); ok {
		return last
	}
	return respNoRepeat
}

func (m *Manager) handleUnclear() string {
	if m.state.Phase == PhaseCollectingInfo && m.state.CurrentIntent == intent.TypeSendEmail {
		if m.state.Draft != nil {
			if missing := m.state.Draft.Missing(); len(missing) > 0 {
				return askForField(missing[0])
			}
		}
	}
	return respUnclear
}

// confirmationPhase inspects the raw utterance for yes/no words before
// trusting the classifier; short confirmation replies are too easy for
// the model to mislabel.
func (m *Manager) confirmationPhase(ctx context.Context, text string, it intent.UserIntent) string {
	lowered := strings.ToLower(text)

	if containsAny(lowered, affirmativeWords) {
		return m.handleConfirm(ctx)
	}
	if containsAny(lowered, negativeWords) {
		m.state.Phase = PhaseCollectingInfo
		return respAskChange
	}

	if m.state.CurrentIntent == intent.TypeSendEmail {
		// A correction attempt. Ask which field rather than guessing.
		m.state.Phase = PhaseCollectingInfo
		return respAskChangeField
	}
	return respYesOrNo
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
