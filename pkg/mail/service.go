package mail

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/voxmail/voxmail/pkg/errorsx"
)

// Message is a mailbox message as the provider returns it, before any
// voice-length shaping.
type Message struct {
	ID             string
	SenderName     string
	SenderEmail    string
	Subject        string
	Body           string
	Date           time.Time
	Unread         bool
	HasAttachments bool
}

// Provider is the raw mailbox API. The nylas package implements it.
type Provider interface {
	SendMessage(ctx context.Context, to, subject, body string) (string, error)
	ListMessages(ctx context.Context, limit int, unreadOnly bool) ([]Message, error)
	SearchMessages(ctx context.Context, query string, field SearchField, limit int) ([]Message, error)
	GetMessage(ctx context.Context, id string) (Message, error)
	MarkMessageRead(ctx context.Context, id string) error
}

// service shapes provider messages into voice-friendly summaries.
type service struct {
	provider   Provider
	summarizer Summarizer
	logger     *slog.Logger
	now        func() time.Time
}

// NewService wires a provider and an optional summarizer into the Service
// the conversation manager consumes.
func NewService(provider Provider, summarizer Summarizer, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &service{
		provider:   provider,
		summarizer: summarizer,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *service) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	id, err := s.provider.SendMessage(ctx, req.To, req.Subject, req.Body)
	if err != nil {
		return SendResult{}, errorsx.Wrap(err, errorsx.ReasonMailSend)
	}
	s.logger.Info("email sent", "message_id", id)
	return SendResult{
		MessageID: id,
		Message:   fmt.Sprintf("Email sent successfully to %s", req.To),
	}, nil
}

func (s *service) ReadRecent(ctx context.Context, limit int, unreadOnly bool) ([]Summary, error) {
	msgs, err := s.provider.ListMessages(ctx, limit, unreadOnly)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonMailRead)
	}

	summaries := make([]Summary, 0, len(msgs))
	for _, msg := range msgs {
		summaries = append(summaries, s.summarize(ctx, msg))
	}
	s.logger.Info("retrieved email summaries", "count", len(summaries))
	return summaries, nil
}

func (s *service) Search(ctx context.Context, query string, field SearchField, limit int) ([]SearchResult, error) {
	msgs, err := s.provider.SearchMessages(ctx, query, field, limit)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonMailSearch)
	}

	results := make([]SearchResult, 0, len(msgs))
	for _, msg := range msgs {
		name, email := senderOf(msg)
		results = append(results, SearchResult{
			ID:          msg.ID,
			SenderName:  name,
			SenderEmail: email,
			Subject:     msg.Subject,
			Date:        spokenDate(msg.Date, s.now()),
		})
	}
	return results, nil
}

func (s *service) MarkRead(ctx context.Context, messageID string) error {
	if err := s.provider.MarkMessageRead(ctx, messageID); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonMailMarkRead)
	}
	return nil
}

func (s *service) summarize(ctx context.Context, msg Message) Summary {
	body, err := preview(ctx, s.summarizer, msg.Body)
	if err != nil {
		// Truncated fallback already applied; just note the failure.
		s.logger.Warn("body summarization failed, truncating",
			"message_id", msg.ID, "reason", errorsx.Reason(err))
	}

	name, email := senderOf(msg)
	return Summary{
		ID:             msg.ID,
		SenderName:     name,
		SenderEmail:    email,
		Subject:        msg.Subject,
		Preview:        body,
		Date:           spokenDate(msg.Date, s.now()),
		Unread:         msg.Unread,
		HasAttachments: msg.HasAttachments,
	}
}

// senderOf falls back to the address's local part when the provider gives
// no display name.
func senderOf(msg Message) (name, email string) {
	email = msg.SenderEmail
	if email == "" {
		email = "Unknown"
	}
	name = msg.SenderName
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	return name, email
}
