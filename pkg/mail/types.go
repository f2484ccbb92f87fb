package mail

import (
	"context"
	"strings"
)

// SearchField names the message part a search query applies to.
type SearchField string

const (
	SearchSubject SearchField = "subject"
	SearchFrom    SearchField = "from"
	SearchTo      SearchField = "to"
	SearchBody    SearchField = "body"
	SearchAll     SearchField = "all"
)

// SendRequest is a fully specified outgoing email.
type SendRequest struct {
	To      string
	Subject string
	Body    string
}

// SendResult reports the provider's acknowledgement of a send.
type SendResult struct {
	MessageID string
	Message   string
}

// Summary is a voice-friendly rendering of one inbox message: a short
// preview instead of the full body, and a spoken date phrase instead of
// a timestamp.
type Summary struct {
	ID             string
	SenderName     string
	SenderEmail    string
	Subject        string
	Preview        string
	Date           string
	Unread         bool
	HasAttachments bool
}

// VoiceDescription renders the summary as natural speech, read-state
// first so the listener hears what matters before the details.
func (s Summary) VoiceDescription() string {
	var b strings.Builder
	if s.Unread {
		b.WriteString("Unread email. ")
	}
	b.WriteString("Email from " + s.SenderName + ", sent " + s.Date + ". ")
	b.WriteString("Subject: " + s.Subject + ".")
	if s.Preview != "" {
		b.WriteString(" Message says: " + s.Preview)
	}
	if s.HasAttachments {
		b.WriteString(" This email has attachments.")
	}
	return b.String()
}

// SearchResult is one search hit, shaped like Summary minus the preview.
type SearchResult struct {
	ID          string
	SenderName  string
	SenderEmail string
	Subject     string
	Date        string
}

// Service is the mailbox surface the conversation manager drives. Every
// method blocks until the provider answers; errors carry a reason code
// and are converted to spoken apologies by the caller.
type Service interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
	ReadRecent(ctx context.Context, limit int, unreadOnly bool) ([]Summary, error)
	Search(ctx context.Context, query string, field SearchField, limit int) ([]SearchResult, error)
	MarkRead(ctx context.Context, messageID string) error
}
