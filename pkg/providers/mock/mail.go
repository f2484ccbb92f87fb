package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/voxmail/voxmail/pkg/mail"
)

// MailProvider is an in-memory mailbox for local runs and tests.
type MailProvider struct {
	mu       sync.Mutex
	messages []mail.Message
	sent     []mail.SendRequest
	nextID   int
}

func NewMailProvider(seed ...mail.Message) *MailProvider {
	return &MailProvider{messages: seed, nextID: 1}
}

func (p *MailProvider) SendMessage(ctx context.Context, to, subject, body string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, mail.SendRequest{To: to, Subject: subject, Body: body})
	id := fmt.Sprintf("mock-%d", p.nextID)
	p.nextID++
	return id, nil
}

func (p *MailProvider) ListMessages(ctx context.Context, limit int, unreadOnly bool) ([]mail.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]mail.Message, 0, limit)
	for _, msg := range p.messages {
		if unreadOnly && !msg.Unread {
			continue
		}
		out = append(out, msg)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (p *MailProvider) SearchMessages(ctx context.Context, query string, field mail.SearchField, limit int) ([]mail.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q := strings.ToLower(query)
	out := make([]mail.Message, 0, limit)
	for _, msg := range p.messages {
		if !matches(msg, q, field) {
			continue
		}
		out = append(out, msg)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (p *MailProvider) GetMessage(ctx context.Context, id string) (mail.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, msg := range p.messages {
		if msg.ID == id {
			return msg, nil
		}
	}
	return mail.Message{}, fmt.Errorf("message %s not found", id)
}

func (p *MailProvider) MarkMessageRead(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.messages {
		if p.messages[i].ID == id {
			p.messages[i].Unread = false
			return nil
		}
	}
	return fmt.Errorf("message %s not found", id)
}

// Sent returns a copy of everything sent through the provider.
func (p *MailProvider) Sent() []mail.SendRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]mail.SendRequest(nil), p.sent...)
}

func matches(msg mail.Message, q string, field mail.SearchField) bool {
	switch field {
	case mail.SearchSubject:
		return strings.Contains(strings.ToLower(msg.Subject), q)
	case mail.SearchFrom:
		return strings.Contains(strings.ToLower(msg.SenderName), q) ||
			strings.Contains(strings.ToLower(msg.SenderEmail), q)
	case mail.SearchBody:
		return strings.Contains(strings.ToLower(msg.Body), q)
	default:
		return strings.Contains(strings.ToLower(msg.Subject), q) ||
			strings.Contains(strings.ToLower(msg.Body), q) ||
			strings.Contains(strings.ToLower(msg.SenderEmail), q)
	}
}

// SeedInbox returns a small deterministic mailbox for demos.
func SeedInbox(now time.Time) []mail.Message {
	return []mail.Message{
		{ID: "m1", SenderName: "Alice Chen", SenderEmail: "alice@example.com", Subject: "Quarterly budget review", Body: "Can we meet Thursday to walk through the numbers?", Date: now.Add(-2 * time.Hour), Unread: true},
		{ID: "m2", SenderName: "Bob Park", SenderEmail: "bob@example.com", Subject: "Lunch tomorrow?", Body: "Thinking noon at the usual place.", Date: now.Add(-26 * time.Hour), Unread: true},
		{ID: "m3", SenderName: "", SenderEmail: "noreply@billing.example.com", Subject: "Your invoice is ready", Body: "Invoice #4821 is attached.", Date: now.Add(-72 * time.Hour), Unread: false, HasAttachments: true},
	}
}

var _ mail.Provider = (*MailProvider)(nil)
