package nylas

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/voxmail/voxmail/pkg/errorsx"
	"github.com/voxmail/voxmail/pkg/mail"
	"github.com/voxmail/voxmail/pkg/resilience"
)

const defaultBaseURL = "https://api.us.nylas.com"

// Client talks to the Nylas v3 messages and drafts API for a single
// grant. It implements mail.Provider.
type Client struct {
	APIKey  string
	GrantID string
	BaseURL string
	Client  *http.Client
}

func NewClient(apiKey, grantID string) *Client {
	return &Client{
		APIKey:  apiKey,
		GrantID: grantID,
		BaseURL: defaultBaseURL,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Wire types. Nylas wraps every response in a data envelope.
type participant struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type wireAttachment struct {
	ID string `json:"id"`
}

type wireMessage struct {
	ID          string           `json:"id"`
	Subject     string           `json:"subject"`
	Body        string           `json:"body"`
	Snippet     string           `json:"snippet"`
	From        []participant    `json:"from"`
	Date        int64            `json:"date"`
	Unread      bool             `json:"unread"`
	Attachments []wireAttachment `json:"attachments"`
}

type draftRequest struct {
	To      []participant `json:"to"`
	Subject string        `json:"subject"`
	Body    string        `json:"body"`
}

type draftEnvelope struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

type messageEnvelope struct {
	Data wireMessage `json:"data"`
}

type listEnvelope struct {
	Data []wireMessage `json:"data"`
}

// SendMessage creates a draft and sends it, returning the sent message
// ID. Recipients given as a bare address get the local part as the
// display name.
func (c *Client) SendMessage(ctx context.Context, to, subject, body string) (string, error) {
	name, _, _ := strings.Cut(to, "@")
	draft := draftRequest{
		To:      []participant{{Name: name, Email: to}},
		Subject: subject,
		Body:    body,
	}

	var created draftEnvelope
	if err := c.do(ctx, http.MethodPost, c.grantPath("drafts"), nil, draft, &created); err != nil {
		return "", err
	}
	if created.Data.ID == "" {
		return "", fmt.Errorf("nylas: draft create returned no id")
	}

	var sent messageEnvelope
	path := c.grantPath("drafts/" + created.Data.ID)
	if err := c.do(ctx, http.MethodPost, path, nil, nil, &sent); err != nil {
		return "", err
	}
	return sent.Data.ID, nil
}

func (c *Client) ListMessages(ctx context.Context, limit int, unreadOnly bool) ([]mail.Message, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	if unreadOnly {
		params.Set("unread", "true")
	}

	var env listEnvelope
	if err := c.do(ctx, http.MethodGet, c.grantPath("messages"), params, nil, &env); err != nil {
		return nil, err
	}
	return toMessages(env.Data), nil
}

// SearchMessages maps the search field onto the matching Nylas query
// parameter. Nylas has no direct body filter, so body and all searches
// use full-text search.
func (c *Client) SearchMessages(ctx context.Context, query string, field mail.SearchField, limit int) ([]mail.Message, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	switch field {
	case mail.SearchSubject:
		params.Set("subject", query)
	case mail.SearchFrom:
		params.Set("from", query)
	case mail.SearchTo:
		params.Set("to", query)
	default:
		params.Set("search_query_native", query)
	}

	var env listEnvelope
	if err := c.do(ctx, http.MethodGet, c.grantPath("messages"), params, nil, &env); err != nil {
		return nil, err
	}
	return toMessages(env.Data), nil
}

func (c *Client) GetMessage(ctx context.Context, id string) (mail.Message, error) {
	var env messageEnvelope
	if err := c.do(ctx, http.MethodGet, c.grantPath("messages/"+id), nil, nil, &env); err != nil {
		return mail.Message{}, err
	}
	return toMessage(env.Data), nil
}

func (c *Client) MarkMessageRead(ctx context.Context, id string) error {
	body := map[string]bool{"unread": false}
	return c.do(ctx, http.MethodPut, c.grantPath("messages/"+id), nil, body, nil)
}

func (c *Client) grantPath(suffix string) string {
	return fmt.Sprintf("/v3/grants/%s/%s", c.GrantID, suffix)
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	u := c.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		raw, _ := io.ReadAll(resp.Body)
		return resilience.RateLimitError{Provider: "nylas", Message: string(raw)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("nylas: %s %s: status %d: %s", method, path, resp.StatusCode, raw)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonMailRead)
	}
	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return http.DefaultClient
}

func toMessages(wire []wireMessage) []mail.Message {
	msgs := make([]mail.Message, 0, len(wire))
	for _, w := range wire {
		msgs = append(msgs, toMessage(w))
	}
	return msgs
}

func toMessage(w wireMessage) mail.Message {
	msg := mail.Message{
		ID:             w.ID,
		Subject:        w.Subject,
		Body:           w.Body,
		Unread:         w.Unread,
		HasAttachments: len(w.Attachments) > 0,
	}
	if msg.Body == "" {
		msg.Body = w.Snippet
	}
	if len(w.From) > 0 {
		msg.SenderName = w.From[0].Name
		msg.SenderEmail = w.From[0].Email
	}
	if w.Date > 0 {
		msg.Date = time.Unix(w.Date, 0)
	}
	return msg
}

var _ mail.Provider = (*Client)(nil)
