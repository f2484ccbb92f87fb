package nylas

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxmail/voxmail/pkg/mail"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c := NewClient("test-key", "grant-1")
	c.BaseURL = srv.URL
	c.Client = srv.Client()
	return c, srv
}

func TestSendMessageDraftsThenSends(t *testing.T) {
	var paths []string
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		switch r.URL.Path {
		case "/v3/grants/grant-1/drafts":
			var draft draftRequest
			if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
				t.Fatalf("decode draft: %v", err)
			}
			if draft.To[0].Email != "alice@example.com" || draft.To[0].Name != "alice" {
				t.Errorf("recipient = %+v", draft.To[0])
			}
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": "draft-9"}})
		case "/v3/grants/grant-1/drafts/draft-9":
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": "msg-42"}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
	defer srv.Close()

	id, err := c.SendMessage(context.Background(), "alice@example.com", "hi", "hello there")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if id != "msg-42" {
		t.Fatalf("message id = %q", id)
	}
	if len(paths) != 2 {
		t.Fatalf("expected draft create then send, got %v", paths)
	}
}

func TestSearchMessagesFieldMapping(t *testing.T) {
	cases := []struct {
		field mail.SearchField
		param string
	}{
		{mail.SearchSubject, "subject"},
		{mail.SearchFrom, "from"},
		{mail.SearchTo, "to"},
		{mail.SearchBody, "search_query_native"},
		{mail.SearchAll, "search_query_native"},
	}
	for _, tc := range cases {
		var got string
		c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			got = r.URL.Query().Get(tc.param)
			json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
		})
		if _, err := c.SearchMessages(context.Background(), "budget", tc.field, 5); err != nil {
			t.Fatalf("%s: %v", tc.field, err)
		}
		if got != "budget" {
			t.Errorf("field %s: query param %s = %q", tc.field, tc.param, got)
		}
		srv.Close()
	}
}

func TestListMessagesMapsWireFields(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("unread") != "true" {
			t.Errorf("unread filter not set")
		}
		json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{{
			"id":          "m1",
			"subject":     "lunch",
			"snippet":     "are you free",
			"from":        []map[string]any{{"name": "Bob", "email": "bob@example.com"}},
			"date":        1700000000,
			"unread":      true,
			"attachments": []map[string]any{{"id": "att-1"}},
		}}})
	})
	defer srv.Close()

	msgs, err := c.ListMessages(context.Background(), 3, true)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages", len(msgs))
	}
	m := msgs[0]
	if m.SenderName != "Bob" || m.SenderEmail != "bob@example.com" {
		t.Errorf("sender = %q <%s>", m.SenderName, m.SenderEmail)
	}
	if m.Body != "are you free" {
		t.Errorf("empty body should fall back to snippet, got %q", m.Body)
	}
	if !m.Unread {
		t.Errorf("unread flag lost")
	}
	if !m.HasAttachments {
		t.Errorf("attachments flag lost")
	}
}

func TestMarkMessageReadClearsUnread(t *testing.T) {
	var method, path string
	var payload map[string]bool
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	})
	defer srv.Close()

	if err := c.MarkMessageRead(context.Background(), "m7"); err != nil {
		t.Fatalf("MarkMessageRead: %v", err)
	}
	if method != http.MethodPut || path != "/v3/grants/grant-1/messages/m7" {
		t.Fatalf("request = %s %s", method, path)
	}
	if unread, ok := payload["unread"]; !ok || unread {
		t.Fatalf("payload = %v, want unread cleared", payload)
	}
}
