package intent

import "testing"

func TestMatchPatterns(t *testing.T) {
	cases := []struct {
		text string
		want Type
		hit  bool
	}{
		{"send an email to Bob", TypeSendEmail, true},
		{"compose email", TypeSendEmail, true},
		{"write a message", TypeSendEmail, true},
		{"read my emails", TypeReadEmail, true},
		{"check my inbox", TypeReadEmail, true},
		{"any new messages", TypeReadEmail, true},
		{"what's in my inbox", TypeReadEmail, true},
		{"search for the invoice", TypeSearchEmail, true},
		{"reply to that email", TypeReplyEmail, true},
		{"yes", TypeConfirm, true},
		{"send it", TypeConfirm, true},
		{"okay!", TypeConfirm, true},
		{"no", TypeCancel, true},
		{"nevermind", TypeCancel, true},
		{"help", TypeHelp, true},
		{"what can you do", TypeHelp, true},
		{"bob@example.com", TypeUnclear, false},
		{"the quarterly report", TypeUnclear, false},
	}
	for _, tc := range cases {
		got, hit := matchPatterns(tc.text)
		if got != tc.want || hit != tc.hit {
			t.Fatalf("matchPatterns(%q) = %v, %v, want %v, %v", tc.text, got, hit, tc.want, tc.hit)
		}
	}
}

func TestConfirmAnchorsWholeUtterance(t *testing.T) {
	// Trailing words must defeat the anchored confirm rule.
	if got, _ := matchPatterns("yes please change the subject"); got == TypeConfirm {
		t.Fatalf("anchored confirm rule matched a longer utterance")
	}
}

func TestExtractSendEntities(t *testing.T) {
	got := extractSendEntities("send an email to bob@example.com about lunch plans")
	if got.Recipient != "bob@example.com" {
		t.Fatalf("recipient = %q, want address", got.Recipient)
	}
	if got.Subject != "lunch plans" {
		t.Fatalf("subject = %q, want %q", got.Subject, "lunch plans")
	}

	got = extractSendEntities("send an email to Alice Smith")
	if got.Recipient != "alice smith" {
		t.Fatalf("recipient = %q, want %q", got.Recipient, "alice smith")
	}
}

func TestExtractSendEntitiesStoplist(t *testing.T) {
	got := extractSendEntities("I want to email someone later")
	if got.Recipient == "email" {
		t.Fatalf("stoplist word taken as recipient")
	}
}

func TestExtractSearchEntities(t *testing.T) {
	got := extractSearchEntities("search for the budget report")
	if got.Query != "the budget report" {
		t.Fatalf("query = %q", got.Query)
	}
	if got.Field != FieldAll {
		t.Fatalf("field = %q, want all", got.Field)
	}

	got = extractSearchEntities("find emails from Dave")
	if got.Field != FieldFrom {
		t.Fatalf("field = %q, want from", got.Field)
	}
}

func TestExtractReadEntities(t *testing.T) {
	got := extractReadEntities("read my last three emails")
	if got.Count != 3 {
		t.Fatalf("count = %d, want 3", got.Count)
	}

	got = extractReadEntities("show my 5 unread emails")
	if got.Count != 5 || got.Filter != "unread" {
		t.Fatalf("got count=%d filter=%q", got.Count, got.Filter)
	}

	got = extractReadEntities("read my emails")
	if got.Count != 0 {
		t.Fatalf("count = %d, want 0 when unspecified", got.Count)
	}
}
