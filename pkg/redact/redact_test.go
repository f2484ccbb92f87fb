package redact

import (
	"strings"
	"testing"
)

func TestRedactDisabled(t *testing.T) {
	SetEnabled(false)
	in := "send it to alice@example.com or call +62 812 3456 7890"
	if got := Text(in); got != in {
		t.Fatalf("expected no redaction, got %q", got)
	}
}

func TestRedactEnabled(t *testing.T) {
	SetEnabled(true)
	defer SetEnabled(false)
	in := "send it to alice@example.com or call +62 812 3456 7890"
	got := Text(in)
	if got == in {
		t.Fatalf("expected redaction")
	}
	if want := "[REDACTED_EMAIL]"; !strings.Contains(got, want) {
		t.Fatalf("expected %q in output", want)
	}
	if want := "[REDACTED_PHONE]"; !strings.Contains(got, want) {
		t.Fatalf("expected %q in output", want)
	}
}

func TestAddressKeepsDomain(t *testing.T) {
	SetEnabled(true)
	defer SetEnabled(false)
	got := Address("alice@example.com")
	if !strings.HasSuffix(got, "@example.com") {
		t.Fatalf("expected domain preserved, got %q", got)
	}
	if strings.Contains(got, "alice") {
		t.Fatalf("expected local part masked, got %q", got)
	}
}
