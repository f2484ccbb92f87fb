package redact

import (
	"regexp"
	"strings"
	"sync/atomic"
)

var enabled atomic.Bool

var (
	emailRe = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phoneRe = regexp.MustCompile(`\b\+?\d[\d\s\-]{7,}\d\b`)
)

// SetEnabled toggles PII redaction.
func SetEnabled(v bool) {
	enabled.Store(v)
}

// Enabled returns true when redaction is active.
func Enabled() bool {
	return enabled.Load()
}

// Text redacts email addresses and phone numbers when enabled. Utterances
// and mailbox content pass through here before being logged.
func Text(in string) string {
	if !enabled.Load() || strings.TrimSpace(in) == "" {
		return in
	}
	out := emailRe.ReplaceAllString(in, "[REDACTED_EMAIL]")
	out = phoneRe.ReplaceAllString(out, "[REDACTED_PHONE]")
	return out
}

// Address masks the local part of an email address, keeping the domain so
// operators can still tell which provider a delivery failure involves.
func Address(addr string) string {
	if !enabled.Load() {
		return addr
	}
	at := strings.LastIndex(addr, "@")
	if at <= 0 {
		return Text(addr)
	}
	local := addr[:at]
	if len(local) <= 2 {
		return "**" + addr[at:]
	}
	return local[:1] + strings.Repeat("*", len(local)-2) + local[len(local)-1:] + addr[at:]
}
