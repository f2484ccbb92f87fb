package intent

import "strings"

// Type is the closed set of user intents the assistant understands.
type Type string

const (
	// Email actions
	TypeSendEmail   Type = "send_email"
	TypeReadEmail   Type = "read_email"
	TypeSearchEmail Type = "search_email"
	TypeReplyEmail  Type = "reply_email"
	TypeDeleteEmail Type = "delete_email"
	TypeMarkRead    Type = "mark_read"

	// Control intents
	TypeConfirm Type = "confirm"
	TypeCancel  Type = "cancel"
	TypeHelp    Type = "help"
	TypeRepeat  Type = "repeat"
	TypeClarify Type = "clarify"

	// Navigation
	TypeNext     Type = "next"
	TypePrevious Type = "previous"

	// Meta intents
	TypeGreeting Type = "greeting"
	TypeGoodbye  Type = "goodbye"
	TypeThankYou Type = "thank_you"

	// Unknown
	TypeUnclear Type = "unclear"
)

func (t Type) String() string { return string(t) }

// IsEmailAction reports whether the intent performs a mailbox operation.
func (t Type) IsEmailAction() bool {
	switch t {
	case TypeSendEmail, TypeReadEmail, TypeSearchEmail, TypeReplyEmail, TypeDeleteEmail, TypeMarkRead:
		return true
	}
	return false
}

// IsControl reports whether the intent steers the conversation rather
// than acting on the mailbox.
func (t Type) IsControl() bool {
	switch t {
	case TypeConfirm, TypeCancel, TypeHelp, TypeRepeat, TypeClarify:
		return true
	}
	return false
}

// RequiresConfirmation reports whether the intent should be confirmed
// before executing.
func (t Type) RequiresConfirmation() bool {
	switch t {
	case TypeSendEmail, TypeDeleteEmail, TypeReplyEmail:
		return true
	}
	return false
}

// ParseType maps a classifier label to an intent type. Labels arrive from
// the LLM in either SCREAMING_CASE or snake_case; unknown labels collapse
// to Unclear rather than erroring.
func ParseType(label string) Type {
	switch Type(strings.ToLower(strings.TrimSpace(label))) {
	case TypeSendEmail, TypeReadEmail, TypeSearchEmail, TypeReplyEmail,
		TypeDeleteEmail, TypeMarkRead, TypeConfirm, TypeCancel, TypeHelp,
		TypeRepeat, TypeClarify, TypeNext, TypePrevious, TypeGreeting,
		TypeGoodbye, TypeThankYou, TypeUnclear:
		return Type(strings.ToLower(strings.TrimSpace(label)))
	}
	return TypeUnclear
}

// UserIntent is the classified result for a single utterance. It lives
// for exactly one turn; extracted entities may be folded into the draft.
type UserIntent struct {
	Type         Type
	Confidence   float64
	Entities     Entities
	OriginalText string
}
