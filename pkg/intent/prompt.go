package intent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Context is a snapshot of the conversation used to bias classification.
// The zero value means a fresh conversation.
type Context struct {
	Collecting    bool
	Confirming    bool
	CurrentIntent Type
	HasDraft      bool
	HasRecipient  bool
	HasSubject    bool
	HasBody       bool
	Recent        []Exchange
}

// Exchange is one prior message in the conversation history.
type Exchange struct {
	Role    string
	Content string
}

// classificationSchema constrains the model to the labels ParseType accepts.
var classificationSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "intent": {
      "type": "string",
      "enum": ["SEND_EMAIL", "READ_EMAIL", "SEARCH_EMAIL", "REPLY_EMAIL",
               "DELETE_EMAIL", "MARK_READ", "CONFIRM", "CANCEL", "HELP",
               "REPEAT", "CLARIFY", "NEXT", "PREVIOUS", "GREETING",
               "GOODBYE", "THANK_YOU", "UNCLEAR"]
    },
    "confidence": {"type": "number"},
    "entities": {
      "type": "object",
      "properties": {
        "recipient": {"type": "string"},
        "subject": {"type": "string"},
        "body": {"type": "string"},
        "query": {"type": "string"},
        "field": {"type": "string"},
        "count": {"type": "integer"},
        "filter": {"type": "string"}
      }
    },
    "reasoning": {"type": "string"}
  },
  "required": ["intent", "confidence"]
}`)

// buildPrompt renders the classification prompt with whatever conversation
// context is available.
func buildPrompt(text string, ctx Context) string {
	var info strings.Builder

	switch {
	case ctx.Collecting:
		current := "unknown"
		if ctx.CurrentIntent != "" {
			current = ctx.CurrentIntent.String()
		}
		fmt.Fprintf(&info, "Currently collecting information for %s intent. ", current)
		if ctx.HasDraft {
			fmt.Fprintf(&info, "Draft email has: recipient=%t, subject=%t, body=%t. ",
				ctx.HasRecipient, ctx.HasSubject, ctx.HasBody)
		}
	case ctx.Confirming:
		info.WriteString("Waiting for user confirmation. ")
	}

	if len(ctx.Recent) > 0 {
		recent := ctx.Recent
		if len(recent) > 4 {
			recent = recent[len(recent)-4:]
		}
		parts := make([]string, len(recent))
		for i, ex := range recent {
			parts[i] = fmt.Sprintf("%s: %s", ex.Role, ex.Content)
		}
		info.WriteString("Recent conversation: " + strings.Join(parts, " "))
	}

	contextInfo := info.String()
	if contextInfo == "" {
		contextInfo = "Starting new conversation"
	}

	return fmt.Sprintf(`Analyze the user's intent from their message.

User message: %q

Context: %s

Classify the intent and extract relevant entities.

Possible intents:
- SEND_EMAIL: User wants to send/compose/write an email
- READ_EMAIL: User wants to read/check their emails
- SEARCH_EMAIL: User wants to search/find specific emails
- REPLY_EMAIL: User wants to reply to an email
- CONFIRM: User is confirming something (yes, sure, correct)
- CANCEL: User wants to cancel/stop current action
- HELP: User needs help or wants to know capabilities
- UNCLEAR: Cannot determine clear intent

For SEND_EMAIL, extract:
- recipient: email address or name
- subject: email subject
- body: email content

For SEARCH_EMAIL, extract:
- query: what to search for
- field: where to search (subject, body, from, all)

For READ_EMAIL, extract:
- count: how many emails to read
- filter: any specific filter (unread, today, etc.)

Be conservative - only classify as CONFIRM or CANCEL if the message clearly indicates that intent.`, text, contextInfo)
}

// classification is the wire shape the model returns.
type classification struct {
	Intent     string         `json:"intent"`
	Confidence float64        `json:"confidence"`
	Entities   map[string]any `json:"entities"`
	Reasoning  string         `json:"reasoning"`
}

// typedEntities converts the model's loose entity map into the tagged bag
// for the classified intent.
func (c classification) typedEntities(kind Type) Entities {
	if len(c.Entities) == 0 {
		return Entities{}
	}

	str := func(key string) string {
		if v, ok := c.Entities[key].(string); ok {
			return strings.TrimSpace(v)
		}
		return ""
	}

	switch kind {
	case TypeSendEmail, TypeReplyEmail:
		return Entities{Send: &SendEntities{
			Recipient: str("recipient"),
			Subject:   str("subject"),
			Body:      str("body"),
		}}
	case TypeSearchEmail:
		field := SearchField(str("field"))
		switch field {
		case FieldSubject, FieldFrom, FieldBody:
		default:
			field = FieldAll
		}
		return Entities{Search: &SearchEntities{Query: str("query"), Field: field}}
	case TypeReadEmail:
		read := &ReadEntities{Filter: str("filter")}
		if v, ok := c.Entities["count"].(float64); ok && v > 0 {
			read.Count = int(v)
		}
		return Entities{Read: read}
	}
	return Entities{}
}
