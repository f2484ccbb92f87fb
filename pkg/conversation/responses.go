package conversation

import (
	"fmt"
	"strings"

	"github.com/voxmail/voxmail/pkg/mail"
)

// Fixed utterances. These are spoken verbatim; changing them changes the
// product's voice, so keep edits deliberate.
const (
	respAskRecipient = "Who would you like to send this email to?"
	respAskSubject   = "What's the subject of your email?"
	respAskBody      = "What would you like to say in the email?"

	respNoEmails    = "You don't have any new emails in your inbox."
	respReadFailed  = "I had trouble accessing your emails. Please try again later."
	respAskQuery    = "What would you like to search for in your emails?"
	respSearchFault = "I had trouble searching your emails. Please try again."

	respReplyStub = "Reply functionality is coming soon. For now, you can send a new email instead."

	respNothingToConfirm = "I'm not sure what you're confirming. How can I help you?"
	respConfirmUnknown   = "I'm not sure what to confirm. How can I help you?"
	respSendFailed       = "I encountered an error sending the email. Please try again."
	respNothingToCancel  = "There's nothing to cancel. How can I help you?"

	respHelp = "I can help you with your emails! You can ask me to: " +
		"Send an email by saying 'Send an email to someone'. " +
		"Read your recent emails by saying 'Read my emails'. " +
		"Or search for specific emails by saying 'Search for' followed by what you're looking for. " +
		"What would you like to do?"

	respUnclear = "I didn't quite understand that. Could you please rephrase? " +
		"You can say 'help' to hear what I can do."

	respAskChange      = "Okay, what would you like to change?"
	respAskChangeField = "What would you like to change? The recipient, subject, or message?"
	respYesOrNo        = "Please say 'yes' to confirm or 'no' to make changes."

	respTurnError = "I'm sorry, I encountered an error. Could you please try again?"

	respGreeting = "Hello! I'm your email assistant. How can I help you today?"
	respGoodbye  = "Goodbye! Talk to you next time you need help with your emails."
	respThanks   = "You're welcome! Is there anything else I can help you with?"
	respNoRepeat = "I haven't said anything yet. How can I help you?"
)

func askForField(field string) string {
	switch field {
	case FieldRecipient:
		return respAskRecipient
	case FieldSubject:
		return respAskSubject
	case FieldBody:
		return respAskBody
	}
	return fmt.Sprintf("What's the %s?", field)
}

func confirmationPrompt(d *Draft) string {
	return fmt.Sprintf("I'm ready to send an email to %s with the subject '%s'. "+
		"The message says: %s. Should I send it?", d.Recipient, d.Subject, d.Body)
}

func sentResponse(recipient string) string {
	return fmt.Sprintf("Great! I've sent your email to %s.", recipient)
}

func cancelledResponse(kind string) string {
	return fmt.Sprintf("Okay, I've cancelled the %s. What would you like to do instead?", kind)
}

// readInlineMax bounds how many emails are read aloud in one response.
const readInlineMax = 3

func readResponse(emails []mail.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You have %d recent email%s. ", len(emails), plural(len(emails)))
	for i, e := range emails {
		if i >= readInlineMax {
			break
		}
		fmt.Fprintf(&b, "Email %d: From %s, subject: %s. ", i+1, e.SenderName, e.Subject)
	}
	if len(emails) > readInlineMax {
		fmt.Fprintf(&b, "And %d more. ", len(emails)-readInlineMax)
	}
	b.WriteString("Would you like me to read any of these in detail?")
	return b.String()
}

// searchInlineMax bounds how many search hits are read aloud.
const searchInlineMax = 2

func searchResponse(query string, results []mail.SearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I found %d email%s matching '%s'. ", len(results), plural(len(results)), query)
	for i, r := range results {
		if i >= searchInlineMax {
			break
		}
		fmt.Fprintf(&b, "Result %d: From %s, subject: %s. ", i+1, r.SenderName, r.Subject)
	}
	if len(results) > searchInlineMax {
		fmt.Fprintf(&b, "And %d more results. ", len(results)-searchInlineMax)
	}
	return strings.TrimSpace(b.String())
}

func noMatchesResponse(query string) string {
	return fmt.Sprintf("I couldn't find any emails matching '%s'.", query)
}

func plural(n int) string {
	if n > 1 {
		return "s"
	}
	return ""
}
