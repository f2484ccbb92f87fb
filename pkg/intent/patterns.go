package intent

import (
	"regexp"
	"strconv"
	"strings"
)

// patternRule binds an intent to the phrasings that trigger it. Rules are
// ordered; the first match wins, so the more specific email actions sit
// ahead of the broad search rule.
type patternRule struct {
	kind     Type
	patterns []*regexp.Regexp
}

var patternRules = []patternRule{
	{TypeSendEmail, compileAll(
		`\b(?:send|write|compose)\s+(?:an?\s+)?email\b`,
		`\bemail\s+(?:to\s+)?\w+`,
		`\b(?:send|write)\s+(?:a\s+)?message\b`,
	)},
	{TypeReadEmail, compileAll(
		`\b(?:read|check|show)\s+(?:my\s+)?(?:email|inbox|messages)\b`,
		`\b(?:any|new)\s+(?:email|messages)\b`,
		`\bwhat'?s?\s+in\s+my\s+inbox\b`,
	)},
	{TypeSearchEmail, compileAll(
		`\b(?:search|find|look)\s+(?:for\s+)?.+`,
		`\bwhere\s+(?:is|are)\s+.+\s+email`,
	)},
	{TypeReplyEmail, compileAll(
		`\breply\s+(?:to\s+)?(?:this|that|the)?\s*email\b`,
		`\brespond\s+to\s+(?:this|that|the)?\s*email\b`,
	)},
	{TypeConfirm, compileAll(
		`^(?:yes|yeah|yep|sure|correct|right|confirm|send it|go ahead|ok|okay)[\s.!]*$`,
	)},
	{TypeCancel, compileAll(
		`^(?:no|nope|cancel|stop|nevermind|forget it|abort)[\s.!]*$`,
	)},
	{TypeHelp, compileAll(
		`\bhelp\b`,
		`\bwhat can you do\b`,
		`\b(?:show|list)\s+commands\b`,
	)},
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// matchPatterns returns the first intent whose rule matches the lowered,
// trimmed text, or Unclear when nothing fires.
func matchPatterns(text string) (Type, bool) {
	lowered := strings.ToLower(strings.TrimSpace(text))
	for _, rule := range patternRules {
		for _, p := range rule.patterns {
			if p.MatchString(lowered) {
				return rule.kind, true
			}
		}
	}
	return TypeUnclear, false
}

var (
	emailAddrRe = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	toNameRe    = regexp.MustCompile(`to\s+(\w+(?:\s+\w+)?)`)
	subjectRe   = regexp.MustCompile(`(?:subject|about)[:\s]+(.+?)(?:\.|$)`)
	searchRe    = regexp.MustCompile(`(?:search for|find|look for|where is|where are)\s+(.+)`)
	countRe     = regexp.MustCompile(`\b(\d+|one|two|three|four|five)\b`)
)

var countWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
}

// extractEntities pulls entities out of the raw text for the intents that
// carry them. Other intents return an empty bag.
func extractEntities(text string, kind Type) Entities {
	switch kind {
	case TypeSendEmail, TypeReplyEmail:
		return Entities{Send: extractSendEntities(text)}
	case TypeSearchEmail:
		return Entities{Search: extractSearchEntities(text)}
	case TypeReadEmail:
		return Entities{Read: extractReadEntities(text)}
	}
	return Entities{}
}

func extractSendEntities(text string) *SendEntities {
	out := &SendEntities{}
	lowered := strings.ToLower(text)

	// An explicit address wins over a "to <name>" phrase.
	if m := emailAddrRe.FindString(text); m != "" {
		out.Recipient = m
	} else if m := toNameRe.FindStringSubmatch(lowered); m != nil {
		name := strings.TrimSpace(m[1])
		switch name {
		case "email", "message", "mail":
		default:
			out.Recipient = name
		}
	}

	if m := subjectRe.FindStringSubmatch(lowered); m != nil {
		out.Subject = strings.TrimSpace(m[1])
	}
	return out
}

func extractSearchEntities(text string) *SearchEntities {
	out := &SearchEntities{Field: FieldAll}
	lowered := strings.ToLower(text)

	if m := searchRe.FindStringSubmatch(lowered); m != nil {
		out.Query = strings.TrimSpace(m[1])
	}

	switch {
	case strings.Contains(lowered, "subject"):
		out.Field = FieldSubject
	case strings.Contains(lowered, "from"):
		out.Field = FieldFrom
	case strings.Contains(lowered, "body"):
		out.Field = FieldBody
	}
	return out
}

func extractReadEntities(text string) *ReadEntities {
	out := &ReadEntities{}
	lowered := strings.ToLower(text)

	if m := countRe.FindStringSubmatch(lowered); m != nil {
		if n, ok := countWords[m[1]]; ok {
			out.Count = n
		} else if n, err := strconv.Atoi(m[1]); err == nil {
			out.Count = n
		}
	}

	switch {
	case strings.Contains(lowered, "unread"):
		out.Filter = "unread"
	case strings.Contains(lowered, "today"):
		out.Filter = "today"
	}
	return out
}
