package formatter

import (
	"html"
	"regexp"
)

var markupPattern = regexp.MustCompile(`<([^>]+)>`)

// Sanitizer converts Slack mrkdwn into a description safe for iTop's HTML field.
type Sanitizer struct {
	mentionToken string
	mentionLabel string
}

// NewSanitizer replaces <mentionToken> with mentionLabel; an empty token disables the substitution.
func NewSanitizer(mentionToken, mentionLabel string) *Sanitizer {
	return &Sanitizer{mentionToken: mentionToken, mentionLabel: mentionLabel}
}

// Description unwraps every <…> token, swaps in the mention label and
// escapes the result once. Bare URLs pass through untouched.
func (s *Sanitizer) Description(text string) string {
	out := markupPattern.ReplaceAllStringFunc(text, func(m string) string {
		inner := m[1 : len(m)-1]
		if s.mentionToken != "" && inner == s.mentionToken {
			return s.mentionLabel
		}
		return inner
	})
	return html.EscapeString(out)
}
