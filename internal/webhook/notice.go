// Package webhook parses the text blocks iTop posts on ticket status changes.
package webhook

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spec-kit/slack-itop-bridge/internal/domain"
)

const (
	linkMarker     = "Link to Slack:"
	assigneeMarker = "Assigned to:"
	ticketPrefix   = "R-"
	ticketCodeLen  = 6
	tsSecondsLen   = 10
)

// ErrMalformedNotice is wrapped by every parse failure.
var ErrMalformedNotice = errors.New("malformed ticket notice")

// Payload is the JSON body iTop sends to both webhook routes.
type Payload struct {
	Blocks []struct {
		Text struct {
			Text string `json:"text"`
		} `json:"text"`
	} `json:"blocks"`
}

// Text returns blocks[0].text.text.
func (p Payload) Text() (string, error) {
	if len(p.Blocks) == 0 || p.Blocks[0].Text.Text == "" {
		return "", fmt.Errorf("%w: blocks[0].text.text is empty", ErrMalformedNotice)
	}
	return p.Blocks[0].Text.Text, nil
}

// Parse extracts the thread link, ticket ref and, for assignments, the
// assignee name from a notice.
func Parse(text string, kind domain.NoticeKind) (domain.Notice, error) {
	notice := domain.Notice{Kind: kind}

	link, thread, err := parseLink(text)
	if err != nil {
		return domain.Notice{}, err
	}
	notice.Link = link
	notice.Thread = thread

	if notice.TicketRef, err = parseTicketRef(text); err != nil {
		return domain.Notice{}, err
	}

	if kind == domain.NoticeAssigned {
		if notice.AssigneeName, err = parseAssignee(text); err != nil {
			return domain.Notice{}, err
		}
	}
	return notice, nil
}

func parseLink(text string) (string, domain.ThreadKey, error) {
	idx := strings.Index(text, linkMarker)
	if idx < 0 {
		return "", domain.ThreadKey{}, fmt.Errorf("%w: missing %q", ErrMalformedNotice, linkMarker)
	}
	fields := strings.Fields(text[idx+len(linkMarker):])
	if len(fields) == 0 {
		return "", domain.ThreadKey{}, fmt.Errorf("%w: empty slack link", ErrMalformedNotice)
	}

	// mrkdwn may wrap the address as <url|label>.
	raw := strings.Trim(fields[0], "<>")
	if pipe := strings.IndexByte(raw, '|'); pipe >= 0 {
		raw = raw[:pipe]
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", domain.ThreadKey{}, fmt.Errorf("%w: slack link: %v", ErrMalformedNotice, err)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 2 {
		return "", domain.ThreadKey{}, fmt.Errorf("%w: slack link %q has no channel", ErrMalformedNotice, raw)
	}
	ts, err := threadTS(segments[len(segments)-1])
	if err != nil {
		return "", domain.ThreadKey{}, err
	}
	channel := segments[len(segments)-2]
	if channel == "" {
		return "", domain.ThreadKey{}, fmt.Errorf("%w: slack link %q has no channel", ErrMalformedNotice, raw)
	}
	return raw, domain.ThreadKey{Channel: channel, TS: ts}, nil
}

// threadTS turns "p1699999999123456" into "1699999999.123456".
func threadTS(segment string) (string, error) {
	digits, ok := strings.CutPrefix(segment, "p")
	if !ok || len(digits) <= tsSecondsLen || strings.Trim(digits, "0123456789") != "" {
		return "", fmt.Errorf("%w: %q is not a message timestamp", ErrMalformedNotice, segment)
	}
	return digits[:tsSecondsLen] + "." + digits[tsSecondsLen:], nil
}

func parseTicketRef(text string) (string, error) {
	idx := strings.Index(text, ticketPrefix)
	if idx < 0 {
		return "", fmt.Errorf("%w: missing ticket reference", ErrMalformedNotice)
	}
	code := []rune(text[idx+len(ticketPrefix):])
	if len(code) < ticketCodeLen {
		return "", fmt.Errorf("%w: truncated ticket reference", ErrMalformedNotice)
	}
	return ticketPrefix + string(code[:ticketCodeLen]), nil
}

func parseAssignee(text string) (string, error) {
	idx := strings.Index(text, assigneeMarker)
	if idx < 0 {
		return "", fmt.Errorf("%w: missing %q", ErrMalformedNotice, assigneeMarker)
	}
	rest := text[idx+len(assigneeMarker):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	name := strings.TrimSpace(rest)
	if name == "" {
		return "", fmt.Errorf("%w: empty assignee", ErrMalformedNotice)
	}
	return name, nil
}
