package domain

import (
	"fmt"
	"strings"
)

// ThreadKey identifies a Slack conversation thread.
type ThreadKey struct {
	Channel string
	TS      string
}

// Token is the form stored by the tracker: the thread timestamp alone,
// matching existing tracker files. Two channels with a thread started in
// the same microsecond would share a token.
func (k ThreadKey) Token() string {
	return k.TS
}

// Permalink renders the archive address of the thread's first message.
func (k ThreadKey) Permalink(workspaceURL string) string {
	return fmt.Sprintf("%s/archives/%s/p%s",
		strings.TrimRight(workspaceURL, "/"), k.Channel, strings.ReplaceAll(k.TS, ".", ""))
}

func (k ThreadKey) String() string {
	return k.Channel + "/" + k.TS
}

// ThreadMessage is one Slack message inside a thread.
type ThreadMessage struct {
	User      string
	BotID     string
	Text      string
	Timestamp string
}

// FromHuman reports whether the message was written by a person and carries text.
func (m ThreadMessage) FromHuman() bool {
	return m.User != "" && m.Text != "" && m.BotID == ""
}

// MentionEvent is an inbound app mention.
type MentionEvent struct {
	Channel  string
	User     string
	Text     string
	TS       string
	ThreadTS string
}

// Thread returns the thread the mention belongs to, falling back to the
// message itself when it is not a reply.
func (e MentionEvent) Thread() ThreadKey {
	ts := e.ThreadTS
	if ts == "" {
		ts = e.TS
	}
	return ThreadKey{Channel: e.Channel, TS: ts}
}
