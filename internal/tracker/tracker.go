// Package tracker persists the set of Slack threads with an open iTop ticket.
package tracker

import (
	"context"

	"github.com/spec-kit/slack-itop-bridge/internal/domain"
)

// Tracker is the open-thread set shared by the bot and webhook services.
//
// MarkClosed removes every stored entry that contains the thread's token,
// not only the exact entry, so stored lines with surrounding text are
// still cleared.
type Tracker interface {
	IsOpen(ctx context.Context, thread domain.ThreadKey) (bool, error)
	MarkOpen(ctx context.Context, thread domain.ThreadKey) error
	MarkClosed(ctx context.Context, thread domain.ThreadKey) (int, error)
	List(ctx context.Context) ([]string, error)
}
