// Package chat is the Slack capability handed to the services.
package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/spec-kit/slack-itop-bridge/internal/domain"
)

// ErrMessageNotFound is returned when a thread's first message is missing.
var ErrMessageNotFound = errors.New("message not found")

// Client lists the Slack operations the bridge performs.
type Client interface {
	PostMessage(ctx context.Context, channel, text string) error
	PostThreadReply(ctx context.Context, thread domain.ThreadKey, text string) error
	PostEphemeral(ctx context.Context, channel, user, text string) error
	AddReaction(ctx context.Context, thread domain.ThreadKey, name string) error
	RemoveReaction(ctx context.Context, thread domain.ThreadKey, name string) error
	Reactions(ctx context.Context, thread domain.ThreadKey) ([]string, error)
	OpenDM(ctx context.Context, user string) (string, error)
	FirstMessage(ctx context.Context, thread domain.ThreadKey) (domain.ThreadMessage, error)
	ThreadReplies(ctx context.Context, thread domain.ThreadKey) ([]domain.ThreadMessage, error)
	ListMembers(ctx context.Context) ([]domain.WorkspaceUser, error)
	UserInfo(ctx context.Context, user string) (domain.WorkspaceUser, error)
}

// SlackClient implements Client on the Slack Web API.
type SlackClient struct {
	api    *slack.Client
	logger *zap.Logger
}

// NewSlackClient wraps an API client.
func NewSlackClient(api *slack.Client, logger *zap.Logger) *SlackClient {
	return &SlackClient{api: api, logger: logger}
}

func (c *SlackClient) PostMessage(ctx context.Context, channel, text string) error {
	_, _, err := c.api.PostMessageContext(ctx, channel, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("chat.postMessage: %w", err)
	}
	return nil
}

func (c *SlackClient) PostThreadReply(ctx context.Context, thread domain.ThreadKey, text string) error {
	_, _, err := c.api.PostMessageContext(ctx, thread.Channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionTS(thread.TS),
	)
	if err != nil {
		return fmt.Errorf("chat.postMessage thread %s: %w", thread, err)
	}
	return nil
}

func (c *SlackClient) PostEphemeral(ctx context.Context, channel, user, text string) error {
	if _, err := c.api.PostEphemeralContext(ctx, channel, user, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("chat.postEphemeral: %w", err)
	}
	return nil
}

// AddReaction treats an existing reaction as success.
func (c *SlackClient) AddReaction(ctx context.Context, thread domain.ThreadKey, name string) error {
	err := c.api.AddReactionContext(ctx, name, slack.NewRefToMessage(thread.Channel, thread.TS))
	if err != nil && !isSlackError(err, "already_reacted") {
		return fmt.Errorf("reactions.add %s: %w", name, err)
	}
	return nil
}

// RemoveReaction treats a missing reaction as success.
func (c *SlackClient) RemoveReaction(ctx context.Context, thread domain.ThreadKey, name string) error {
	err := c.api.RemoveReactionContext(ctx, name, slack.NewRefToMessage(thread.Channel, thread.TS))
	if err != nil && !isSlackError(err, "no_reaction") {
		return fmt.Errorf("reactions.remove %s: %w", name, err)
	}
	return nil
}

func (c *SlackClient) Reactions(ctx context.Context, thread domain.ThreadKey) ([]string, error) {
	items, err := c.api.GetReactionsContext(ctx,
		slack.NewRefToMessage(thread.Channel, thread.TS), slack.NewGetReactionsParameters())
	if err != nil {
		return nil, fmt.Errorf("reactions.get: %w", err)
	}
	names := make([]string, 0, len(items))
	for _, r := range items {
		names = append(names, r.Name)
	}
	return names, nil
}

func (c *SlackClient) OpenDM(ctx context.Context, user string) (string, error) {
	ch, _, _, err := c.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{Users: []string{user}})
	if err != nil {
		return "", fmt.Errorf("conversations.open: %w", err)
	}
	return ch.ID, nil
}

// FirstMessage fetches the message at the thread timestamp itself.
func (c *SlackClient) FirstMessage(ctx context.Context, thread domain.ThreadKey) (domain.ThreadMessage, error) {
	resp, err := c.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: thread.Channel,
		Latest:    thread.TS,
		Inclusive: true,
		Limit:     1,
	})
	if err != nil {
		return domain.ThreadMessage{}, fmt.Errorf("conversations.history: %w", err)
	}
	for _, m := range resp.Messages {
		if m.Timestamp == thread.TS {
			return toThreadMessage(m), nil
		}
	}
	return domain.ThreadMessage{}, fmt.Errorf("thread %s: %w", thread, ErrMessageNotFound)
}

// ThreadReplies returns the whole thread, parent first, following cursors.
func (c *SlackClient) ThreadReplies(ctx context.Context, thread domain.ThreadKey) ([]domain.ThreadMessage, error) {
	params := &slack.GetConversationRepliesParameters{ChannelID: thread.Channel, Timestamp: thread.TS}
	var out []domain.ThreadMessage
	for {
		msgs, hasMore, cursor, err := c.api.GetConversationRepliesContext(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("conversations.replies: %w", err)
		}
		for _, m := range msgs {
			out = append(out, toThreadMessage(m))
		}
		if !hasMore || cursor == "" {
			return out, nil
		}
		params.Cursor = cursor
	}
}

// ListMembers pages through users.list.
func (c *SlackClient) ListMembers(ctx context.Context) ([]domain.WorkspaceUser, error) {
	users, err := c.api.GetUsersContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("users.list: %w", err)
	}
	out := make([]domain.WorkspaceUser, 0, len(users))
	for _, u := range users {
		out = append(out, toWorkspaceUser(u))
	}
	c.logger.Debug("listed workspace members", zap.Int("count", len(out)))
	return out, nil
}

func (c *SlackClient) UserInfo(ctx context.Context, user string) (domain.WorkspaceUser, error) {
	u, err := c.api.GetUserInfoContext(ctx, user)
	if err != nil {
		return domain.WorkspaceUser{}, fmt.Errorf("users.info: %w", err)
	}
	return toWorkspaceUser(*u), nil
}

func toThreadMessage(m slack.Message) domain.ThreadMessage {
	return domain.ThreadMessage{
		User:      m.User,
		BotID:     m.BotID,
		Text:      m.Text,
		Timestamp: m.Timestamp,
	}
}

func toWorkspaceUser(u slack.User) domain.WorkspaceUser {
	return domain.WorkspaceUser{
		Member: domain.Member{
			ID:        u.ID,
			Username:  u.Name,
			FirstName: u.Profile.FirstName,
			LastName:  u.Profile.LastName,
			RealName:  u.Profile.RealName,
			Email:     u.Profile.Email,
			IsAdmin:   u.IsAdmin,
		},
		Deleted:   u.Deleted,
		IsBot:     u.IsBot,
		IsAppUser: u.IsAppUser,
	}
}

func isSlackError(err error, code string) bool {
	var resp slack.SlackErrorResponse
	if errors.As(err, &resp) {
		return resp.Err == code
	}
	return err.Error() == code
}
