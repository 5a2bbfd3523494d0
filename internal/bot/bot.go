// Package bot receives Slack mentions and admin slash commands over Socket Mode.
package bot

import (
	"context"
	"fmt"
	"net/http"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"go.uber.org/zap"

	"github.com/spec-kit/slack-itop-bridge/internal/chat"
	"github.com/spec-kit/slack-itop-bridge/internal/domain"
	"github.com/spec-kit/slack-itop-bridge/internal/service"
	apperrors "github.com/spec-kit/slack-itop-bridge/pkg/util/errorutil"
)

const (
	CommandStoreUserInfo  = "/store-user-info"
	CommandUpdateUserInfo = "/update-user-info"

	msgForbidden = "You do not have sufficient permissions to run this command."
	msgStored    = "User information has been stored in the database"
	msgUpdated   = "User information has been updated in the database"
)

// Lifecycle handles new mentions.
type Lifecycle interface {
	Create(ctx context.Context, ev domain.MentionEvent) (string, error)
}

// Members runs the admin-only identity store commands.
type Members interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
	Import(ctx context.Context) (service.ImportResult, error)
	Refresh(ctx context.Context) (service.ImportResult, error)
}

// Bot dispatches Socket Mode envelopes to the services.
type Bot struct {
	socket    *socketmode.Client
	chat      chat.Client
	lifecycle Lifecycle
	members   Members
	logger    *zap.Logger
}

// Dependencies bundles collaborators for the bot.
type Dependencies struct {
	Chat      chat.Client
	Lifecycle Lifecycle
	Members   Members
	Logger    *zap.Logger
}

// New creates a bot. api must carry an app-level token.
func New(api *slack.Client, debug bool, deps Dependencies) *Bot {
	return &Bot{
		socket:    socketmode.New(api, socketmode.OptionDebug(debug)),
		chat:      deps.Chat,
		lifecycle: deps.Lifecycle,
		members:   deps.Members,
		logger:    deps.Logger,
	}
}

// Run blocks until ctx is canceled or the connection fails for good.
func (b *Bot) Run(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-b.socket.Events:
				if !ok {
					return
				}
				if evt.Request != nil {
					b.socket.Ack(*evt.Request)
				}
				b.dispatch(ctx, evt)
			}
		}
	}()
	return b.socket.RunContext(ctx)
}

func (b *Bot) dispatch(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		b.logger.Info("connecting to Socket Mode")
	case socketmode.EventTypeConnected:
		b.logger.Info("connected to Socket Mode")
	case socketmode.EventTypeConnectionError:
		b.logger.Warn("socket mode connection error", zap.Any("data", evt.Data))
	case socketmode.EventTypeEventsAPI:
		if apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent); ok {
			b.handleEventsAPI(ctx, apiEvent)
		}
	case socketmode.EventTypeSlashCommand:
		if cmd, ok := evt.Data.(slack.SlashCommand); ok {
			if err := b.HandleCommand(ctx, cmd); err != nil {
				b.logCommandError(cmd, err)
			}
		}
	}
}

func (b *Bot) handleEventsAPI(ctx context.Context, event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	mention, ok := event.InnerEvent.Data.(*slackevents.AppMentionEvent)
	if !ok {
		return
	}
	if err := b.HandleMention(ctx, mention); err != nil {
		b.logger.Error("mention handling failed",
			zap.String("channel", mention.Channel), zap.String("ts", mention.TimeStamp), zap.Error(err))
	}
}

func (b *Bot) logCommandError(cmd slack.SlashCommand, err error) {
	de := apperrors.ToDomainError(err)
	fields := []zap.Field{
		zap.String("command", cmd.Command),
		zap.String("user", cmd.UserID),
		zap.String("code", de.Code),
		zap.Error(err),
	}
	if de.HTTPStatus == http.StatusForbidden {
		b.logger.Warn("slash command refused", fields...)
		return
	}
	b.logger.Error("slash command failed", fields...)
}

// HandleMention turns an app_mention into a ticket.
func (b *Bot) HandleMention(ctx context.Context, ev *slackevents.AppMentionEvent) error {
	_, err := b.lifecycle.Create(ctx, domain.MentionEvent{
		Channel:  ev.Channel,
		User:     ev.User,
		Text:     ev.Text,
		TS:       ev.TimeStamp,
		ThreadTS: ev.ThreadTimeStamp,
	})
	return err
}

// HandleCommand runs an admin slash command and answers ephemerally.
func (b *Bot) HandleCommand(ctx context.Context, cmd slack.SlashCommand) error {
	var run func(context.Context) (service.ImportResult, error)
	var done string
	switch cmd.Command {
	case CommandStoreUserInfo:
		run, done = b.members.Import, msgStored
	case CommandUpdateUserInfo:
		run, done = b.members.Refresh, msgUpdated
	default:
		b.logger.Debug("ignoring unknown command", zap.String("command", cmd.Command))
		return nil
	}

	admin, err := b.members.IsAdmin(ctx, cmd.UserID)
	if err != nil {
		return fmt.Errorf("admin check: %w", err)
	}
	if !admin {
		if err := b.chat.PostEphemeral(ctx, cmd.ChannelID, cmd.UserID, msgForbidden); err != nil {
			return err
		}
		return apperrors.NewForbidden(cmd.Command + " requires a workspace admin")
	}

	res, err := run(ctx)
	if err != nil {
		return err
	}
	b.logger.Info("identity store updated",
		zap.String("command", cmd.Command), zap.Int("stored", res.Stored), zap.Int64("deleted", res.Deleted))
	return b.chat.PostEphemeral(ctx, cmd.ChannelID, cmd.UserID, done)
}
