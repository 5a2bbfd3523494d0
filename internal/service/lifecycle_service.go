package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/spec-kit/slack-itop-bridge/internal/chat"
	"github.com/spec-kit/slack-itop-bridge/internal/domain"
	"github.com/spec-kit/slack-itop-bridge/internal/formatter"
	"github.com/spec-kit/slack-itop-bridge/internal/observability"
	"github.com/spec-kit/slack-itop-bridge/internal/tracker"
	apperrors "github.com/spec-kit/slack-itop-bridge/pkg/util/errorutil"
)

const (
	reactionSeen     = "eyes"
	reactionResolved = "white_check_mark"
)

// Ticketing is the subset of the iTop client used by the lifecycle.
type Ticketing interface {
	CreateTicket(ctx context.Context, req domain.TicketRequest) (string, error)
	AppendPublicLog(ctx context.Context, ref, text string) error
}

// Identity resolves Slack members from the identity store.
type Identity interface {
	CallerName(ctx context.Context, userID string) domain.Caller
	ResolveByName(ctx context.Context, name string) (string, bool, error)
}

// LifecycleService moves a thread through open, assigned and resolved.
type LifecycleService struct {
	chat         chat.Client
	tickets      Ticketing
	tracker      tracker.Tracker
	identity     Identity
	sanitizer    *formatter.Sanitizer
	workspaceURL string
	organization string
	metrics      *observability.Metrics
	logger       *zap.Logger
}

// LifecycleDependencies bundles collaborators.
type LifecycleDependencies struct {
	Chat         chat.Client
	Tickets      Ticketing
	Tracker      tracker.Tracker
	Identity     Identity
	Sanitizer    *formatter.Sanitizer
	WorkspaceURL string
	Organization string
	Metrics      *observability.Metrics
	Logger       *zap.Logger
}

// NewLifecycleService creates the service.
func NewLifecycleService(deps LifecycleDependencies) *LifecycleService {
	sanitizer := deps.Sanitizer
	if sanitizer == nil {
		sanitizer = formatter.NewSanitizer("", "")
	}
	return &LifecycleService{
		chat:         deps.Chat,
		tickets:      deps.Tickets,
		tracker:      deps.Tracker,
		identity:     deps.Identity,
		sanitizer:    sanitizer,
		workspaceURL: deps.WorkspaceURL,
		organization: deps.Organization,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
	}
}

// Create opens a ticket for a mention unless its thread already has one.
// It returns the ticket ref, or "" when the thread was already tracked.
// A failed ticket submission leaves the thread marked open.
func (s *LifecycleService) Create(ctx context.Context, ev domain.MentionEvent) (string, error) {
	thread := ev.Thread()
	log := s.logger.With(zap.String("thread", thread.String()), zap.String("user", ev.User))

	open, err := s.tracker.IsOpen(ctx, thread)
	if err != nil {
		return "", fmt.Errorf("check tracker: %w", err)
	}
	if open {
		s.metrics.DuplicateMention()
		log.Info("thread already has an open ticket")
		text := fmt.Sprintf("Hi <@%s>, we are resolving the ticket... Once we have any update, you will see it here. Stay tuned.", ev.User)
		return "", s.reply(ctx, thread, text)
	}

	if err := s.tracker.MarkOpen(ctx, thread); err != nil {
		return "", fmt.Errorf("mark thread open: %w", err)
	}

	req := domain.TicketRequest{
		Organization: s.organization,
		Caller:       s.identity.CallerName(ctx, ev.User),
		Title:        formatter.DeriveTitle(ev.Text),
		Description:  s.sanitizer.Description(ev.Text),
		SlackAddress: thread.Permalink(s.workspaceURL),
	}
	ref, err := s.tickets.CreateTicket(ctx, req)
	if err != nil {
		s.metrics.UpstreamFailure("itop.create")
		log.Error("failed to create iTop ticket", zap.Error(err))
		return "", apperrors.NewUpstreamError("itop.create", err)
	}
	s.metrics.TicketCreated()
	log.Info("ticket created", zap.String("ticket", ref), zap.String("title", req.Title))

	text := fmt.Sprintf("Hi <@%s>, your request has been received and a ticket has been created with ticket number %s. You will be updated with the progress of this ticket.", ev.User, ref)
	return ref, s.reply(ctx, thread, text)
}

// Assigned marks the thread as seen and tells the author and the assignee.
// An assignee missing from the identity store only loses the direct message.
func (s *LifecycleService) Assigned(ctx context.Context, n domain.Notice) error {
	log := s.logger.With(zap.String("thread", n.Thread.String()), zap.String("ticket", n.TicketRef))

	first, err := s.chat.FirstMessage(ctx, n.Thread)
	if err != nil {
		s.metrics.UpstreamFailure("slack.first_message")
		return apperrors.NewUpstreamError("slack.first_message", err)
	}

	assigneeID, found, err := s.identity.ResolveByName(ctx, n.AssigneeName)
	if err != nil {
		return fmt.Errorf("resolve assignee: %w", err)
	}

	if err := s.ensureSeen(ctx, n.Thread); err != nil {
		log.Warn("could not mark thread as seen", zap.Error(err))
	}

	text := fmt.Sprintf("Hi <@%s>, your ticket is assigned to %s.", first.User, n.AssigneeName)
	if err := s.reply(ctx, n.Thread, text); err != nil {
		return err
	}
	s.metrics.TicketAssigned()

	if !found {
		log.Warn("assignee not in identity store; skipping direct message", zap.String("assignee", n.AssigneeName))
		return nil
	}

	dm, err := s.chat.OpenDM(ctx, assigneeID)
	if err != nil {
		s.metrics.UpstreamFailure("slack.open_dm")
		return apperrors.NewUpstreamError("slack.open_dm", err)
	}
	text = fmt.Sprintf("Hi <@%s>, you have been assigned to %s. \n\nLink to Slack: %s", assigneeID, n.TicketRef, n.Link)
	if err := s.chat.PostMessage(ctx, dm, text); err != nil {
		s.metrics.UpstreamFailure("slack.post_message")
		return apperrors.NewUpstreamError("slack.post_message", err)
	}
	log.Info("assignment relayed", zap.String("assignee", assigneeID))
	return nil
}

// ensureSeen adds the seen reaction unless it is already there. Every
// failure here is best-effort.
func (s *LifecycleService) ensureSeen(ctx context.Context, thread domain.ThreadKey) error {
	names, err := s.chat.Reactions(ctx, thread)
	readErr := apperrors.NewBestEffort("reactions.get", err)
	if err == nil && slices.Contains(names, reactionSeen) {
		return nil
	}
	addErr := apperrors.NewBestEffort("reactions.add", s.chat.AddReaction(ctx, thread, reactionSeen))
	return errors.Join(readErr, addErr)
}

// Resolved flags the thread, closes it in the tracker and copies the
// human replies into the ticket's public log.
func (s *LifecycleService) Resolved(ctx context.Context, n domain.Notice) error {
	log := s.logger.With(zap.String("thread", n.Thread.String()), zap.String("ticket", n.TicketRef))

	first, err := s.chat.FirstMessage(ctx, n.Thread)
	if err != nil {
		s.metrics.UpstreamFailure("slack.first_message")
		return apperrors.NewUpstreamError("slack.first_message", err)
	}

	if err := s.chat.AddReaction(ctx, n.Thread, reactionResolved); err != nil {
		s.metrics.UpstreamFailure("slack.add_reaction")
		return apperrors.NewUpstreamError("slack.add_reaction", err)
	}
	if err := s.chat.RemoveReaction(ctx, n.Thread, reactionSeen); err != nil {
		log.Warn("could not remove seen reaction", zap.Error(apperrors.NewBestEffort("reactions.remove", err)))
	}

	text := fmt.Sprintf("Hi <@%s>, your ticket has been resolved, please check.", first.User)
	if err := s.reply(ctx, n.Thread, text); err != nil {
		return err
	}

	removed, err := s.tracker.MarkClosed(ctx, n.Thread)
	if err != nil {
		return fmt.Errorf("mark thread closed: %w", err)
	}
	if removed == 0 {
		log.Info("resolved thread was not tracked")
	}
	s.metrics.TicketResolved()

	return s.forwardTranscript(ctx, n)
}

// forwardTranscript sends every human reply after the opening message, in
// order, and stops at the first failure.
func (s *LifecycleService) forwardTranscript(ctx context.Context, n domain.Notice) error {
	msgs, err := s.chat.ThreadReplies(ctx, n.Thread)
	if err != nil {
		s.metrics.UpstreamFailure("slack.replies")
		return apperrors.NewUpstreamError("slack.replies", err)
	}

	skippedOpening := false
	sent := 0
	for _, m := range msgs {
		if !m.FromHuman() {
			continue
		}
		if !skippedOpening {
			skippedOpening = true
			continue
		}
		if err := s.tickets.AppendPublicLog(ctx, n.TicketRef, m.Text); err != nil {
			s.metrics.UpstreamFailure("itop.update")
			s.logger.Error("failed to send conversation to iTop",
				zap.String("ticket", n.TicketRef), zap.Int("sent", sent), zap.Error(err))
			return apperrors.NewUpstreamError("itop.update", err)
		}
		sent++
	}
	s.logger.Info("conversation sent to iTop", zap.String("ticket", n.TicketRef), zap.Int("messages", sent))
	return nil
}

func (s *LifecycleService) reply(ctx context.Context, thread domain.ThreadKey, text string) error {
	if err := s.chat.PostThreadReply(ctx, thread, text); err != nil {
		s.metrics.UpstreamFailure("slack.post_message")
		return apperrors.NewUpstreamError("slack.post_message", err)
	}
	return nil
}
