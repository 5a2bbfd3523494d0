package handlers

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/slack-itop-bridge/internal/domain"
	"github.com/spec-kit/slack-itop-bridge/internal/observability"
	"github.com/spec-kit/slack-itop-bridge/internal/webhook"
	apperrors "github.com/spec-kit/slack-itop-bridge/pkg/util/errorutil"
)

// Notices applies parsed iTop notices.
type Notices interface {
	Assigned(ctx context.Context, n domain.Notice) error
	Resolved(ctx context.Context, n domain.Notice) error
}

// WebhookHandler exposes the iTop status-change webhooks.
type WebhookHandler struct {
	notices Notices
	logger  *zap.Logger
}

// NewWebhookHandler constructs handler.
func NewWebhookHandler(notices Notices, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{notices: notices, logger: logger}
}

// TicketAssigned handles POST /ticketassigned.
func (h *WebhookHandler) TicketAssigned(c *fiber.Ctx) error {
	return h.handle(c, domain.NoticeAssigned, h.notices.Assigned)
}

// TicketResolved handles POST /ticketresolve.
func (h *WebhookHandler) TicketResolved(c *fiber.Ctx) error {
	return h.handle(c, domain.NoticeResolved, h.notices.Resolved)
}

func (h *WebhookHandler) handle(c *fiber.Ctx, kind domain.NoticeKind, apply func(context.Context, domain.Notice) error) error {
	var payload webhook.Payload
	if err := json.Unmarshal(c.Body(), &payload); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	text, err := payload.Text()
	if err != nil {
		return apperrors.NewValidationError(err.Error(), nil)
	}
	notice, err := webhook.Parse(text, kind)
	if err != nil {
		h.logger.Warn("rejected ticket notice",
			zap.String("request_id", observability.RequestID(c)), zap.String("kind", string(kind)), zap.Error(err))
		return apperrors.NewValidationError(err.Error(), nil)
	}

	h.logger.Info("ticket notice received",
		zap.String("request_id", observability.RequestID(c)),
		zap.String("kind", string(kind)),
		zap.String("ticket", notice.TicketRef),
		zap.String("thread", notice.Thread.String()))

	if err := apply(c.UserContext(), notice); err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).SendString(" ")
}
