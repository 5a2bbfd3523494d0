package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/slack-itop-bridge/internal/api/http/handlers"
	"github.com/spec-kit/slack-itop-bridge/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health   *handlers.HealthHandler
	Webhooks *handlers.WebhookHandler
	Metrics  *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	RegisterOpsRoutes(app, cfg.Health, cfg.Metrics)

	app.Post("/ticketassigned", cfg.Webhooks.TicketAssigned)
	app.Post("/ticketresolve", cfg.Webhooks.TicketResolved)
}

// RegisterOpsRoutes wires health probes and /metrics. The bot process
// serves only these.
func RegisterOpsRoutes(app *fiber.App, health *handlers.HealthHandler, metrics *observability.Metrics) {
	app.Get("/health/live", health.Live)
	app.Get("/health/ready", health.Ready)

	if metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	}
}
