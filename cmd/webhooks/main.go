package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/slack-itop-bridge/internal/api/http"
	"github.com/spec-kit/slack-itop-bridge/internal/api/http/handlers"
	"github.com/spec-kit/slack-itop-bridge/internal/bootstrap"
	"github.com/spec-kit/slack-itop-bridge/internal/chat"
	"github.com/spec-kit/slack-itop-bridge/internal/config"
	"github.com/spec-kit/slack-itop-bridge/internal/formatter"
	"github.com/spec-kit/slack-itop-bridge/internal/itop"
	"github.com/spec-kit/slack-itop-bridge/internal/observability"
	"github.com/spec-kit/slack-itop-bridge/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.ValidateWebhooks(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, "webhooks")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, err := bootstrap.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open stores", zap.Error(err))
	}
	defer stores.Close()

	metrics := observability.NewMetrics()
	api := bootstrap.NewSlackAPI(cfg.Slack)
	if err := bootstrap.ResolveMentionToken(ctx, api, &cfg.Slack, logger); err != nil {
		logger.Warn("bot mention token unresolved; mentions stay unwrapped", zap.Error(err))
	}
	chatClient := chat.NewSlackClient(api, logger)

	memberService := service.NewMemberService(service.MemberDependencies{
		MemberRepo:          stores.Members,
		Chat:                chatClient,
		AllowedEmailDomains: cfg.Members.AllowedEmailDomains,
		Logger:              logger,
	})
	lifecycle := service.NewLifecycleService(service.LifecycleDependencies{
		Chat:         chatClient,
		Tickets:      itop.NewClient(cfg.ITop, logger),
		Tracker:      stores.Tracker,
		Identity:     memberService,
		Sanitizer:    formatter.NewSanitizer(cfg.Slack.MentionToken, cfg.Slack.MentionLabel),
		WorkspaceURL: cfg.Slack.WorkspaceURL,
		Organization: cfg.ITop.Organization,
		Metrics:      metrics,
		Logger:       logger,
	})

	app := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:   handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, stores.Checks),
		Webhooks: handlers.NewWebhookHandler(lifecycle, logger),
		Metrics:  metrics,
	})

	go func() {
		logger.Info("webhook server listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
