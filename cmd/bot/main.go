package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/slack-itop-bridge/internal/api/http"
	"github.com/spec-kit/slack-itop-bridge/internal/api/http/handlers"
	"github.com/spec-kit/slack-itop-bridge/internal/bootstrap"
	"github.com/spec-kit/slack-itop-bridge/internal/bot"
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
	if err := cfg.ValidateBot(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, "bot")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	if addr := cfg.App.BotOpsAddr(); addr != "" {
		ops := fiber.New(fiber.Config{AppName: cfg.App.Name + "-bot", DisableStartupMessage: true})
		httptransport.RegisterMiddlewares(ops, logger, metrics, cfg.App.RequestTimeout())
		httptransport.RegisterOpsRoutes(ops,
			handlers.NewHealthHandler(cfg.App.Name+"-bot", cfg.App.Version, stores.Checks), metrics)
		go func() {
			logger.Info("bot ops listener", zap.String("addr", addr))
			if err := ops.Listen(addr); err != nil {
				logger.Error("bot ops listener stopped", zap.Error(err))
			}
		}()
		defer ops.Shutdown() //nolint:errcheck
	}

	b := bot.New(api, cfg.Slack.Debug, bot.Dependencies{
		Chat:      chatClient,
		Lifecycle: lifecycle,
		Members:   memberService,
		Logger:    logger,
	})

	logger.Info("bot connecting via socket mode")
	if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("bot stopped", zap.Error(err))
		return
	}
	logger.Info("shutting down")
}
