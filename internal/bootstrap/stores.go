// Package bootstrap builds the stores shared by the bot and webhook processes.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/spec-kit/slack-itop-bridge/internal/api/http/handlers"
	"github.com/spec-kit/slack-itop-bridge/internal/config"
	"github.com/spec-kit/slack-itop-bridge/internal/persistence"
	"github.com/spec-kit/slack-itop-bridge/internal/repository"
	"github.com/spec-kit/slack-itop-bridge/internal/tracker"
)

// Stores holds the identity store and the thread tracker of one process.
type Stores struct {
	Members repository.MemberRepository
	Tracker tracker.Tracker
	// Checks lists the stores probed by /health/ready.
	Checks map[string]handlers.Pinger

	closers []func()
}

// OpenStores opens the identity store (Postgres when a DSN is set, SQLite
// otherwise) and the configured tracker backend.
func OpenStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Stores, error) {
	s := &Stores{Checks: map[string]handlers.Pinger{}}

	if cfg.Postgres.DSN != "" {
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s.closers = append(s.closers, pg.Close)
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				s.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		s.Members = repository.NewMemberRepository(pg.PoolHandle())
		s.Checks["postgres"] = pg
	} else {
		db, err := persistence.NewSQLite(ctx, cfg.SQLite.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		s.closers = append(s.closers, db.Close)
		s.Members = repository.NewSQLiteMemberRepository(db.DB)
		s.Checks["sqlite"] = db
	}

	switch cfg.Tracker.Backend {
	case config.TrackerBackendRedis:
		rdb, err := persistence.NewRedis(ctx, cfg.Redis, logger)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		s.closers = append(s.closers, rdb.Close)
		s.Tracker = tracker.NewRedisTracker(rdb.Client, cfg.Tracker.RedisKey, logger)
		s.Checks["redis"] = rdb
	default:
		s.Tracker = tracker.NewFileTracker(cfg.Tracker.FilePath, logger)
	}

	logger.Info("stores ready",
		zap.String("tracker_backend", cfg.Tracker.Backend),
		zap.Bool("postgres", cfg.Postgres.DSN != ""))
	return s, nil
}

// Close releases every opened store in reverse order.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// NewSlackAPI builds the Web API client from the Slack settings.
func NewSlackAPI(cfg config.SlackConfig) *slack.Client {
	opts := []slack.Option{slack.OptionDebug(cfg.Debug)}
	if cfg.AppToken != "" {
		opts = append(opts, slack.OptionAppLevelToken(cfg.AppToken))
	}
	return slack.New(cfg.BotToken, opts...)
}

// ResolveMentionToken fills cfg.MentionToken with the bot's own "@U…" id
// when it is not configured, so ticket descriptions show the label.
func ResolveMentionToken(ctx context.Context, api *slack.Client, cfg *config.SlackConfig, logger *zap.Logger) error {
	if cfg.MentionToken != "" {
		return nil
	}
	resp, err := api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("resolve bot user: %w", err)
	}
	cfg.MentionToken = "@" + resp.UserID
	logger.Info("resolved bot mention token", zap.String("token", cfg.MentionToken))
	return nil
}
