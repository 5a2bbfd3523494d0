package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Tracker backends.
const (
	TrackerBackendFile  = "file"
	TrackerBackendRedis = "redis"
)

// Config aggregates runtime configuration for both services.
type Config struct {
	App      AppConfig
	Slack    SlackConfig
	ITop     ITopConfig
	Postgres PostgresConfig
	SQLite   SQLiteConfig
	Redis    RedisConfig
	Tracker  TrackerConfig
	Members  MembersConfig
	Logger   LoggerConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	// BotOpsPort serves /metrics and health for the Socket Mode process.
	// Empty disables the listener.
	BotOpsPort string
}

// SlackConfig holds workspace credentials and message settings.
type SlackConfig struct {
	BotToken     string
	AppToken     string
	Debug        bool
	WorkspaceURL string
	// MentionToken is the bracketed mention (without brackets) replaced by
	// MentionLabel in ticket descriptions, normally the bot's own "@U…" id.
	MentionToken string
	MentionLabel string
}

// ITopConfig describes the ticketing endpoint.
type ITopConfig struct {
	Endpoint            string
	BasicAuthentication string
	Organization        string
	TimeoutSeconds      int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// SQLiteConfig is used for the identity store when no Postgres DSN is set.
type SQLiteConfig struct {
	Path string
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// TrackerConfig selects where open thread tokens are persisted.
type TrackerConfig struct {
	Backend  string
	FilePath string
	RedisKey string
}

// MembersConfig controls identity store pruning.
type MembersConfig struct {
	AllowedEmailDomains []string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 5))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 1))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "slack-itop-bridge"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "3001"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			BotOpsPort:            getEnv("BOT_METRICS_PORT", "3002"),
		},
		Slack: SlackConfig{
			BotToken:     os.Getenv("SLACK_BOT_TOKEN"),
			AppToken:     os.Getenv("SLACK_APP_TOKEN"),
			Debug:        getEnvAsBool("SLACK_DEBUG", false),
			WorkspaceURL: strings.TrimRight(getEnv("SLACK_WORKSPACE_URL", "https://xxx.slack.com"), "/"),
			MentionToken: os.Getenv("SLACK_BOT_MENTION"),
			MentionLabel: getEnv("SLACK_BOT_MENTION_LABEL", "xxx Ticketing System"),
		},
		ITop: ITopConfig{
			Endpoint:            os.Getenv("ITOP_API_ENDPOINT"),
			BasicAuthentication: os.Getenv("BASIC_AUTHENTICATION"),
			Organization:        getEnv("ITOP_ORGANIZATION", "xxx"),
			TimeoutSeconds:      getEnvAsInt("ITOP_TIMEOUT_SECONDS", 0),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		SQLite: SQLiteConfig{
			Path: getEnv("SQLITE_PATH", "user_db.sqlite"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Tracker: TrackerConfig{
			Backend:  strings.ToLower(getEnv("TRACKER_BACKEND", TrackerBackendFile)),
			FilePath: getEnv("TRACKER_FILE", "ticketed_threads.txt"),
			RedisKey: getEnv("TRACKER_REDIS_KEY", "ticketed_threads"),
		},
		Members: MembersConfig{
			AllowedEmailDomains: getEnvAsList("MEMBERS_ALLOWED_EMAIL_DOMAINS"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	return cfg, nil
}

// ValidateBot reports settings the Socket Mode listener cannot run without.
func (c *Config) ValidateBot() error {
	var errs []error
	if c.Slack.BotToken == "" {
		errs = append(errs, errors.New("SLACK_BOT_TOKEN is required"))
	}
	if !strings.HasPrefix(c.Slack.AppToken, "xapp-") {
		errs = append(errs, errors.New("SLACK_APP_TOKEN must be an app-level token (xapp-…)"))
	}
	if c.ITop.Endpoint == "" {
		errs = append(errs, errors.New("ITOP_API_ENDPOINT is required"))
	}
	return errors.Join(append(errs, c.Tracker.validate(c.Redis))...)
}

// ValidateWebhooks reports settings the webhook server cannot run without.
func (c *Config) ValidateWebhooks() error {
	var errs []error
	if c.Slack.BotToken == "" {
		errs = append(errs, errors.New("SLACK_BOT_TOKEN is required"))
	}
	if c.ITop.Endpoint == "" {
		errs = append(errs, errors.New("ITOP_API_ENDPOINT is required"))
	}
	return errors.Join(append(errs, c.Tracker.validate(c.Redis))...)
}

func (t TrackerConfig) validate(redis RedisConfig) error {
	switch t.Backend {
	case TrackerBackendFile:
		if t.FilePath == "" {
			return errors.New("TRACKER_FILE is required for the file tracker")
		}
	case TrackerBackendRedis:
		if redis.Addr == "" {
			return errors.New("REDIS_ADDR is required for the redis tracker")
		}
	default:
		return fmt.Errorf("unknown TRACKER_BACKEND %q", t.Backend)
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// BotOpsAddr returns the bot's ops listener address, or "" when disabled.
func (a AppConfig) BotOpsAddr() string {
	if a.BotOpsPort == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", a.Host, a.BotOpsPort)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Timeout returns the outbound call timeout; zero means none.
func (i ITopConfig) Timeout() time.Duration {
	if i.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(i.TimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
