// Package config loads and validates the runtime configuration of the bot
// platform from environment variables and an optional YAML file.
package config

import (
	"errors"
	"slices"
	"time"
)

// ErrConfiguration wraps every loading or validation failure.
var ErrConfiguration = errors.New("configuration error")

// TokenPlaceholder is the segment of OtherBotsPath replaced by a mirror bot token.
const TokenPlaceholder = "{bot_token}"

// Config is the complete application configuration.
type Config struct {
	Token         string  `mapstructure:"token"           validate:"required"`
	BaseURL       string  `mapstructure:"base_url"        validate:"required,url"`
	DatabaseURL   string  `mapstructure:"database_url"    validate:"required"`
	Host          string  `mapstructure:"web_server_host" validate:"required"`
	Port          int     `mapstructure:"web_server_port" validate:"required,min=1,max=65535"`
	MainBotPath   string  `mapstructure:"main_bot_path"   validate:"required,startswith=/"`
	OtherBotsPath string  `mapstructure:"other_bots_path" validate:"required,startswith=/,contains={bot_token}"`
	Admins        []int64 `mapstructure:"admins"          validate:"required,min=1,dive,gt=0"`

	// WebhookSecret is sent to Telegram on setWebhook and verified on every
	// inbound request when non-empty.
	WebhookSecret string `mapstructure:"webhook_secret"`

	Log       LogConfig       `mapstructure:"log"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Server    ServerConfig    `mapstructure:"server"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Session   SessionConfig   `mapstructure:"session"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Messages  MessagesConfig  `mapstructure:"messages"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"  validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// TelegramConfig tunes the Bot API clients.
type TelegramConfig struct {
	DropPendingUpdates bool          `mapstructure:"drop_pending_updates"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout" validate:"min=1s"`
}

// ServerConfig tunes the webhook HTTP server.
type ServerConfig struct {
	ReadTimeout     time.Duration `mapstructure:"read_timeout"     validate:"min=1s"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"    validate:"min=1s"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=1s"`
}

// BroadcastConfig tunes the fan-out loop.
type BroadcastConfig struct {
	SendInterval time.Duration `mapstructure:"send_interval" validate:"min=0"`
	ProgressStep int           `mapstructure:"progress_step" validate:"min=1,max=100"`
	StagingDir   string        `mapstructure:"staging_dir"`
}

// SessionConfig controls conversation state expiry.
type SessionConfig struct {
	TTL time.Duration `mapstructure:"ttl" validate:"min=1m"`
}

// CacheConfig controls retention of captured business messages. Zero keeps them forever.
type CacheConfig struct {
	Retention time.Duration `mapstructure:"retention" validate:"min=0"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"startswith=/"`
}

// MessagesConfig holds user-facing texts that operators may override.
type MessagesConfig struct {
	Welcome       string `mapstructure:"welcome"        validate:"required"`
	NotAuthorized string `mapstructure:"not_authorized" validate:"required"`
	GeneralError  string `mapstructure:"general_error"  validate:"required"`
	TutorialURL   string `mapstructure:"tutorial_url"   validate:"omitempty,url"`
	ChannelURL    string `mapstructure:"channel_url"    validate:"omitempty,url"`
}

// SchedulerConfig lists the scheduled maintenance tasks.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks" validate:"dive"`
}

// TaskConfig configures one scheduled task.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"required_if=Enabled true"`
}

// IsAdmin reports whether userID is one of the configured administrators.
func (c *Config) IsAdmin(userID int64) bool {
	return slices.Contains(c.Admins, userID)
}

// MainWebhookURL is where Telegram delivers updates for the main bot.
func (c *Config) MainWebhookURL() string {
	return joinURL(c.BaseURL, c.MainBotPath)
}

// ListenAddr is the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return joinHostPort(c.Host, c.Port)
}
