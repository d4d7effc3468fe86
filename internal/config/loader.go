package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
)

// envBindings maps configuration keys to the environment variables the
// deployment uses. Keys absent here fall back to AutomaticEnv naming
// (log.level -> LOG_LEVEL).
var envBindings = map[string][]string{
	"token":           {"TOKEN"},
	"base_url":        {"BASE_URL"},
	"database_url":    {"DATABASE_URL"},
	"web_server_host": {"WEB_SERVER_HOST"},
	"web_server_port": {"WEB_SERVER_PORT"},
	"main_bot_path":   {"MAIN_BOT_PATH"},
	"other_bots_path": {"OTHER_BOTS_PATH"},
	"admins":          {"ADMINS", "ADMIN"},
	"webhook_secret":  {"WEBHOOK_SECRET"},
}

// Load reads configuration from:
// 1. Default values
// 2. the YAML file at path (optional; "config.yaml" in the working directory when empty)
// 3. environment variables
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if err := loadConfig(v, path); err != nil {
		return nil, fmt.Errorf("%w: failed to load config file: %v", ErrConfiguration, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	return cfg, nil
}

func loadConfig(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	// Missing config file is fine, the environment alone is a complete configuration.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)

	v.SetDefault("telegram.drop_pending_updates", DefaultDropPendingUpdates)
	v.SetDefault("telegram.request_timeout", DefaultRequestTimeout)

	v.SetDefault("server.read_timeout", DefaultReadTimeout)
	v.SetDefault("server.write_timeout", DefaultWriteTimeout)
	v.SetDefault("server.shutdown_timeout", DefaultShutdownTimeout)

	v.SetDefault("broadcast.send_interval", DefaultSendInterval)
	v.SetDefault("broadcast.progress_step", DefaultProgressStep)
	v.SetDefault("broadcast.staging_dir", "")

	v.SetDefault("session.ttl", DefaultSessionTTL)
	v.SetDefault("cache.retention", 0)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", DefaultMetricsPath)

	v.SetDefault("messages.welcome", DefaultMessages.Welcome)
	v.SetDefault("messages.not_authorized", DefaultMessages.NotAuthorized)
	v.SetDefault("messages.general_error", DefaultMessages.GeneralError)
	v.SetDefault("messages.tutorial_url", "")
	v.SetDefault("messages.channel_url", "")

	for name, task := range DefaultTasks {
		v.SetDefault("scheduler.tasks."+name+".enabled", task.Enabled)
		v.SetDefault("scheduler.tasks."+name+".schedule", task.Schedule)
	}
}
