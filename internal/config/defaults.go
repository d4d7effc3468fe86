package config

import "time"

// Default values for optional configuration keys.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	DefaultDropPendingUpdates = true
	DefaultRequestTimeout     = 30 * time.Second

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultShutdownTimeout = 10 * time.Second

	DefaultSendInterval = 50 * time.Millisecond
	DefaultProgressStep = 10

	DefaultSessionTTL = 30 * time.Minute

	DefaultMetricsPath = "/metrics"
)

// DefaultMessages are the stock user-facing texts.
var DefaultMessages = MessagesConfig{
	Welcome: "👋 Привет! Я помогу тебе следить за удалёнными и изменёнными сообщениями в твоих чатах.\n\n" +
		"Подключи меня в настройках Telegram Business → Чат-боты, и я буду присылать уведомления.",
	NotAuthorized: "🚫 У вас нет доступа к этой команде.",
	GeneralError:  "❌ Произошла ошибка. Попробуйте позже.",
}

// DefaultTasks are the scheduled tasks enabled out of the box. Schedules use
// the six-field cron format with seconds.
var DefaultTasks = map[string]TaskConfig{
	"sql_maintenance": {Enabled: true, Schedule: "0 0 4 * * *"},
	"session_expiry":  {Enabled: true, Schedule: "0 * * * * *"},
	"staging_cleanup": {Enabled: true, Schedule: "0 30 * * * *"},
	"cache_retention": {Enabled: true, Schedule: "0 15 3 * * *"},
	"mirror_gauge":    {Enabled: true, Schedule: "0 * * * * *"},
}
