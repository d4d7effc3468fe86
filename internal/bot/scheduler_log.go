package bot

import (
	"log/slog"

	"github.com/go-co-op/gocron/v2"
)

// gocronLogger implements gocron.Logger on top of slog. gocron's own info
// chatter is demoted to debug so scheduled ticks do not flood the log.
type gocronLogger struct {
	logger *slog.Logger
}

// newGocronLogger returns a gocron.Logger writing to logger.
//
//nolint:ireturn // Interface return is required by gocron's API contract
func newGocronLogger(logger *slog.Logger) gocron.Logger {
	return &gocronLogger{logger: logger.With("source", "gocron")}
}

func (l *gocronLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, pairs(args)...) }

func (l *gocronLogger) Info(msg string, args ...any) { l.logger.Debug(msg, pairs(args)...) }

func (l *gocronLogger) Warn(msg string, args ...any) { l.logger.Warn(msg, pairs(args)...) }

func (l *gocronLogger) Error(msg string, args ...any) { l.logger.Error(msg, pairs(args)...) }

// pairs keeps args usable as slog key-value pairs. A trailing value without
// a key is logged under "extra".
func pairs(args []any) []any {
	if len(args)%2 == 0 {
		return args
	}
	out := make([]any, 0, len(args)+1)
	out = append(out, args[:len(args)-1]...)
	return append(out, "extra", args[len(args)-1])
}
