// Package logger provides structured logging for the bot platform.
// It uses Go's slog package with a JSON handler or a charmbracelet/log text handler.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewLogger creates a new slog Logger writing to stdout with the specified level and format.
// Format "json" produces JSON lines, anything else human readable text.
func NewLogger(levelStr, format string) *slog.Logger {
	return New(os.Stdout, levelStr, format)
}

// New is NewLogger with an explicit destination.
func New(w io.Writer, levelStr, format string) *slog.Logger {
	level := parseLevel(levelStr)

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		handler = charmlog.NewWithOptions(w, charmlog.Options{
			Level:           charmlog.Level(level),
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
			Formatter:       charmlog.TextFormatter,
		})
	}

	return slog.New(handler)
}

func parseLevel(levelStr string) slog.Level {
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Middleware creates a logging middleware for Telegram bot clients.
// It logs the update kind, the chat and user it concerns and how long the handler took.
func Middleware(log *slog.Logger) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			startTime := time.Now()

			info := Describe(update)
			logEntry := log.With(
				"update_id", update.ID,
				"update_type", info.Type,
				"chat_id", info.ChatID,
				"user_id", info.UserID,
			)
			if info.Text != "" {
				logEntry = logEntry.With("text_preview", truncateString(info.Text, 50))
			}

			logEntry.DebugContext(ctx, "Processing update")

			next(ctx, b, update)

			logEntry.InfoContext(ctx, "Finished processing update", "duration", time.Since(startTime))
		}
	}
}

// UpdateInfo summarizes an update for logs and metrics.
type UpdateInfo struct {
	Type   string
	ChatID int64
	UserID int64
	Text   string
}

// Describe extracts the kind and the identifying fields of an update.
func Describe(update *models.Update) UpdateInfo {
	switch {
	case update.Message != nil:
		return messageInfo("message", update.Message)
	case update.EditedMessage != nil:
		return messageInfo("edited_message", update.EditedMessage)
	case update.CallbackQuery != nil:
		info := UpdateInfo{
			Type:   "callback_query",
			UserID: update.CallbackQuery.From.ID,
			Text:   update.CallbackQuery.Data,
		}
		if m := update.CallbackQuery.Message.Message; m != nil {
			info.ChatID = m.Chat.ID
		} else if m := update.CallbackQuery.Message.InaccessibleMessage; m != nil {
			info.ChatID = m.Chat.ID
		}
		return info
	case update.BusinessMessage != nil:
		return messageInfo("business_message", update.BusinessMessage)
	case update.EditedBusinessMessage != nil:
		return messageInfo("edited_business_message", update.EditedBusinessMessage)
	case update.DeletedBusinessMessages != nil:
		return UpdateInfo{
			Type:   "deleted_business_messages",
			ChatID: update.DeletedBusinessMessages.Chat.ID,
		}
	default:
		return UpdateInfo{Type: "other"}
	}
}

func messageInfo(kind string, m *models.Message) UpdateInfo {
	info := UpdateInfo{Type: kind, ChatID: m.Chat.ID, Text: m.Text}
	if m.From != nil {
		info.UserID = m.From.ID
	}
	if info.Text == "" {
		info.Text = m.Caption
	}
	return info
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return string(r[:maxLen-3]) + "..."
}
