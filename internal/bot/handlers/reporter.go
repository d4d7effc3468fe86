package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/worq1337/bot228-repo/internal/broadcast"
)

// finalReportTimeout bounds the last status edit of a job, which may run
// after the job's context was cancelled by shutdown.
const finalReportTimeout = 10 * time.Second

// statusEditor is the slice of the Bot API the reporter needs.
type statusEditor interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
}

// statusReporter keeps one status message per job up to date. It is used
// only from the goroutine running the job.
type statusReporter struct {
	b         statusEditor
	chatID    int64
	messageID int
	logger    *slog.Logger
}

func newStatusReporter(b statusEditor, chatID int64, logger *slog.Logger) *statusReporter {
	return &statusReporter{b: b, chatID: chatID, logger: logger}
}

func (r *statusReporter) Empty(ctx context.Context, reason broadcast.EmptyReason) {
	text := "❌ Нет пользователей для рассылки."
	if reason == broadcast.NoCredentials {
		text = "❌ Нет зеркал для рассылки."
	}
	r.send(detached(ctx), text, nil)
}

func (r *statusReporter) Started(ctx context.Context, s broadcast.Snapshot) {
	if msg := r.send(ctx, statusText("🚀 Рассылка запущена", s), runningKeyboard()); msg != nil {
		r.messageID = msg.ID
	}
}

func (r *statusReporter) Progress(ctx context.Context, s broadcast.Snapshot) {
	r.update(ctx, statusText("⏳ Идёт рассылка", s), runningKeyboard())
}

func (r *statusReporter) Finished(ctx context.Context, s broadcast.Snapshot) {
	title := "✅ Рассылка завершена!"
	if s.Cancelled {
		title = "⛔️ Рассылка отменена"
	}
	ctx, cancel := context.WithTimeout(detached(ctx), finalReportTimeout)
	defer cancel()
	r.update(ctx, statusText(title, s), nil)
}

func (r *statusReporter) Failed(ctx context.Context, err error) {
	text := "❌ Рассылка прервана из-за ошибки."
	if errors.Is(err, broadcast.ErrMediaFetchFailed) {
		text = "❌ Не удалось загрузить медиафайл для рассылки. Рассылка прервана."
	}
	ctx, cancel := context.WithTimeout(detached(ctx), finalReportTimeout)
	defer cancel()
	r.update(ctx, text, nil)
}

// update edits the status message, or sends a new one when there is none
// or the edit fails.
func (r *statusReporter) update(ctx context.Context, text string, markup models.ReplyMarkup) {
	if r.messageID != 0 {
		_, err := r.b.EditMessageText(ctx, &bot.EditMessageTextParams{
			ChatID:      r.chatID,
			MessageID:   r.messageID,
			Text:        text,
			ParseMode:   models.ParseModeHTML,
			ReplyMarkup: markup,
		})
		if err == nil {
			return
		}
		r.logger.WarnContext(ctx, "Failed to edit broadcast status", "error", err)
	}
	if msg := r.send(ctx, text, markup); msg != nil {
		r.messageID = msg.ID
	}
}

func (r *statusReporter) send(ctx context.Context, text string, markup models.ReplyMarkup) *models.Message {
	msg, err := r.b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      r.chatID,
		Text:        text,
		ParseMode:   models.ParseModeHTML,
		ReplyMarkup: markup,
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to send broadcast status", "chat_id", r.chatID, "error", err)
		return nil
	}
	return msg
}

func statusText(title string, s broadcast.Snapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>%s</b>\n\n", title)
	if s.Mode == broadcast.ModeMirror {
		fmt.Fprintf(&sb, "🤖 Зеркал обработано: %d/%d\n", s.CredentialsDone, s.CredentialsTotal)
	}
	fmt.Fprintf(&sb, "📨 Обработано: %d/%d (%d%%)\n", s.Processed, s.Total, s.Percent())
	fmt.Fprintf(&sb, "✅ Успешно: %d\n", s.Success)
	fmt.Fprintf(&sb, "❌ Ошибок: %d", s.Failure)
	return sb.String()
}

func detached(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
