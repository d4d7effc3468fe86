package handlers

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/worq1337/bot228-repo/internal/fsm"
)

// botID identifies the bot an update arrived at.
func botID(b *bot.Bot) int64 {
	if b == nil {
		return 0
	}
	return b.ID()
}

// messageKey is the conversation a message belongs to.
func messageKey(b *bot.Bot, m *models.Message) (fsm.Key, bool) {
	if m == nil || m.From == nil {
		return fsm.Key{}, false
	}
	return fsm.Key{BotID: botID(b), ChatID: m.Chat.ID, UserID: m.From.ID}, true
}

// callbackChat returns the chat and message id a callback button belongs to.
// The message id is zero when the message is no longer accessible.
func callbackChat(cq *models.CallbackQuery) (chatID int64, messageID int) {
	switch {
	case cq.Message.Message != nil:
		return cq.Message.Message.Chat.ID, cq.Message.Message.ID
	case cq.Message.InaccessibleMessage != nil:
		return cq.Message.InaccessibleMessage.Chat.ID, 0
	default:
		return cq.From.ID, 0
	}
}

// callbackKey is the conversation a callback query belongs to.
func callbackKey(b *bot.Bot, cq *models.CallbackQuery) fsm.Key {
	chatID, _ := callbackChat(cq)
	return fsm.Key{BotID: botID(b), ChatID: chatID, UserID: cq.From.ID}
}

// updateKey is the conversation of a message or callback update.
func updateKey(b *bot.Bot, update *models.Update) (fsm.Key, bool) {
	switch {
	case update.Message != nil:
		return messageKey(b, update.Message)
	case update.CallbackQuery != nil:
		return callbackKey(b, update.CallbackQuery), true
	default:
		return fsm.Key{}, false
	}
}

func sendHTML(ctx context.Context, b *bot.Bot, log *slog.Logger, chatID int64, text string, markup models.ReplyMarkup) *models.Message {
	msg, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ParseMode:   models.ParseModeHTML,
		ReplyMarkup: markup,
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send message", "chat_id", chatID, "error", err)
		return nil
	}
	return msg
}

func sendPlain(ctx context.Context, b *bot.Bot, log *slog.Logger, chatID int64, text string) {
	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		log.ErrorContext(ctx, "Failed to send message", "chat_id", chatID, "error", err)
	}
}

// showHTML replaces the callback's message with text, or sends a new message
// when the original can no longer be edited.
func showHTML(ctx context.Context, b *bot.Bot, log *slog.Logger, cq *models.CallbackQuery, text string, markup models.ReplyMarkup) {
	chatID, messageID := callbackChat(cq)
	if messageID != 0 {
		_, err := b.EditMessageText(ctx, &bot.EditMessageTextParams{
			ChatID:      chatID,
			MessageID:   messageID,
			Text:        text,
			ParseMode:   models.ParseModeHTML,
			ReplyMarkup: markup,
		})
		if err == nil {
			return
		}
		log.WarnContext(ctx, "Failed to edit message, sending a new one", "chat_id", chatID, "error", err)
	}
	sendHTML(ctx, b, log, chatID, text, markup)
}

func answer(ctx context.Context, b *bot.Bot, log *slog.Logger, cq *models.CallbackQuery, text string, alert bool) {
	if _, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: cq.ID,
		Text:            text,
		ShowAlert:       alert,
	}); err != nil {
		log.DebugContext(ctx, "Failed to answer callback query", "error", err)
	}
}

// session loads the conversation state, logging and returning an empty
// session on failure.
func (d HandlerDeps) session(ctx context.Context, key fsm.Key) fsm.Session {
	s, err := d.Sessions.Get(ctx, key)
	if err != nil {
		d.Logger.ErrorContext(ctx, "Failed to load session", "chat_id", key.ChatID, "user_id", key.UserID, "error", err)
		return fsm.Session{}
	}
	return s
}

func (d HandlerDeps) setSession(ctx context.Context, key fsm.Key, s fsm.Session) {
	if err := d.Sessions.Set(ctx, key, s); err != nil {
		d.Logger.ErrorContext(ctx, "Failed to save session", "chat_id", key.ChatID, "user_id", key.UserID, "state", s.State, "error", err)
	}
}

func (d HandlerDeps) clearSession(ctx context.Context, key fsm.Key) {
	if err := d.Sessions.Clear(ctx, key); err != nil {
		d.Logger.ErrorContext(ctx, "Failed to clear session", "chat_id", key.ChatID, "user_id", key.UserID, "error", err)
	}
}
