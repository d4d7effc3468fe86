// Package handlers contains Telegram bot command, callback and business
// message handlers, along with their registration logic and middleware.
package handlers

import (
	"context"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// AdminOnly creates a middleware that lets only configured admins through.
// Other users get the "not authorized" reply, or an alert for button presses.
func AdminOnly(deps HandlerDeps) tgbot.Middleware {
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
			log := deps.Logger.With("middleware", "AdminOnly")

			switch {
			case update.Message != nil && update.Message.From != nil:
				if deps.Config.IsAdmin(update.Message.From.ID) {
					next(ctx, bot, update)
					return
				}
				chatID := update.Message.Chat.ID
				log.WarnContext(ctx, "Unauthorized access attempt", "user_id", update.Message.From.ID, "chat_id", chatID)
				sendPlain(ctx, bot, log, chatID, deps.Config.Messages.NotAuthorized)

			case update.CallbackQuery != nil:
				if deps.Config.IsAdmin(update.CallbackQuery.From.ID) {
					next(ctx, bot, update)
					return
				}
				log.WarnContext(ctx, "Unauthorized callback", "user_id", update.CallbackQuery.From.ID, "data", update.CallbackQuery.Data)
				answer(ctx, bot, log, update.CallbackQuery, "Доступ запрещен", true)
			}
		}
	}
}

// Serialize runs handlers of one conversation one at a time, so a session is
// read and written atomically with respect to the update that triggered it.
func Serialize(deps HandlerDeps) tgbot.Middleware {
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
			if key, ok := updateKey(bot, update); ok && deps.Locks != nil {
				unlock := deps.Locks.Lock(key)
				defer unlock()
			}
			next(ctx, bot, update)
		}
	}
}
