package handlers

import (
	"context"
	"errors"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/worq1337/bot228-repo/internal/spy"
)

func isBusinessMessage(update *models.Update) bool { return update.BusinessMessage != nil }

func isEditedBusinessMessage(update *models.Update) bool { return update.EditedBusinessMessage != nil }

func isDeletedBusinessMessages(update *models.Update) bool {
	return update.DeletedBusinessMessages != nil
}

// NewBusinessMessageHandler returns the handler that caches business chat
// messages. When the owner replies to a media message, the media is saved
// back to the owner.
func NewBusinessMessageHandler(deps HandlerDeps) bot.HandlerFunc {
	return businessMessageHandler{deps}.Handle
}

type businessMessageHandler struct {
	deps HandlerDeps
}

func (h businessMessageHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "business_message")
	msg := update.BusinessMessage

	owner, err := h.deps.Owners.Owner(ctx, b, msg.BusinessConnectionID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to resolve business connection owner", "connection_id", msg.BusinessConnectionID, "error", err)
		return
	}

	if c, ok := spy.Capture(msg, owner); ok {
		if err := h.deps.Spy.Store(ctx, c); err != nil {
			log.ErrorContext(ctx, "Failed to capture business message", "chat_id", msg.Chat.ID, "message_id", msg.ID, "error", err)
		}
	}

	if msg.From == nil || msg.From.ID != owner || msg.ReplyToMessage == nil || h.deps.FetcherFor == nil {
		return
	}
	username, err := h.deps.Identities.Username(ctx, b)
	if err != nil {
		log.WarnContext(ctx, "Failed to resolve bot username", "error", err)
	}
	err = spy.SaveReplied(ctx, b, h.deps.FetcherFor(b), owner, msg.ReplyToMessage, username)
	switch {
	case errors.Is(err, spy.ErrNoMedia):
	case err != nil:
		log.ErrorContext(ctx, "Failed to save replied media", "chat_id", msg.Chat.ID, "owner_id", owner, "error", err)
	default:
		log.InfoContext(ctx, "Replied media saved", "chat_id", msg.Chat.ID, "owner_id", owner)
	}
}

// NewEditedBusinessMessageHandler returns the handler for edits in business chats.
func NewEditedBusinessMessageHandler(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		log := deps.Logger.With("handler", "edited_business_message")
		msg := update.EditedBusinessMessage

		owner, err := deps.Owners.Owner(ctx, b, msg.BusinessConnectionID)
		if err != nil {
			log.ErrorContext(ctx, "Failed to resolve business connection owner", "connection_id", msg.BusinessConnectionID, "error", err)
			return
		}

		e := spy.EditOf(msg, owner)
		notified, err := deps.Spy.Edit(ctx, b, e)
		if err != nil {
			log.ErrorContext(ctx, "Failed to handle business message edit", "chat_id", e.ChatID, "message_id", e.MessageID, "error", err)
			return
		}
		log.DebugContext(ctx, "Business message edit handled", "chat_id", e.ChatID, "message_id", e.MessageID, "notified", notified)
	}
}

// NewDeletedBusinessMessagesHandler returns the handler for deletions in business chats.
func NewDeletedBusinessMessagesHandler(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		log := deps.Logger.With("handler", "deleted_business_messages")
		del := update.DeletedBusinessMessages

		notified, err := deps.Spy.Delete(ctx, b, del.Chat.ID, del.MessageIDs)
		if err != nil {
			log.ErrorContext(ctx, "Failed to handle business message deletion", "chat_id", del.Chat.ID, "error", err)
		}
		log.DebugContext(ctx, "Business message deletion handled", "chat_id", del.Chat.ID, "count", len(del.MessageIDs), "notified", notified)
	}
}
