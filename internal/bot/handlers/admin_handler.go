package handlers

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const adminPanelText = "<b><u>Добро пожаловать в админ панель!</u></b>\n\n" +
	"Здесь вы можете запустить рассылку, посмотреть статистику, " +
	"отформатировать текст в HTML и управлять зеркалами."

// NewAdminHandler returns a handler for /admin.
func NewAdminHandler(deps HandlerDeps) bot.HandlerFunc {
	return adminHandler{deps}.Handle
}

// adminHandler opens the admin panel and resets any wizard in progress.
type adminHandler struct {
	deps HandlerDeps
}

func (h adminHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "admin")
	key, ok := messageKey(b, update.Message)
	if !ok {
		return
	}
	h.deps.clearSession(ctx, key)
	sendHTML(ctx, b, log, key.ChatID, adminPanelText, adminKeyboard())
}

// NewBackToAdminHandler returns the handler for the "back" button of admin screens.
func NewBackToAdminHandler(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		log := deps.Logger.With("handler", "back_admin")
		cq := update.CallbackQuery
		answer(ctx, b, log, cq, "", false)
		deps.clearSession(ctx, callbackKey(b, cq))
		showHTML(ctx, b, log, cq, adminPanelText, adminKeyboard())
	}
}

// NewStatusHandler returns the handler for the statistics button.
func NewStatusHandler(deps HandlerDeps) bot.HandlerFunc {
	return statusHandler{deps}.Handle
}

type statusHandler struct {
	deps HandlerDeps
}

func (h statusHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "full_status")
	cq := update.CallbackQuery
	answer(ctx, b, log, cq, "", false)

	users, err := h.deps.Store.CountEndUsers(ctx)
	if err != nil {
		log.ErrorContext(ctx, "Failed to count end users", "error", err)
		showHTML(ctx, b, log, cq, h.deps.Config.Messages.GeneralError, adminKeyboard())
		return
	}
	mirrors, err := h.deps.Store.CountCredentials(ctx)
	if err != nil {
		log.ErrorContext(ctx, "Failed to count credentials", "error", err)
		showHTML(ctx, b, log, cq, h.deps.Config.Messages.GeneralError, adminKeyboard())
		return
	}

	text := fmt.Sprintf("📊 <b>Статистика</b>\n\n"+
		"👤 Пользователей: <b>%d</b>\n"+
		"🤖 Зеркал: <b>%d</b>", users, mirrors)
	showHTML(ctx, b, log, cq, text, statusKeyboard())
}

// NewExportUsersHandler returns the handler that sends all end user ids as a text file.
func NewExportUsersHandler(deps HandlerDeps) bot.HandlerFunc {
	return exportUsersHandler{deps}.Handle
}

type exportUsersHandler struct {
	deps HandlerDeps
}

func (h exportUsersHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "get_all_users")
	cq := update.CallbackQuery
	chatID, _ := callbackChat(cq)

	ids, err := h.deps.Store.ListEndUserIDs(ctx)
	if err != nil {
		log.ErrorContext(ctx, "Failed to list end users", "error", err)
		answer(ctx, b, log, cq, h.deps.Config.Messages.GeneralError, true)
		return
	}
	if len(ids) == 0 {
		answer(ctx, b, log, cq, "Пользователей пока нет", true)
		return
	}
	answer(ctx, b, log, cq, "", false)

	_, err = b.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID: chatID,
		Document: &models.InputFileUpload{
			Filename: fmt.Sprintf("users_list_%d.txt", len(ids)),
			Data:     bytes.NewReader(usersReport(ids)),
		},
		Caption: fmt.Sprintf("Всего пользователей: %d", len(ids)),
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send users export", "chat_id", chatID, "error", err)
		sendPlain(ctx, b, log, chatID, h.deps.Config.Messages.GeneralError)
		return
	}
	log.InfoContext(ctx, "Users exported", "chat_id", chatID, "count", len(ids))
}

func usersReport(ids []int64) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Всего пользователей: %d\n\nСписок ID пользователей:\n", len(ids))
	for i, id := range ids {
		fmt.Fprintf(&sb, "%d. %d\n", i+1, id)
	}
	return []byte(sb.String())
}
