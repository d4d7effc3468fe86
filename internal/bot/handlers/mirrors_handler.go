package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/worq1337/bot228-repo/internal/database"
	"github.com/worq1337/bot228-repo/internal/fsm"
	"github.com/worq1337/bot228-repo/internal/htmlfmt"
	"github.com/worq1337/bot228-repo/internal/registry"
)

// fieldDeleteToken holds the token of the mirror awaiting delete confirmation.
const fieldDeleteToken = "delete_token"

// mirrorsText renders the numbered mirror list.
func mirrorsText(creds []database.Credential) string {
	var sb strings.Builder
	sb.WriteString("📡 <b>Управление webhook-зеркалами</b>\n\n")
	if len(creds) == 0 {
		sb.WriteString("Зеркал пока нет.")
		return sb.String()
	}
	for i, c := range creds {
		fmt.Fprintf(&sb, "%d. @%s — <code>%s</code>\n", i+1, htmlfmt.Escape(c.BotUsername), htmlfmt.Escape(c.WebhookURL))
	}
	return sb.String()
}

// NewMirrorsHandler returns the handler showing registered mirrors.
func NewMirrorsHandler(deps HandlerDeps) bot.HandlerFunc {
	return mirrorsHandler{deps}.Handle
}

type mirrorsHandler struct {
	deps HandlerDeps
}

func (h mirrorsHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "manage_webhooks")
	cq := update.CallbackQuery
	answer(ctx, b, log, cq, "", false)
	h.deps.clearSession(ctx, callbackKey(b, cq))
	h.deps.showMirrors(ctx, b, cq)
}

func (d HandlerDeps) showMirrors(ctx context.Context, b *bot.Bot, cq *models.CallbackQuery) {
	log := d.Logger.With("handler", "manage_webhooks")
	creds, err := d.Registry.List(ctx)
	if err != nil {
		log.ErrorContext(ctx, "Failed to list mirrors", "error", err)
		showHTML(ctx, b, log, cq, d.Config.Messages.GeneralError, adminKeyboard())
		return
	}
	showHTML(ctx, b, log, cq, mirrorsText(creds), mirrorsKeyboard(creds))
}

// NewAddMirrorHandler returns the handler for both "add mirror" buttons.
// byToken selects whether the next message is a token or a webhook URL.
func NewAddMirrorHandler(deps HandlerDeps, byToken bool) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		log := deps.Logger.With("handler", "add_webhook")
		cq := update.CallbackQuery
		answer(ctx, b, log, cq, "", false)

		state, text := fsm.AwaitingWebhookURL, "Пришлите ссылку webhook-зеркала, например:\n<code>"+
			htmlfmt.Escape(deps.Registry.WebhookURL("123456:ABC-DEF"))+"</code>"
		if byToken {
			state, text = fsm.AwaitingToken, "Пришлите токен бота, который нужно добавить как зеркало."
		}
		deps.setSession(ctx, callbackKey(b, cq), fsm.Session{State: state})
		showHTML(ctx, b, log, cq, text, keyboard(row(button("❌ Отмена", cbCancelMirrorAdd))))
	}
}

// NewCancelMirrorAddHandler returns the handler leaving the add-mirror prompt.
func NewCancelMirrorAddHandler(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		log := deps.Logger.With("handler", "cancel_webhook_add")
		cq := update.CallbackQuery
		answer(ctx, b, log, cq, "Добавление отменено", false)
		deps.clearSession(ctx, callbackKey(b, cq))
		deps.showMirrors(ctx, b, cq)
	}
}

// NewDeleteMirrorHandler returns the handler for the per-mirror delete buttons.
func NewDeleteMirrorHandler(deps HandlerDeps) bot.HandlerFunc {
	return deleteMirrorHandler{deps}.Handle
}

type deleteMirrorHandler struct {
	deps HandlerDeps
}

func (h deleteMirrorHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "delete_webhook")
	cq := update.CallbackQuery

	index, err := strconv.Atoi(strings.TrimPrefix(cq.Data, cbDeleteMirrorPrefix))
	if err != nil {
		answer(ctx, b, log, cq, "Некорректный номер", true)
		return
	}
	cred, err := h.deps.Registry.Get(ctx, index)
	if errors.Is(err, registry.ErrNotFound) {
		answer(ctx, b, log, cq, "Зеркало не найдено, список обновлён", true)
		h.deps.showMirrors(ctx, b, cq)
		return
	}
	if err != nil {
		log.ErrorContext(ctx, "Failed to load mirror", "index", index, "error", err)
		answer(ctx, b, log, cq, h.deps.Config.Messages.GeneralError, true)
		return
	}
	answer(ctx, b, log, cq, "", false)

	h.deps.setSession(ctx, callbackKey(b, cq), fsm.Session{State: fsm.ConfirmWebhookDelete}.With(fieldDeleteToken, cred.Token))
	text := fmt.Sprintf("Удалить зеркало @%s?\n<code>%s</code>", htmlfmt.Escape(cred.BotUsername), htmlfmt.Escape(cred.WebhookURL))
	showHTML(ctx, b, log, cq, text, keyboard(row(
		button("✅ Удалить", cbConfirmMirrorDelete),
		button("❌ Отмена", cbCancelMirrorDelete),
	)))
}

// NewConfirmMirrorDeleteHandler returns the handler that confirms or cancels
// a pending mirror deletion.
func NewConfirmMirrorDeleteHandler(deps HandlerDeps, confirm bool) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		log := deps.Logger.With("handler", "confirm_webhook_delete")
		cq := update.CallbackQuery
		key := callbackKey(b, cq)

		s := deps.session(ctx, key)
		if s.State != fsm.ConfirmWebhookDelete {
			answer(ctx, b, log, cq, "Действие устарело", false)
			return
		}
		deps.clearSession(ctx, key)

		if !confirm {
			answer(ctx, b, log, cq, "Удаление отменено", false)
			deps.showMirrors(ctx, b, cq)
			return
		}

		token := s.Get(fieldDeleteToken)
		err := deps.Registry.DeleteByToken(ctx, token)
		switch {
		case errors.Is(err, registry.ErrNotFound):
			answer(ctx, b, log, cq, "Зеркало уже удалено", true)
		case err != nil:
			log.ErrorContext(ctx, "Failed to delete mirror", "token_prefix", registry.MaskToken(token), "error", err)
			answer(ctx, b, log, cq, deps.Config.Messages.GeneralError, true)
			return
		default:
			answer(ctx, b, log, cq, "Зеркало удалено", false)
			deps.detachMirror(ctx, token)
		}
		deps.showMirrors(ctx, b, cq)
	}
}

// detachMirror clears the removed bot's webhook and drops its cached client.
func (d HandlerDeps) detachMirror(ctx context.Context, token string) {
	if d.Clients != nil {
		d.Clients.Forget(token)
	}
	if d.Targets == nil {
		return
	}
	if err := d.Targets.ClearDeliveryTarget(ctx, token); err != nil {
		d.Logger.WarnContext(ctx, "Failed to clear webhook of removed mirror",
			"token_prefix", registry.MaskToken(token), "error", err)
	}
}

// handleMirrorURL registers the mirror whose token is embedded in a pasted webhook URL.
func (d HandlerDeps) handleMirrorURL(ctx context.Context, b *bot.Bot, msg *models.Message, key fsm.Key) {
	log := d.Logger.With("handler", "awaiting_webhook_url")
	token, ok := d.Registry.TokenFromURL(msg.Text)
	if !ok {
		sendHTML(ctx, b, log, key.ChatID, "❌ Не удалось найти токен в ссылке. Пришлите ссылку вида\n<code>"+
			htmlfmt.Escape(d.Registry.WebhookURL("123456:ABC-DEF"))+"</code>\nили /cancel для отмены.", nil)
		return
	}
	d.clearSession(ctx, key)
	d.registerToken(ctx, b, log, key.ChatID, token)
}

// handleToken registers the token sent while awaiting one.
func (d HandlerDeps) handleToken(ctx context.Context, b *bot.Bot, msg *models.Message, key fsm.Key) {
	log := d.Logger.With("handler", "awaiting_token")
	token := strings.TrimSpace(msg.Text)
	if !registry.ValidTokenFormat(token) {
		sendPlain(ctx, b, log, key.ChatID, "Неверный формат токена. Пришлите корректный токен или /cancel для отмены.")
		return
	}
	d.clearSession(ctx, key)
	d.registerToken(ctx, b, log, key.ChatID, token)
}
