package handlers

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/worq1337/bot228-repo/internal/fsm"
)

// StateMatcher matches plain messages from users who are inside a wizard.
// Commands never match, so /cancel and the other commands keep working.
func StateMatcher(deps HandlerDeps, b *bot.Bot) func(*models.Update) bool {
	return func(update *models.Update) bool {
		key, ok := messageKey(b, update.Message)
		if !ok || strings.HasPrefix(update.Message.Text, "/") {
			return false
		}
		s, err := deps.Sessions.Get(context.Background(), key)
		return err == nil && s.State != fsm.None
	}
}

// NewStateRouter returns the handler for messages matched by StateMatcher.
func NewStateRouter(deps HandlerDeps) bot.HandlerFunc {
	return stateRouter{deps}.Handle
}

// stateRouter sends a wizard message to the step the conversation is in.
type stateRouter struct {
	deps HandlerDeps
}

func (h stateRouter) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "state_router")
	msg := update.Message
	key, ok := messageKey(b, msg)
	if !ok {
		return
	}

	s := h.deps.session(ctx, key)
	if s.State == fsm.None {
		return
	}
	if s.State != fsm.AwaitingToken && !h.deps.Config.IsAdmin(key.UserID) {
		log.WarnContext(ctx, "Dropping admin session of non-admin", "user_id", key.UserID, "state", s.State)
		h.deps.clearSession(ctx, key)
		return
	}
	log.DebugContext(ctx, "Routing message by state", "chat_id", key.ChatID, "user_id", key.UserID, "state", s.State)

	switch s.State {
	case fsm.AwaitingToken:
		h.deps.handleToken(ctx, b, msg, key)
	case fsm.AwaitingWebhookURL:
		h.deps.handleMirrorURL(ctx, b, msg, key)
	case fsm.AwaitingHTMLText:
		h.deps.handleFormatText(ctx, b, msg, key)
	case fsm.BroadcastAwaitingMessage:
		h.deps.handleBroadcastMessage(ctx, b, msg, key, s)
	case fsm.BroadcastButtonText:
		h.deps.handleButtonText(ctx, b, msg, key, s)
	case fsm.BroadcastButtonURL:
		h.deps.handleButtonURL(ctx, b, msg, key, s)
	default:
		sendPlain(ctx, b, log, key.ChatID, "Используйте кнопки выше или отправьте /cancel для отмены.")
	}
}
