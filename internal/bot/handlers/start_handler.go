package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/worq1337/bot228-repo/internal/database"
	"github.com/worq1337/bot228-repo/internal/fsm"
	"github.com/worq1337/bot228-repo/internal/htmlfmt"
	"github.com/worq1337/bot228-repo/internal/registry"
)

// NewStartHandler returns a handler for the /start command.
func NewStartHandler(deps HandlerDeps) bot.HandlerFunc {
	return startHandler{deps}.Handle
}

// startHandler registers the end user and sends the welcome message.
type startHandler struct {
	deps HandlerDeps
}

func (h startHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "start")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Start handler received update with nil message or sender", "update_id", update.ID)
		return
	}
	msg := update.Message
	log.InfoContext(ctx, "Handling /start command", "chat_id", msg.Chat.ID, "user_id", msg.From.ID)

	username, err := h.deps.Identities.Username(ctx, b)
	if err != nil {
		log.WarnContext(ctx, "Failed to resolve bot username", "error", err)
	}

	user := &database.EndUser{UserID: msg.From.ID, BotName: username}
	if arg := commandArgs(msg.Text); arg != "" {
		if ref, err := strconv.ParseInt(arg, 10, 64); err == nil && ref != msg.From.ID {
			user.RefID = sql.NullInt64{Int64: ref, Valid: true}
		} else {
			log.WarnContext(ctx, "Ignoring invalid referral argument", "arg", arg, "user_id", msg.From.ID)
		}
	}

	created, err := h.deps.Store.SaveEndUser(ctx, user)
	switch {
	case err != nil:
		log.ErrorContext(ctx, "Failed to register end user", "user_id", msg.From.ID, "error", err)
	case created:
		log.InfoContext(ctx, "New end user registered", "user_id", msg.From.ID, "ref_id", user.RefID.Int64, "bot", username)
	}

	sendHTML(ctx, b, log, msg.Chat.ID, h.deps.Config.Messages.Welcome, welcomeKeyboard(h.deps.Config.Messages))
}

// NewCreateBotHandler returns the handler for the "create bot" button.
func NewCreateBotHandler(deps HandlerDeps) bot.HandlerFunc {
	return createBotHandler{deps}.Handle
}

type createBotHandler struct {
	deps HandlerDeps
}

func (h createBotHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "create_bot")
	cq := update.CallbackQuery
	answer(ctx, b, log, cq, "", false)

	h.deps.setSession(ctx, callbackKey(b, cq), fsm.Session{State: fsm.AwaitingToken})

	username, err := h.deps.Identities.Username(ctx, b)
	if err != nil {
		log.WarnContext(ctx, "Failed to resolve bot username", "error", err)
	}
	chatID, _ := callbackChat(cq)
	sendHTML(ctx, b, log, chatID, tokenInstructions(username), nil)
}

func tokenInstructions(username string) string {
	mirror := "бота"
	if username != "" {
		mirror = "@" + htmlfmt.Escape(username)
	}
	return "<b>Для создания зеркала " + mirror + " следуйте инструкции</b> 👇\n\n" +
		"<blockquote>1. Перейдите в @BotFather\n\n" +
		"2. Напишите /newbot, отправьте желаемое имя бота, оно может быть абсолютно любым.\n\n" +
		"3. Отправьте @Username бота. Он должен кончаться на «Bot», пример: testnetbot\n\n" +
		"4. Напишите в @BotFather /mybots и выберите из списка недавно созданного бота.\n\n" +
		"<b>5. Нажмите «Bot Settings», далее «Business Mode» и нажмите на «Turn on»\n\n" +
		"6. «Back to Settings» → «Back to Bot» → «API Token», скопируйте токен и пришлите сюда.</b></blockquote>\n\n" +
		"<b>Вы можете отменить операцию, отправив /cancel</b>"
}

// NewAddBotHandler returns a handler for /add_bot <token>.
func NewAddBotHandler(deps HandlerDeps) bot.HandlerFunc {
	return addBotHandler{deps}.Handle
}

type addBotHandler struct {
	deps HandlerDeps
}

func (h addBotHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "add_bot")
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	token := commandArgs(update.Message.Text)
	if token == "" {
		sendPlain(ctx, b, log, chatID, "Укажите токен бота: /add_bot ВАШ_ТОКЕН")
		return
	}
	if !registry.ValidTokenFormat(token) {
		sendPlain(ctx, b, log, chatID, "Неверный формат токена. Пришлите корректный токен бота.")
		return
	}
	h.deps.registerToken(ctx, b, log, chatID, token)
}

// NewCancelHandler returns a handler for /cancel, which leaves any wizard.
func NewCancelHandler(deps HandlerDeps) bot.HandlerFunc {
	return cancelHandler{deps}.Handle
}

type cancelHandler struct {
	deps HandlerDeps
}

func (h cancelHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "cancel")
	key, ok := messageKey(b, update.Message)
	if !ok {
		return
	}

	s := h.deps.session(ctx, key)
	h.deps.clearSession(ctx, key)

	switch s.State {
	case fsm.None:
		sendPlain(ctx, b, log, key.ChatID, "Нет активной операции.")
	case fsm.AwaitingHTMLText:
		sendPlain(ctx, b, log, key.ChatID, "❌ Форматирование отменено.")
	default:
		sendPlain(ctx, b, log, key.ChatID, "❌ Операция отменена.")
	}
	log.InfoContext(ctx, "Conversation cancelled", "chat_id", key.ChatID, "user_id", key.UserID, "state", s.State)
}

// registerToken registers a mirror bot and tells the user how it went.
// Registration talks to the platform between store calls, so it runs
// outside the update transaction.
func (d HandlerDeps) registerToken(ctx context.Context, b *bot.Bot, log *slog.Logger, chatID int64, token string) {
	cred, err := d.Registry.Register(database.WithoutScope(ctx), token, d.Validator)
	name := "@" + htmlfmt.Escape(cred.BotUsername)

	switch {
	case err == nil:
		log.InfoContext(ctx, "Mirror bot added", "bot_username", cred.BotUsername, "chat_id", chatID)
		sendHTML(ctx, b, log, chatID, fmt.Sprintf("✅ Бот %s успешно добавлен!\n"+
			"Информация сохранена в базе.\n\n"+
			"Теперь этот бот работает как зеркало основного.", name), nil)
	case errors.Is(err, registry.ErrDuplicateCredential):
		sendPlain(ctx, b, log, chatID, "Такой токен уже есть в базе!")
	case errors.Is(err, registry.ErrInvalidCredential):
		log.WarnContext(ctx, "Invalid token provided", "token_prefix", registry.MaskToken(token), "error", err)
		sendPlain(ctx, b, log, chatID, "❌ Недействительный токен. Проверьте его и попробуйте снова.")
	case errors.Is(err, registry.ErrDeliveryTargetUnset):
		sendHTML(ctx, b, log, chatID, fmt.Sprintf("⚠️ Бот %s прошёл проверку, но webhook не установлен.\n"+
			"Бот сохранён в базе, повторите попытку позже или обратитесь в поддержку.", name), nil)
	default:
		log.ErrorContext(ctx, "Failed to add mirror bot", "token_prefix", registry.MaskToken(token), "error", err)
		sendPlain(ctx, b, log, chatID, d.Config.Messages.GeneralError)
	}
}

// commandArgs returns the text after the command word.
func commandArgs(text string) string {
	_, args, _ := strings.Cut(strings.TrimSpace(text), " ")
	return strings.TrimSpace(args)
}
