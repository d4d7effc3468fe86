package handlers

import (
	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/worq1337/bot228-repo/internal/broadcast"
	"github.com/worq1337/bot228-repo/internal/fsm"
)

// RegisteredHandler represents a handler with its match rule and middleware.
// When MatchFunc or BotMatchFunc is set it replaces HandlerType, Pattern and
// MatchType. BotMatchFunc builds the match rule for the bot the handler is
// registered on.
type RegisteredHandler struct {
	HandlerType  tgbot.HandlerType
	Pattern      string
	Handler      tgbot.HandlerFunc
	Middleware   []tgbot.Middleware
	MatchType    tgbot.MatchType
	MatchFunc    func(*models.Update) bool
	BotMatchFunc func(*tgbot.Bot) func(*models.Update) bool
}

func command(name string, h tgbot.HandlerFunc, mw ...tgbot.Middleware) RegisteredHandler {
	return RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     name,
		Handler:     h,
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  mw,
	}
}

func callback(data string, h tgbot.HandlerFunc, mw ...tgbot.Middleware) RegisteredHandler {
	return RegisteredHandler{
		HandlerType: tgbot.HandlerTypeCallbackQueryData,
		Pattern:     data,
		Handler:     h,
		MatchType:   tgbot.MatchTypeExact,
		Middleware:  mw,
	}
}

// RegisterAllCommands returns the handler table shared by the main bot and
// every mirror bot. Match rules are mutually exclusive, so registration
// order does not matter.
func RegisterAllCommands(deps HandlerDeps) map[string]RegisteredHandler {
	handlers := make(map[string]RegisteredHandler)

	handlers["/start"] = command("start", NewStartHandler(deps))
	handlers["/add_bot"] = command("add_bot", NewAddBotHandler(deps))
	handlers["/cancel"] = command("cancel", NewCancelHandler(deps))
	handlers[cbCreateBot] = callback(cbCreateBot, NewCreateBotHandler(deps))

	handlers["state_router"] = RegisteredHandler{
		Handler: NewStateRouter(deps),
		BotMatchFunc: func(b *tgbot.Bot) func(*models.Update) bool {
			return StateMatcher(deps, b)
		},
	}

	handlers["business_message"] = RegisteredHandler{
		Handler:   NewBusinessMessageHandler(deps),
		MatchFunc: isBusinessMessage,
	}
	handlers["edited_business_message"] = RegisteredHandler{
		Handler:   NewEditedBusinessMessageHandler(deps),
		MatchFunc: isEditedBusinessMessage,
	}
	handlers["deleted_business_messages"] = RegisteredHandler{
		Handler:   NewDeletedBusinessMessagesHandler(deps),
		MatchFunc: isDeletedBusinessMessages,
	}

	adminMiddleware := []tgbot.Middleware{AdminOnly(deps)}
	admin := func(name string, h RegisteredHandler) {
		h.Middleware = append(h.Middleware, adminMiddleware...)
		handlers[name] = h
	}

	admin("/admin", command("admin", NewAdminHandler(deps)))
	admin(cbBackAdmin, callback(cbBackAdmin, NewBackToAdminHandler(deps)))
	admin(cbFullStatus, callback(cbFullStatus, NewStatusHandler(deps)))
	admin(cbExportUser, callback(cbExportUser, NewExportUsersHandler(deps)))

	admin(cbMirrors, callback(cbMirrors, NewMirrorsHandler(deps)))
	admin(cbAddMirror, callback(cbAddMirror, NewAddMirrorHandler(deps, false)))
	admin(cbAddMirrorByToken, callback(cbAddMirrorByToken, NewAddMirrorHandler(deps, true)))
	admin(cbCancelMirrorAdd, callback(cbCancelMirrorAdd, NewCancelMirrorAddHandler(deps)))
	admin(cbConfirmMirrorDelete, callback(cbConfirmMirrorDelete, NewConfirmMirrorDeleteHandler(deps, true)))
	admin(cbCancelMirrorDelete, callback(cbCancelMirrorDelete, NewConfirmMirrorDeleteHandler(deps, false)))
	admin(cbDeleteMirrorPrefix, RegisteredHandler{
		HandlerType: tgbot.HandlerTypeCallbackQueryData,
		Pattern:     cbDeleteMirrorPrefix,
		Handler:     NewDeleteMirrorHandler(deps),
		MatchType:   tgbot.MatchTypePrefix,
	})

	admin(cbFormatHTML, callback(cbFormatHTML, NewFormatHTMLHandler(deps)))
	admin(cbCancelHTML, callback(cbCancelHTML, NewCancelHTMLHandler(deps)))

	admin(cbBoard, callback(cbBoard, NewBoardHandler(deps)))
	admin(cbBroadcastUsers, callback(cbBroadcastUsers, NewBroadcastTypeHandler(deps, broadcast.ModeUsers)))
	admin(cbBroadcastMirrors, callback(cbBroadcastMirrors, NewBroadcastTypeHandler(deps, broadcast.ModeMirror)))
	admin(cbBackToType, callback(cbBackToType, NewBackToTypeHandler(deps)))
	admin(cbCancelCreation, callback(cbCancelCreation, NewCancelCreationHandler(deps, "Создание рассылки отменено")))
	admin(cbButtonsYes, callback(cbButtonsYes, NewButtonsChoiceHandler(deps, fsm.BroadcastAddButtons, true)))
	admin(cbButtonsNo, callback(cbButtonsNo, NewButtonsChoiceHandler(deps, fsm.BroadcastAddButtons, false)))
	admin(cbMoreButtonsYes, callback(cbMoreButtonsYes, NewButtonsChoiceHandler(deps, fsm.BroadcastButtonAddMore, true)))
	admin(cbMoreButtonsNo, callback(cbMoreButtonsNo, NewButtonsChoiceHandler(deps, fsm.BroadcastButtonAddMore, false)))
	admin(cbEdit, callback(cbEdit, NewEditBroadcastHandler(deps)))
	admin(cbConfirm, callback(cbConfirm, NewConfirmBroadcastHandler(deps)))
	admin(cbCancelPreview, callback(cbCancelPreview, NewCancelCreationHandler(deps, "Рассылка отменена")))
	admin(cbCancelRunning, callback(cbCancelRunning, NewCancelRunningHandler(deps)))

	return handlers
}
