package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/worq1337/bot228-repo/internal/broadcast"
	"github.com/worq1337/bot228-repo/internal/fsm"
	"github.com/worq1337/bot228-repo/internal/htmlfmt"
)

// Session fields of the broadcast wizard.
const (
	fieldMode       = "mode"
	fieldKind       = "kind"
	fieldText       = "text"
	fieldFileID     = "file_id"
	fieldFileName   = "file_name"
	fieldButtons    = "buttons"
	fieldButtonText = "button_text"
)

const (
	selectTypeText      = "📢 <b>Создание рассылки</b>\n\nВыберите, кому отправить сообщение:"
	awaitingMessageText = "✍️ Отправьте сообщение для рассылки.\n\n" +
		"Поддерживаются текст, фото, видео, документ, аудио и GIF. " +
		"Текст и подписи можно оформить: *жирный*, _курсив_, ~зачёркнутый~, `код`, [текст](ссылка)."
)

func modeLabel(mode broadcast.Mode) string {
	if mode == broadcast.ModeMirror {
		return "через все webhook-зеркала"
	}
	return "пользователям"
}

// broadcastSession reads the wizard state of the callback's conversation and
// answers stale presses. It reports false when the state is not one of want.
func (d HandlerDeps) broadcastSession(ctx context.Context, b *bot.Bot, cq *models.CallbackQuery, want ...fsm.State) (fsm.Session, bool) {
	s := d.session(ctx, callbackKey(b, cq))
	for _, st := range want {
		if s.State == st {
			return s, true
		}
	}
	answer(ctx, b, d.Logger, cq, "Действие устарело, откройте рассылку заново", true)
	return s, false
}

// NewBoardHandler returns the handler that starts the broadcast wizard.
func NewBoardHandler(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		log := deps.Logger.With("handler", "board")
		cq := update.CallbackQuery
		if _, busy := deps.Orchestrator.Jobs().Active(cq.From.ID); busy {
			answer(ctx, b, log, cq, "Рассылка уже идёт. Дождитесь завершения или отмените её.", true)
			return
		}
		answer(ctx, b, log, cq, "", false)
		deps.setSession(ctx, callbackKey(b, cq), fsm.Session{State: fsm.BroadcastSelectType})
		showHTML(ctx, b, log, cq, selectTypeText, broadcastTypeKeyboard())
	}
}

// NewBroadcastTypeHandler returns the handler for picking the broadcast target.
func NewBroadcastTypeHandler(deps HandlerDeps, mode broadcast.Mode) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		log := deps.Logger.With("handler", "broadcast_type", "mode", mode)
		cq := update.CallbackQuery
		s, ok := deps.broadcastSession(ctx, b, cq, fsm.BroadcastSelectType)
		if !ok {
			return
		}

		if mode == broadcast.ModeMirror {
			n, err := deps.Store.CountCredentials(ctx)
			if err != nil {
				log.ErrorContext(ctx, "Failed to count credentials", "error", err)
				answer(ctx, b, log, cq, deps.Config.Messages.GeneralError, true)
				return
			}
			if n == 0 {
				answer(ctx, b, log, cq, "", false)
				deps.clearSession(ctx, callbackKey(b, cq))
				showHTML(ctx, b, log, cq, "❌ <b>Нет добавленных зеркал.</b>\n\n"+
					"Добавьте хотя бы одно зеркало в разделе «Зеркала», чтобы сделать рассылку через них.",
					keyboard(row(button("⬅️ Назад", cbBackAdmin))))
				return
			}
		}

		answer(ctx, b, log, cq, "", false)
		deps.setSession(ctx, callbackKey(b, cq), s.With(fieldMode, string(mode)).In(fsm.BroadcastAwaitingMessage))
		showHTML(ctx, b, log, cq, "Рассылка "+modeLabel(mode)+".\n\n"+htmlfmt.Escape(awaitingMessageText), awaitingMessageKeyboard())
	}
}

// NewBackToTypeHandler returns the handler for "back" while awaiting the
// broadcast message. Only the chosen target survives.
func NewBackToTypeHandler(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		log := deps.Logger.With("handler", "back_to_broadcast_type")
		cq := update.CallbackQuery
		s, ok := deps.broadcastSession(ctx, b, cq, fsm.BroadcastAwaitingMessage)
		if !ok {
			return
		}
		answer(ctx, b, log, cq, "", false)
		deps.setSession(ctx, callbackKey(b, cq), s.Keep(fieldMode).In(fsm.BroadcastSelectType))
		showHTML(ctx, b, log, cq, selectTypeText, broadcastTypeKeyboard())
	}
}

// NewCancelCreationHandler returns the handler that abandons the wizard at any step.
func NewCancelCreationHandler(deps HandlerDeps, notice string) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		log := deps.Logger.With("handler", "cancel_broadcast_creation")
		cq := update.CallbackQuery
		answer(ctx, b, log, cq, notice, false)
		deps.clearSession(ctx, callbackKey(b, cq))
		showHTML(ctx, b, log, cq, adminPanelText, adminKeyboard())
	}
}

// NewButtonsChoiceHandler returns the handler for the yes/no prompts about
// buttons. from is the state the prompt belongs to.
func NewButtonsChoiceHandler(deps HandlerDeps, from fsm.State, add bool) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		log := deps.Logger.With("handler", "broadcast_buttons")
		cq := update.CallbackQuery
		s, ok := deps.broadcastSession(ctx, b, cq, from)
		if !ok {
			return
		}
		answer(ctx, b, log, cq, "", false)

		if add {
			deps.setSession(ctx, callbackKey(b, cq), s.In(fsm.BroadcastButtonText))
			showHTML(ctx, b, log, cq, "Введите текст кнопки:", keyboard(row(button("❌ Отменить рассылку", cbCancelCreation))))
			return
		}
		chatID, _ := callbackChat(cq)
		deps.showPreview(ctx, b, callbackKey(b, cq), chatID, s)
	}
}

// handleBroadcastMessage stores the message to broadcast and asks about buttons.
func (d HandlerDeps) handleBroadcastMessage(ctx context.Context, b *bot.Bot, msg *models.Message, key fsm.Key, s fsm.Session) {
	log := d.Logger.With("handler", "broadcast_message")

	p, ok := payloadFromMessage(msg)
	if !ok {
		sendPlain(ctx, b, log, key.ChatID, "Этот тип сообщения не поддерживается. "+
			"Отправьте текст, фото, видео, документ, аудио или GIF.")
		return
	}

	s = s.Keep(fieldMode).
		With(fieldKind, string(p.Kind)).
		With(fieldText, p.Text).
		With(fieldFileID, p.FileID).
		With(fieldFileName, p.FileName).
		In(fsm.BroadcastAddButtons)
	d.setSession(ctx, key, s)
	sendHTML(ctx, b, log, key.ChatID, "Добавить кнопки к сообщению?", yesNoKeyboard(cbButtonsYes, cbButtonsNo))
}

// handleButtonText stores the caption of the next button and asks for its URL.
func (d HandlerDeps) handleButtonText(ctx context.Context, b *bot.Bot, msg *models.Message, key fsm.Key, s fsm.Session) {
	log := d.Logger.With("handler", "broadcast_button_text")
	if msg.Text == "" {
		sendPlain(ctx, b, log, key.ChatID, "Текст кнопки не может быть пустым. Введите текст кнопки:")
		return
	}
	d.setSession(ctx, key, s.With(fieldButtonText, msg.Text).In(fsm.BroadcastButtonURL))
	sendHTML(ctx, b, log, key.ChatID, fmt.Sprintf("Введите URL для кнопки «%s»:", htmlfmt.Escape(msg.Text)), nil)
}

// handleButtonURL completes a button and offers to add another.
func (d HandlerDeps) handleButtonURL(ctx context.Context, b *bot.Bot, msg *models.Message, key fsm.Key, s fsm.Session) {
	log := d.Logger.With("handler", "broadcast_button_url")
	if msg.Text == "" {
		sendPlain(ctx, b, log, key.ChatID, "Пришлите ссылку текстом.")
		return
	}

	buttons, err := broadcast.DecodeButtons(s.Get(fieldButtons))
	if err != nil {
		log.WarnContext(ctx, "Discarding unreadable buttons", "error", err)
		buttons = nil
	}
	url, fixed := broadcast.FixButtonURL(msg.Text)
	buttons = append(buttons, broadcast.Button{Text: s.Get(fieldButtonText), URL: url})

	s = s.With(fieldButtons, broadcast.EncodeButtons(buttons)).With(fieldButtonText, "").In(fsm.BroadcastButtonAddMore)
	d.setSession(ctx, key, s)

	if fixed {
		sendHTML(ctx, b, log, key.ChatID, "⚠️ Ссылка исправлена: <code>"+htmlfmt.Escape(url)+"</code>", nil)
	}
	sendHTML(ctx, b, log, key.ChatID, fmt.Sprintf("Кнопка добавлена (всего: %d). Добавить ещё одну?", len(buttons)),
		yesNoKeyboard(cbMoreButtonsYes, cbMoreButtonsNo))
}

// showPreview sends the payload to the admin and asks for confirmation.
func (d HandlerDeps) showPreview(ctx context.Context, b *bot.Bot, key fsm.Key, chatID int64, s fsm.Session) {
	log := d.Logger.With("handler", "broadcast_preview")

	p, err := payloadFromSession(s)
	if err != nil {
		log.ErrorContext(ctx, "Broken broadcast session", "error", err)
		d.clearSession(ctx, key)
		sendPlain(ctx, b, log, chatID, d.Config.Messages.GeneralError)
		return
	}
	d.setSession(ctx, key, s.In(fsm.BroadcastPreviewConfirm))

	sendHTML(ctx, b, log, chatID, "👁 <b>Предпросмотр рассылки:</b>", nil)
	if _, err := broadcast.Deliver(ctx, b, chatID, p, nil); err != nil {
		log.WarnContext(ctx, "Failed to send broadcast preview", "error", err)
		sendPlain(ctx, b, log, chatID, "⚠️ Не удалось показать сообщение. Проверьте разметку и ссылки кнопок.")
	}
	sendHTML(ctx, b, log, chatID, "Отправить рассылку "+modeLabel(broadcast.Mode(s.Get(fieldMode)))+"?", previewKeyboard())
}

// NewEditBroadcastHandler returns the handler that discards the composed
// message and asks for a new one.
func NewEditBroadcastHandler(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		log := deps.Logger.With("handler", "broadcast_edit")
		cq := update.CallbackQuery
		s, ok := deps.broadcastSession(ctx, b, cq, fsm.BroadcastPreviewConfirm)
		if !ok {
			return
		}
		answer(ctx, b, log, cq, "", false)
		deps.setSession(ctx, callbackKey(b, cq), s.Keep(fieldMode).In(fsm.BroadcastAwaitingMessage))
		showHTML(ctx, b, log, cq, htmlfmt.Escape(awaitingMessageText), awaitingMessageKeyboard())
	}
}

// NewConfirmBroadcastHandler returns the handler that launches the job.
func NewConfirmBroadcastHandler(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		log := deps.Logger.With("handler", "broadcast_confirm")
		cq := update.CallbackQuery
		s, ok := deps.broadcastSession(ctx, b, cq, fsm.BroadcastPreviewConfirm)
		if !ok {
			return
		}
		key := callbackKey(b, cq)
		chatID, _ := callbackChat(cq)

		p, err := payloadFromSession(s)
		if err != nil {
			log.ErrorContext(ctx, "Broken broadcast session", "error", err)
			deps.clearSession(ctx, key)
			answer(ctx, b, log, cq, deps.Config.Messages.GeneralError, true)
			return
		}
		mode := broadcast.Mode(s.Get(fieldMode))

		job, err := deps.Orchestrator.Jobs().Begin(cq.From.ID, mode, p)
		if errors.Is(err, broadcast.ErrJobActive) {
			answer(ctx, b, log, cq, "Рассылка уже идёт. Дождитесь завершения или отмените её.", true)
			return
		}
		if err != nil {
			log.ErrorContext(ctx, "Failed to start broadcast", "error", err)
			answer(ctx, b, log, cq, deps.Config.Messages.GeneralError, true)
			return
		}
		deps.clearSession(ctx, key)
		answer(ctx, b, log, cq, "Рассылка запущена", false)

		var media broadcast.MediaFetcher
		if deps.FetcherFor != nil {
			media = deps.FetcherFor(b)
		}
		deps.Orchestrator.Launch(job, broadcast.Env{
			Origin:   b,
			Media:    media,
			Reporter: newStatusReporter(b, chatID, deps.Logger.With("job_id", job.ID)),
		})
		log.InfoContext(ctx, "Broadcast launched", "job_id", job.ID, "admin_id", cq.From.ID, "mode", mode, "kind", p.Kind, "buttons", len(p.Buttons))
	}
}

// NewCancelRunningHandler returns the handler for the cancel button of a running job.
func NewCancelRunningHandler(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		log := deps.Logger.With("handler", "cancel_broadcast")
		cq := update.CallbackQuery
		if !deps.Orchestrator.Jobs().Cancel(cq.From.ID) {
			answer(ctx, b, log, cq, "Нет активной рассылки", false)
			return
		}
		log.InfoContext(ctx, "Broadcast cancellation requested", "admin_id", cq.From.ID)
		answer(ctx, b, log, cq, "Рассылка будет остановлена", false)
	}
}

// payloadFromMessage builds a broadcast payload from an admin's message.
// Text and captions are rendered to HTML.
func payloadFromMessage(msg *models.Message) (broadcast.Payload, bool) {
	caption := ""
	if msg.Caption != "" {
		caption = formatMessage(msg.Caption, msg.CaptionEntities)
	}

	switch {
	case msg.Animation != nil:
		return broadcast.Payload{Kind: broadcast.KindAnimation, Text: caption, FileID: msg.Animation.FileID, FileName: msg.Animation.FileName}, true
	case len(msg.Photo) > 0:
		return broadcast.Payload{Kind: broadcast.KindPhoto, Text: caption, FileID: msg.Photo[len(msg.Photo)-1].FileID}, true
	case msg.Video != nil:
		return broadcast.Payload{Kind: broadcast.KindVideo, Text: caption, FileID: msg.Video.FileID, FileName: msg.Video.FileName}, true
	case msg.Audio != nil:
		return broadcast.Payload{Kind: broadcast.KindAudio, Text: caption, FileID: msg.Audio.FileID, FileName: msg.Audio.FileName}, true
	case msg.Document != nil:
		return broadcast.Payload{Kind: broadcast.KindDocument, Text: caption, FileID: msg.Document.FileID, FileName: msg.Document.FileName}, true
	case msg.Text != "":
		return broadcast.Payload{Kind: broadcast.KindText, Text: formatMessage(msg.Text, msg.Entities)}, true
	default:
		return broadcast.Payload{}, false
	}
}

func payloadFromSession(s fsm.Session) (broadcast.Payload, error) {
	switch broadcast.Mode(s.Get(fieldMode)) {
	case broadcast.ModeUsers, broadcast.ModeMirror:
	default:
		return broadcast.Payload{}, fmt.Errorf("unknown broadcast mode %q", s.Get(fieldMode))
	}
	buttons, err := broadcast.DecodeButtons(s.Get(fieldButtons))
	if err != nil {
		return broadcast.Payload{}, err
	}
	p := broadcast.Payload{
		Kind:     broadcast.Kind(s.Get(fieldKind)),
		Text:     s.Get(fieldText),
		FileID:   s.Get(fieldFileID),
		FileName: s.Get(fieldFileName),
		Buttons:  buttons,
	}
	if p.Kind == "" {
		return broadcast.Payload{}, errors.New("broadcast message missing")
	}
	return p, nil
}
