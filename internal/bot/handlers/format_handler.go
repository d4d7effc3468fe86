package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/worq1337/bot228-repo/internal/fsm"
	"github.com/worq1337/bot228-repo/internal/htmlfmt"
)

// NewFormatHTMLHandler returns the handler that starts the HTML formatter.
func NewFormatHTMLHandler(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		log := deps.Logger.With("handler", "format_html")
		cq := update.CallbackQuery
		answer(ctx, b, log, cq, "", false)
		deps.setSession(ctx, callbackKey(b, cq), fsm.Session{State: fsm.AwaitingHTMLText})
		showHTML(ctx, b, log, cq, "🔠 <b>Форматирование HTML</b>\n\n"+
			"Пришлите текст с форматированием, и я верну его HTML-разметку.\n"+
			"Поддерживаются жирный, курсив, подчёркнутый, зачёркнутый, код и ссылки.",
			keyboard(row(button("❌ Отмена", cbCancelHTML))))
	}
}

// NewCancelHTMLHandler returns the handler that leaves the HTML formatter.
func NewCancelHTMLHandler(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		log := deps.Logger.With("handler", "cancel_html_format")
		cq := update.CallbackQuery
		answer(ctx, b, log, cq, "", false)
		deps.clearSession(ctx, callbackKey(b, cq))
		showHTML(ctx, b, log, cq, adminPanelText, adminKeyboard())
	}
}

// handleFormatText converts one message to HTML. The formatter stays active
// until it is cancelled.
func (d HandlerDeps) handleFormatText(ctx context.Context, b *bot.Bot, msg *models.Message, key fsm.Key) {
	log := d.Logger.With("handler", "awaiting_html_text")

	text, entities := msg.Text, msg.Entities
	if text == "" {
		text, entities = msg.Caption, msg.CaptionEntities
	}
	if text == "" {
		sendPlain(ctx, b, log, key.ChatID, "Пришлите текстовое сообщение.")
		return
	}

	formatted := formatMessage(text, entities)
	cancel := keyboard(row(button("❌ Отмена", cbCancelHTML)))

	if sendHTML(ctx, b, log, key.ChatID, formatted, nil) == nil {
		sendPlain(ctx, b, log, key.ChatID, "⚠️ Не удалось показать предпросмотр: разметка некорректна.")
	}
	sendHTML(ctx, b, log, key.ChatID, "<b>HTML-код:</b>\n<code>"+htmlfmt.Escape(formatted)+"</code>", cancel)
}

// formatMessage renders text as HTML from its entities, or from the
// markdown-like syntax when it has none.
func formatMessage(text string, entities []models.MessageEntity) string {
	if len(entities) == 0 {
		return htmlfmt.Markdown(text)
	}
	return htmlfmt.FromEntities(text, convertEntities(entities))
}

func convertEntities(entities []models.MessageEntity) []htmlfmt.Entity {
	out := make([]htmlfmt.Entity, 0, len(entities))
	for _, e := range entities {
		out = append(out, htmlfmt.Entity{
			Type:     string(e.Type),
			Offset:   e.Offset,
			Length:   e.Length,
			URL:      e.URL,
			Language: e.Language,
		})
	}
	return out
}
