package handlers

import (
	"fmt"

	"github.com/go-telegram/bot/models"

	"github.com/worq1337/bot228-repo/internal/config"
	"github.com/worq1337/bot228-repo/internal/database"
)

// Callback data values.
const (
	cbCreateBot = "create_bot"

	cbBoard      = "board"
	cbFullStatus = "full_status"
	cbFormatHTML = "format_html"
	cbMirrors    = "manage_webhooks"
	cbBackAdmin  = "back_admin_pnl"
	cbExportUser = "get_all_users"

	cbAddMirror           = "add_webhook"
	cbAddMirrorByToken    = "add_webhook_token"
	cbCancelMirrorAdd     = "cancel_webhook_add"
	cbDeleteMirrorPrefix  = "delete_webhook_"
	cbConfirmMirrorDelete = "confirm_webhook_delete"
	cbCancelMirrorDelete  = "cancel_webhook_delete"

	cbCancelHTML = "cancel_html_format"

	cbBroadcastUsers   = "broadcast_users"
	cbBroadcastMirrors = "broadcast_webhooks"
	cbBackToType       = "back_to_broadcast_type"
	cbCancelCreation   = "cancel_broadcast_creation"
	cbButtonsYes       = "add_buttons_yes"
	cbButtonsNo        = "add_buttons_no"
	cbMoreButtonsYes   = "more_buttons_yes"
	cbMoreButtonsNo    = "more_buttons_no"
	cbConfirm          = "broadcast_confirm"
	cbEdit             = "broadcast_edit"
	cbCancelPreview    = "broadcast_cancel"
	cbCancelRunning    = "cancel_broadcast"
)

func button(text, data string) models.InlineKeyboardButton {
	return models.InlineKeyboardButton{Text: text, CallbackData: data}
}

func keyboard(rows ...[]models.InlineKeyboardButton) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func row(buttons ...models.InlineKeyboardButton) []models.InlineKeyboardButton {
	return buttons
}

func welcomeKeyboard(msgs config.MessagesConfig) *models.InlineKeyboardMarkup {
	var rows [][]models.InlineKeyboardButton
	if msgs.TutorialURL != "" {
		rows = append(rows, row(models.InlineKeyboardButton{Text: "❗️Тутор по установке", URL: msgs.TutorialURL}))
	}
	if msgs.ChannelURL != "" {
		rows = append(rows, row(models.InlineKeyboardButton{Text: "📰 Новостной канал", URL: msgs.ChannelURL}))
	}
	rows = append(rows, row(button("🤖 Создать бота", cbCreateBot)))
	return keyboard(rows...)
}

func adminKeyboard() *models.InlineKeyboardMarkup {
	return keyboard(
		row(button("📢 Рассылка", cbBoard)),
		row(button("📊 Статистика", cbFullStatus)),
		row(button("🔠 Форматировать HTML", cbFormatHTML)),
		row(button("📡 Зеркала", cbMirrors)),
	)
}

func statusKeyboard() *models.InlineKeyboardMarkup {
	return keyboard(
		row(button("📄 Получить .txt", cbExportUser)),
		row(button("⬅️ Назад", cbBackAdmin)),
	)
}

func mirrorsKeyboard(creds []database.Credential) *models.InlineKeyboardMarkup {
	rows := [][]models.InlineKeyboardButton{
		row(button("➕ Добавить по ссылке", cbAddMirror), button("🔑 Добавить по токену", cbAddMirrorByToken)),
	}
	for i := range creds {
		rows = append(rows, row(button(fmt.Sprintf("❌ Удалить %d", i+1), fmt.Sprintf("%s%d", cbDeleteMirrorPrefix, i+1))))
	}
	rows = append(rows, row(button("⬅️ Назад", cbBackAdmin)))
	return keyboard(rows...)
}

func broadcastTypeKeyboard() *models.InlineKeyboardMarkup {
	return keyboard(
		row(button("👤 Пользователям", cbBroadcastUsers)),
		row(button("🔗 Webhook-зеркалам", cbBroadcastMirrors)),
		row(button("⬅️ Назад", cbBackAdmin)),
	)
}

func awaitingMessageKeyboard() *models.InlineKeyboardMarkup {
	return keyboard(
		row(button("❌ Отменить создание", cbCancelCreation)),
		row(button("⬅️ Назад", cbBackToType)),
	)
}

func yesNoKeyboard(yes, no string) *models.InlineKeyboardMarkup {
	return keyboard(
		row(button("✅ Да", yes), button("❌ Нет", no)),
		row(button("❌ Отменить рассылку", cbCancelCreation)),
	)
}

func previewKeyboard() *models.InlineKeyboardMarkup {
	return keyboard(row(
		button("✅ Отправить", cbConfirm),
		button("🔄 Изменить", cbEdit),
		button("❌ Отмена", cbCancelPreview),
	))
}

func runningKeyboard() *models.InlineKeyboardMarkup {
	return keyboard(row(button("❌ Отменить рассылку", cbCancelRunning)))
}
