// Package spy caches messages from connected business chats and tells the
// account owner when the other side edits or deletes them.
package spy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/worq1337/bot228-repo/internal/database"
	"github.com/worq1337/bot228-repo/internal/htmlfmt"
)

// Notifier delivers notifications to the owner. *bot.Bot implements it.
type Notifier interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*models.Message, error)
	SendVideo(ctx context.Context, params *bot.SendVideoParams) (*models.Message, error)
	SendVideoNote(ctx context.Context, params *bot.SendVideoNoteParams) (*models.Message, error)
	SendVoice(ctx context.Context, params *bot.SendVoiceParams) (*models.Message, error)
}

// CacheStore is the message cache persistence.
type CacheStore interface {
	SaveCapturedMessage(ctx context.Context, msg *database.CapturedMessage) error
	GetCapturedMessage(ctx context.Context, chatID, messageID int64) (*database.CapturedMessage, error)
	UpdateCapturedPayload(ctx context.Context, chatID, messageID int64, payload string) error
	UpdateCapturedCaption(ctx context.Context, chatID, messageID int64, caption string) error
	DeleteCapturedMessage(ctx context.Context, chatID, messageID int64) (bool, error)
}

// Service implements capture, edit and delete handling.
type Service struct {
	store  CacheStore
	logger *slog.Logger
}

// New creates a Service.
func New(store CacheStore, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger.With("component", "spy")}
}

// Capture converts msg into a cache entry owned by ownerID. It reports false
// for message kinds that are not cached.
func Capture(msg *models.Message, ownerID int64) (database.CapturedMessage, bool) {
	c := database.CapturedMessage{
		ChatID:    msg.Chat.ID,
		MessageID: int64(msg.ID),
		OwnerID:   ownerID,
		Caption:   msg.Caption,
	}
	if msg.From != nil {
		c.SenderID = msg.From.ID
		c.SenderName = FullName(msg.From)
	}

	switch {
	case msg.Text != "":
		c.Kind, c.Payload = database.KindText, msg.Text
	case len(msg.Photo) > 0:
		c.Kind, c.Payload = database.KindPhoto, msg.Photo[len(msg.Photo)-1].FileID
	case msg.Video != nil:
		c.Kind, c.Payload = database.KindVideo, msg.Video.FileID
	case msg.VideoNote != nil:
		c.Kind, c.Payload = database.KindVideoNote, msg.VideoNote.FileID
	case msg.Voice != nil:
		c.Kind, c.Payload = database.KindVoice, msg.Voice.FileID
	default:
		return database.CapturedMessage{}, false
	}
	return c, true
}

// Store caches a captured message, replacing any entry with the same key.
func (s *Service) Store(ctx context.Context, c database.CapturedMessage) error {
	if err := s.store.SaveCapturedMessage(ctx, &c); err != nil {
		return fmt.Errorf("failed to capture message: %w", err)
	}
	s.logger.DebugContext(ctx, "Message captured", "chat_id", c.ChatID, "message_id", c.MessageID, "kind", c.Kind)
	return nil
}

// Edit is an observed edit of a business message. Text is the new message
// text, or the new caption of a media message.
type Edit struct {
	ChatID     int64
	MessageID  int64
	EditorID   int64
	EditorName string
	Text       string
	OwnerID    int64
	// Kind is empty for text messages.
	Kind   database.MessageKind
	FileID string
}

// EditOf builds the Edit for an edited business message.
func EditOf(msg *models.Message, ownerID int64) Edit {
	e := Edit{
		ChatID:    msg.Chat.ID,
		MessageID: int64(msg.ID),
		Text:      msg.Text,
		OwnerID:   ownerID,
	}
	if msg.From != nil {
		e.EditorID, e.EditorName = msg.From.ID, FullName(msg.From)
	}
	if c, ok := Capture(msg, ownerID); ok && c.Kind != database.KindText {
		e.Kind, e.FileID, e.Text = c.Kind, c.Payload, msg.Caption
	} else if e.Text == "" {
		e.Text = msg.Caption
	}
	return e
}

// Edit updates the cache with the new text and notifies the owner unless the
// owner made the edit. For media entries only the caption changes. It reports
// whether a notification was sent.
func (s *Service) Edit(ctx context.Context, n Notifier, e Edit) (bool, error) {
	cached, err := s.store.GetCapturedMessage(ctx, e.ChatID, e.MessageID)
	if err != nil {
		return false, fmt.Errorf("failed to look up edited message: %w", err)
	}

	var text string
	if cached != nil {
		var old string
		if cached.Kind == database.KindText {
			old = cached.Payload
			err = s.store.UpdateCapturedPayload(ctx, e.ChatID, e.MessageID, e.Text)
		} else {
			old = cached.Caption
			err = s.store.UpdateCapturedCaption(ctx, e.ChatID, e.MessageID, e.Text)
		}
		if err != nil {
			return false, fmt.Errorf("failed to update edited message: %w", err)
		}
		if e.EditorID == cached.OwnerID {
			return false, nil
		}
		text = fmt.Sprintf("🔏 Пользователь %s изменил сообщение:\n\n"+
			"Старый текст: <blockquote><b>%s</b></blockquote>\n"+
			"Новый текст: <blockquote><b>%s</b></blockquote>",
			userLink(e.EditorID, e.EditorName), htmlfmt.Escape(old), htmlfmt.Escape(e.Text))
		e.OwnerID = cached.OwnerID
	} else {
		entry := database.CapturedMessage{
			ChatID:     e.ChatID,
			MessageID:  e.MessageID,
			SenderID:   e.EditorID,
			SenderName: e.EditorName,
			Payload:    e.Text,
			Kind:       database.KindText,
			OwnerID:    e.OwnerID,
		}
		if e.Kind != "" && e.Kind != database.KindText {
			entry.Kind, entry.Payload, entry.Caption = e.Kind, e.FileID, e.Text
		}
		if err := s.store.SaveCapturedMessage(ctx, &entry); err != nil {
			return false, fmt.Errorf("failed to cache edited message: %w", err)
		}
		if e.EditorID == e.OwnerID {
			return false, nil
		}
		text = fmt.Sprintf("🔏 Пользователь %s изменил сообщение, но старый текст отсутствует в кэше.\n\n"+
			"Новый текст: <blockquote><b>%s</b></blockquote>",
			userLink(e.EditorID, e.EditorName), htmlfmt.Escape(e.Text))
	}

	if _, err := n.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    e.OwnerID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}); err != nil {
		return false, fmt.Errorf("failed to send edit notification: %w", err)
	}
	return true, nil
}

// Delete consumes the cache entries for ids in chatID and notifies each
// entry's owner, except for messages the owner wrote. Ids without an entry
// are skipped silently. It returns the number of notifications sent; a
// failure for one id does not stop the others.
func (s *Service) Delete(ctx context.Context, n Notifier, chatID int64, ids []int) (int, error) {
	sent := 0
	var errs []string
	for _, id := range ids {
		cached, err := s.store.GetCapturedMessage(ctx, chatID, int64(id))
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if cached == nil {
			continue
		}
		if _, err := s.store.DeleteCapturedMessage(ctx, chatID, int64(id)); err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if cached.SenderID == cached.OwnerID {
			continue
		}
		if err := notifyDeleted(ctx, n, cached); err != nil {
			s.logger.WarnContext(ctx, "Failed to send delete notification",
				"chat_id", chatID, "message_id", id, "owner_id", cached.OwnerID, "error", err)
			errs = append(errs, err.Error())
			continue
		}
		sent++
	}
	if len(errs) > 0 {
		return sent, fmt.Errorf("failed to process %d deleted messages: %s", len(errs), strings.Join(errs, "; "))
	}
	return sent, nil
}

func notifyDeleted(ctx context.Context, n Notifier, c *database.CapturedMessage) error {
	senderID := c.SenderID
	if senderID == 0 {
		senderID = c.ChatID
	}
	sender := "Отправитель: " + userLink(senderID, c.SenderName) + "\n"
	var caption string
	if c.Caption != "" {
		caption = "С содержанием: <code><b>" + htmlfmt.Escape(c.Caption) + "</b></code>"
	}
	media := &models.InputFileString{Data: c.Payload}

	var err error
	switch c.Kind {
	case database.KindText:
		_, err = n.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    c.OwnerID,
			Text:      "🗑 Это сообщение было удалено:\n\n" + sender + "Текст: <blockquote><b>" + htmlfmt.Escape(c.Payload) + "</b></blockquote>",
			ParseMode: models.ParseModeHTML,
		})
	case database.KindPhoto:
		_, err = n.SendPhoto(ctx, &bot.SendPhotoParams{
			ChatID: c.OwnerID, Photo: media, Caption: "🗑 Это фото было удалено:\n\n" + sender + caption, ParseMode: models.ParseModeHTML,
		})
	case database.KindVideo:
		_, err = n.SendVideo(ctx, &bot.SendVideoParams{
			ChatID: c.OwnerID, Video: media, Caption: "🗑 Это видео было удалено:\n\n" + sender + caption, ParseMode: models.ParseModeHTML,
		})
	case database.KindVoice:
		_, err = n.SendVoice(ctx, &bot.SendVoiceParams{
			ChatID: c.OwnerID, Voice: media, Caption: "🗑 Это голосовое было удалено:\n\n" + sender + caption, ParseMode: models.ParseModeHTML,
		})
	case database.KindVideoNote:
		// Video notes carry no caption, the notice follows as text.
		if _, err = n.SendVideoNote(ctx, &bot.SendVideoNoteParams{ChatID: c.OwnerID, VideoNote: media}); err == nil {
			_, err = n.SendMessage(ctx, &bot.SendMessageParams{
				ChatID: c.OwnerID, Text: "🗑 Это видеосообщение было удалено:\n\n" + sender, ParseMode: models.ParseModeHTML,
			})
		}
	default:
		return fmt.Errorf("unknown cached kind %q", c.Kind)
	}
	return err
}

// FullName joins first and last name the way Telegram displays them.
func FullName(u *models.User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func userLink(id int64, name string) string {
	if name == "" {
		name = fmt.Sprint(id)
	}
	return fmt.Sprintf("<a href='tg://user?id=%d'><b>%s</b></a>", id, htmlfmt.Escape(name))
}
