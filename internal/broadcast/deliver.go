package broadcast

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// ErrRecipientUnreachable marks a recipient that blocked the bot or never started it.
var ErrRecipientUnreachable = errors.New("recipient unreachable")

// Sender is the slice of the Bot API a broadcast needs. *bot.Bot implements it.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*models.Message, error)
	SendVideo(ctx context.Context, params *bot.SendVideoParams) (*models.Message, error)
	SendDocument(ctx context.Context, params *bot.SendDocumentParams) (*models.Message, error)
	SendAudio(ctx context.Context, params *bot.SendAudioParams) (*models.Message, error)
	SendAnimation(ctx context.Context, params *bot.SendAnimationParams) (*models.Message, error)
}

// Deliver sends p to chatID. For media kinds file replaces p.FileID when non-nil.
func Deliver(ctx context.Context, s Sender, chatID int64, p Payload, file models.InputFile) (*models.Message, error) {
	if file == nil && p.FileID != "" {
		file = &models.InputFileString{Data: p.FileID}
	}
	markup := p.Markup()

	var (
		msg *models.Message
		err error
	)
	switch p.Kind {
	case KindText:
		msg, err = s.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID, Text: p.Text, ParseMode: models.ParseModeHTML, ReplyMarkup: markup,
		})
	case KindPhoto:
		msg, err = s.SendPhoto(ctx, &bot.SendPhotoParams{
			ChatID: chatID, Photo: file, Caption: p.Text, ParseMode: models.ParseModeHTML, ReplyMarkup: markup,
		})
	case KindVideo:
		msg, err = s.SendVideo(ctx, &bot.SendVideoParams{
			ChatID: chatID, Video: file, Caption: p.Text, ParseMode: models.ParseModeHTML, ReplyMarkup: markup,
		})
	case KindDocument:
		msg, err = s.SendDocument(ctx, &bot.SendDocumentParams{
			ChatID: chatID, Document: file, Caption: p.Text, ParseMode: models.ParseModeHTML, ReplyMarkup: markup,
		})
	case KindAudio:
		msg, err = s.SendAudio(ctx, &bot.SendAudioParams{
			ChatID: chatID, Audio: file, Caption: p.Text, ParseMode: models.ParseModeHTML, ReplyMarkup: markup,
		})
	case KindAnimation:
		msg, err = s.SendAnimation(ctx, &bot.SendAnimationParams{
			ChatID: chatID, Animation: file, Caption: p.Text, ParseMode: models.ParseModeHTML, ReplyMarkup: markup,
		})
	default:
		return nil, fmt.Errorf("unsupported payload kind %q", p.Kind)
	}

	if err != nil {
		if unreachable(err) {
			return nil, fmt.Errorf("%w: %v", ErrRecipientUnreachable, err)
		}
		return nil, err
	}
	return msg, nil
}

// unreachable reports whether err means the chat cannot receive messages
// from this bot: blocked, deactivated or never started.
func unreachable(err error) bool {
	if errors.Is(err, bot.ErrorForbidden) {
		return true
	}
	return errors.Is(err, bot.ErrorBadRequest) && strings.Contains(strings.ToLower(err.Error()), "chat not found")
}

// sentFileID returns the platform file id of the media in msg, so later
// sends through the same bot can skip the upload.
func sentFileID(kind Kind, msg *models.Message) string {
	if msg == nil {
		return ""
	}
	switch kind {
	case KindPhoto:
		if n := len(msg.Photo); n > 0 {
			return msg.Photo[n-1].FileID
		}
	case KindVideo:
		if msg.Video != nil {
			return msg.Video.FileID
		}
	case KindDocument:
		if msg.Document != nil {
			return msg.Document.FileID
		}
	case KindAudio:
		if msg.Audio != nil {
			return msg.Audio.FileID
		}
	case KindAnimation:
		if msg.Animation != nil {
			return msg.Animation.FileID
		}
	}
	return ""
}
