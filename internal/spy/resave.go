package spy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// ErrNoMedia is returned when the replied message carries nothing to save.
var ErrNoMedia = errors.New("replied message has no media")

// Downloader fetches file content by platform file id.
type Downloader interface {
	Download(ctx context.Context, fileID string, w io.Writer) error
}

// SaveReplied downloads the media of reply and sends it back to ownerID as a
// fresh upload, so it survives even when the original was view-once.
func SaveReplied(ctx context.Context, n Notifier, d Downloader, ownerID int64, reply *models.Message, botUsername string) error {
	if reply == nil {
		return ErrNoMedia
	}

	var fileID, name string
	var send func(f models.InputFile, caption string) error
	switch {
	case len(reply.Photo) > 0:
		fileID, name = reply.Photo[len(reply.Photo)-1].FileID, "photo.jpg"
		send = func(f models.InputFile, caption string) error {
			_, err := n.SendPhoto(ctx, &bot.SendPhotoParams{ChatID: ownerID, Photo: f, Caption: caption})
			return err
		}
	case reply.Video != nil:
		fileID, name = reply.Video.FileID, "video.mp4"
		send = func(f models.InputFile, caption string) error {
			_, err := n.SendVideo(ctx, &bot.SendVideoParams{ChatID: ownerID, Video: f, Caption: caption})
			return err
		}
	case reply.VideoNote != nil:
		fileID, name = reply.VideoNote.FileID, "video_note.mp4"
		send = func(f models.InputFile, caption string) error {
			_, err := n.SendVideo(ctx, &bot.SendVideoParams{ChatID: ownerID, Video: f, Caption: caption})
			return err
		}
	case reply.Voice != nil:
		fileID, name = reply.Voice.FileID, "voice.ogg"
		send = func(f models.InputFile, caption string) error {
			_, err := n.SendVoice(ctx, &bot.SendVoiceParams{ChatID: ownerID, Voice: f, Caption: caption})
			return err
		}
	default:
		return ErrNoMedia
	}

	var buf bytes.Buffer
	if err := d.Download(ctx, fileID, &buf); err != nil {
		return fmt.Errorf("failed to download replied media: %w", err)
	}

	caption := "☝️Сохранено с помощью @" + botUsername
	if err := send(&models.InputFileUpload{Filename: name, Data: &buf}, caption); err != nil {
		return fmt.Errorf("failed to send saved media: %w", err)
	}
	return nil
}
