// Package broadcast fans admin-authored messages out to end users, either
// through the origin bot or through every registered mirror bot.
package broadcast

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-telegram/bot/models"
)

// Mode selects the delivery path of a job.
type Mode string

const (
	// ModeUsers sends through the bot the admin is talking to.
	ModeUsers Mode = "users"
	// ModeMirror sends through every registered mirror bot.
	ModeMirror Mode = "mirror"
)

// Kind is the content type of a payload.
type Kind string

// Supported payload kinds.
const (
	KindText      Kind = "text"
	KindPhoto     Kind = "photo"
	KindVideo     Kind = "video"
	KindDocument  Kind = "document"
	KindAudio     Kind = "audio"
	KindAnimation Kind = "animation"
)

// Button is an inline URL button attached to a payload.
type Button struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// Payload is the message a job delivers. Text is the message body for
// KindText and the caption otherwise, already in Bot API HTML.
type Payload struct {
	Kind     Kind
	Text     string
	FileID   string
	FileName string
	Buttons  []Button
}

// HasMedia reports whether the payload carries a file.
func (p Payload) HasMedia() bool {
	return p.Kind != KindText && p.FileID != ""
}

// Markup renders the buttons one per row, or nil without buttons.
func (p Payload) Markup() models.ReplyMarkup {
	if len(p.Buttons) == 0 {
		return nil
	}
	rows := make([][]models.InlineKeyboardButton, 0, len(p.Buttons))
	for _, b := range p.Buttons {
		rows = append(rows, []models.InlineKeyboardButton{{Text: b.Text, URL: b.URL}})
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// EncodeButtons serializes buttons for storage in a conversation field.
func EncodeButtons(buttons []Button) string {
	if len(buttons) == 0 {
		return ""
	}
	data, err := json.Marshal(buttons)
	if err != nil {
		return ""
	}
	return string(data)
}

// DecodeButtons is the inverse of EncodeButtons.
func DecodeButtons(s string) ([]Button, error) {
	if s == "" {
		return nil, nil
	}
	var buttons []Button
	if err := json.Unmarshal([]byte(s), &buttons); err != nil {
		return nil, fmt.Errorf("failed to decode buttons: %w", err)
	}
	return buttons, nil
}

// FixButtonURL repairs common mistakes in button URLs and reports whether it
// changed anything. Accepted schemes are http, https and tg.
func FixButtonURL(raw string) (string, bool) {
	u := strings.TrimSpace(raw)
	for _, scheme := range []string{"http://", "https://", "tg://"} {
		if strings.HasPrefix(u, scheme) {
			return u, u != raw
		}
	}
	switch {
	case strings.HasPrefix(u, "httos://"):
		u = "https://" + strings.TrimPrefix(u, "httos://")
	case strings.HasPrefix(u, "htp://"):
		u = "http://" + strings.TrimPrefix(u, "htp://")
	default:
		u = "https://" + strings.TrimPrefix(u, "//")
	}
	return u, true
}
