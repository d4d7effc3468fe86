package database

import "database/sql"

// Credential is a registered mirror bot. Token is unique across the table and
// ID preserves insertion order, which defines the 1-based list index.
type Credential struct {
	ID          int64  `db:"id"`
	Token       string `db:"token"`
	BotID       int64  `db:"bot_id"`
	BotUsername string `db:"bot_username"`
	WebhookURL  string `db:"webhook_url"`
	CreatedAt   int64  `db:"created_at"`
}

// EndUser is a person who started one of the bots.
type EndUser struct {
	ID        int64         `db:"id"`
	UserID    int64         `db:"user_id"`
	RefID     sql.NullInt64 `db:"ref_id"`
	BotName   string        `db:"bot_name"`
	CreatedAt int64         `db:"created_at"`
}

// MessageKind classifies a captured business message.
type MessageKind string

// Captured message kinds.
const (
	KindText      MessageKind = "text"
	KindPhoto     MessageKind = "photo"
	KindVideo     MessageKind = "video"
	KindVideoNote MessageKind = "video_note"
	KindVoice     MessageKind = "voice"
)

// CapturedMessage is a cached copy of a business-chat message keyed by (ChatID, MessageID).
// Payload holds the text for KindText and the platform file id otherwise.
type CapturedMessage struct {
	ChatID     int64       `db:"chat_id"`
	MessageID  int64       `db:"message_id"`
	SenderID   int64       `db:"sender_id"`
	SenderName string      `db:"sender_name"`
	Payload    string      `db:"payload"`
	Kind       MessageKind `db:"kind"`
	Caption    string      `db:"caption"`
	OwnerID    int64       `db:"owner_id"`
	CreatedAt  int64       `db:"created_at"`
}
