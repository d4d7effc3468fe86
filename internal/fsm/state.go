// Package fsm keeps per-conversation wizard state for the bot handlers.
package fsm

import "time"

// State names a step of a multi-step dialogue.
type State string

// Conversation states. None is the implicit state of every key without a session.
const (
	None State = ""

	AwaitingToken        State = "awaiting_token"
	AwaitingWebhookURL   State = "awaiting_webhook_url"
	ConfirmWebhookDelete State = "confirm_webhook_delete"
	AwaitingHTMLText     State = "awaiting_html_text"

	BroadcastSelectType      State = "broadcast_select_type"
	BroadcastAwaitingMessage State = "broadcast_awaiting_message"
	BroadcastAddButtons      State = "broadcast_add_buttons"
	BroadcastButtonText      State = "broadcast_button_text"
	BroadcastButtonURL       State = "broadcast_button_url"
	BroadcastButtonAddMore   State = "broadcast_button_add_more"
	BroadcastPreviewConfirm  State = "broadcast_preview_confirm"
)

// Key scopes a session to one user in one chat of one bot. Private chats
// share their id across bots, so BotID keeps the main bot and every mirror
// apart.
type Key struct {
	BotID  int64
	ChatID int64
	UserID int64
}

// Session is the state and accumulated fields of one conversation.
type Session struct {
	State     State
	Fields    map[string]string
	UpdatedAt time.Time
}

// Get returns a field value or "".
func (s Session) Get(field string) string {
	return s.Fields[field]
}

// Keep returns a copy of s holding only the named fields.
func (s Session) Keep(fields ...string) Session {
	kept := make(map[string]string, len(fields))
	for _, f := range fields {
		if v, ok := s.Fields[f]; ok {
			kept[f] = v
		}
	}
	s.Fields = kept
	return s
}

// With returns a copy of s with field set to value.
func (s Session) With(field, value string) Session {
	fields := make(map[string]string, len(s.Fields)+1)
	for k, v := range s.Fields {
		fields[k] = v
	}
	fields[field] = value
	s.Fields = fields
	return s
}

// In returns a copy of s moved to state.
func (s Session) In(state State) Session {
	s.State = state
	return s
}
