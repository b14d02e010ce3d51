// ABOUTME: Wire frames exchanged over the chat socket
// ABOUTME: Inbound frames default to type "message"; outbound frames are pre-encoded JSON

package realtime

import (
	"encoding/json"

	"github.com/2389/parley/internal/conversation"
	"github.com/2389/parley/internal/store"
)

// Event type discriminators.
const (
	EventMessage    = "message"
	EventTyping     = "typing"
	EventUserStatus = "user_status"
)

// inboundEvent is a client-to-server frame.
type inboundEvent struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	IsTyping bool   `json:"is_typing"`
}

// decodeInbound parses a client frame. A missing type means "message".
func decodeInbound(data []byte) (*inboundEvent, error) {
	var ev inboundEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	if ev.Type == "" {
		ev.Type = EventMessage
	}
	return &ev, nil
}

// MessageFrame carries a persisted message to the group.
type MessageFrame struct {
	Type    string                   `json:"type"`
	Message conversation.MessageView `json:"message"`
}

// TypingFrame signals that a user started or stopped typing.
type TypingFrame struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}

// StatusFrame announces a user's presence change.
type StatusFrame struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	IsOnline bool   `json:"is_online"`
}

func encodeMessage(msg *store.Message) ([]byte, error) {
	return json.Marshal(MessageFrame{
		Type:    EventMessage,
		Message: conversation.NewMessageView(msg),
	})
}

func encodeTyping(user *store.User, typing bool) ([]byte, error) {
	return json.Marshal(TypingFrame{
		Type:     EventTyping,
		UserID:   user.ID,
		Username: user.Username,
		IsTyping: typing,
	})
}

func encodeStatus(user *store.User, online bool) ([]byte, error) {
	return json.Marshal(StatusFrame{
		Type:     EventUserStatus,
		UserID:   user.ID,
		Username: user.Username,
		IsOnline: online,
	})
}
