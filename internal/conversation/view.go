// ABOUTME: JSON views of conversations and messages sent to clients
// ABOUTME: Shared by the chat socket frames and the HTTP API

package conversation

import (
	"time"

	"github.com/2389/parley/internal/store"
)

// MessageView is the client representation of a message.
type MessageView struct {
	ID             string    `json:"id"`
	Conversation   string    `json:"conversation"`
	Sender         string    `json:"sender"`
	SenderUsername string    `json:"sender_username"`
	SenderName     string    `json:"sender_name"`
	SenderAvatar   *string   `json:"sender_avatar"`
	Content        string    `json:"content"`
	IsRead         bool      `json:"is_read"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewMessageView builds the view for msg. msg.Sender may be nil, in which
// case the sender fields other than the id are empty.
func NewMessageView(msg *store.Message) MessageView {
	v := MessageView{
		ID:           msg.ID,
		Conversation: msg.ConversationID,
		Sender:       msg.SenderID,
		Content:      msg.Content,
		IsRead:       msg.IsRead,
		CreatedAt:    msg.CreatedAt,
		UpdatedAt:    msg.UpdatedAt,
	}
	if msg.Sender != nil {
		v.SenderUsername = msg.Sender.Username
		v.SenderName = msg.Sender.FullName()
		if msg.Sender.Avatar != "" {
			avatar := msg.Sender.Avatar
			v.SenderAvatar = &avatar
		}
	}
	return v
}

// ConversationView is the client representation of a conversation.
type ConversationView struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	IsGroup      bool      `json:"is_group"`
	CreatedBy    string    `json:"created_by,omitempty"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	IsExisting   bool      `json:"is_existing"`
}

// NewConversationView builds the view for conv.
func NewConversationView(conv *store.Conversation, existing bool) ConversationView {
	participants := conv.ParticipantIDs
	if participants == nil {
		participants = []string{}
	}
	return ConversationView{
		ID:           conv.ID,
		Name:         conv.Name,
		IsGroup:      conv.IsGroup,
		CreatedBy:    conv.CreatedBy,
		Participants: participants,
		CreatedAt:    conv.CreatedAt,
		UpdatedAt:    conv.UpdatedAt,
		IsExisting:   existing,
	}
}
