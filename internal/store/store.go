// ABOUTME: Store interface and data types for parley persistence
// ABOUTME: Defines User, Conversation, Participant, Message and the Store interface

package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrNotParticipant is returned when a user is not a participant of a conversation
var ErrNotParticipant = errors.New("not a participant")

// ErrUsernameExists is returned when trying to create a user with an existing username.
var ErrUsernameExists = errors.New("username already exists")

// User is a chat account. IsOnline is only changed by presence transitions.
type User struct {
	ID        string
	Username  string
	FirstName string
	LastName  string
	Email     string
	Avatar    string // URL, empty if the user has no avatar
	IsActive  bool
	IsOnline  bool
	LastSeen  time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FullName returns "first last", falling back to the username when both are empty.
func (u *User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// Conversation is a one-to-one or group conversation
type Conversation struct {
	ID        string
	Name      string // optional display name
	IsGroup   bool
	CreatedBy string // user ID, empty if the creator was deleted
	CreatedAt time.Time
	UpdatedAt time.Time

	// ParticipantIDs is populated by list queries that aggregate participants.
	ParticipantIDs []string
}

// Participant links a user to a conversation and carries read state
type Participant struct {
	ConversationID string
	UserID         string
	JoinedAt       time.Time
	LastReadAt     time.Time
}

// Message is a single chat message. Only IsRead and UpdatedAt change after creation.
type Message struct {
	ID             string
	Seq            int64 // insertion order, breaks created_at ties
	ConversationID string
	SenderID       string
	Content        string
	IsRead         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// Sender is populated by reads that join the users table.
	Sender *User
}

// MessagePage is one page of conversation history, newest first.
type MessagePage struct {
	Messages   []*Message
	NextCursor string // empty when there are no older messages
}

// UserStats aggregates dashboard counters for a single user.
type UserStats struct {
	TotalConversations int
	TotalMessagesSent  int
	TotalUnread        int
}

// Store defines the interface for conversation, participant, message and user persistence
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	SetUserOnline(ctx context.Context, id string, online bool, at time.Time) error

	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation, participantIDs []string) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListDirectConversations(ctx context.Context, userA, userB string) ([]*Conversation, error)
	ListAllDirectConversations(ctx context.Context) ([]*Conversation, error)
	DeleteConversation(ctx context.Context, id string) error

	// Participants
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	GetParticipant(ctx context.Context, conversationID, userID string) (*Participant, error)
	ListParticipants(ctx context.Context, conversationID string) ([]*Participant, error)
	MarkRead(ctx context.Context, conversationID, userID string, at time.Time) error
	UnreadCount(ctx context.Context, conversationID, userID string) (int, error)

	// Messages
	CreateMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, id string) (*Message, error)
	ListMessages(ctx context.Context, conversationID string, cursor string, limit int) (*MessagePage, error)
	CountMessages(ctx context.Context, conversationID string) (int, error)

	// Stats
	GetUserStats(ctx context.Context, userID string) (*UserStats, error)

	// Close releases any resources held by the store
	Close() error
}
