// ABOUTME: Conversation service: message posting, read state, history and stats
// ABOUTME: Messages are persisted before anything is broadcast; history is the source of truth

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/parley/internal/metrics"
	"github.com/2389/parley/internal/store"
)

// ErrEmptyMessage is returned when message content is empty after trimming.
var ErrEmptyMessage = errors.New("message content is empty")

// Store defines what the service needs from storage
type Store interface {
	ResolverStore
	ReconcileStore

	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	CreateMessage(ctx context.Context, msg *store.Message) error
	MarkRead(ctx context.Context, conversationID, userID string, at time.Time) error
	UnreadCount(ctx context.Context, conversationID, userID string) (int, error)
	ListMessages(ctx context.Context, conversationID string, cursor string, limit int) (*store.MessagePage, error)
	GetUserStats(ctx context.Context, userID string) (*store.UserStats, error)
}

// Service is the conversation layer shared by the chat socket and the HTTP API.
type Service struct {
	store    Store
	resolver *Resolver
	metrics  *metrics.Metrics
	now      func() time.Time
	logger   *slog.Logger
}

// NewService creates a Service. Pass nil logger for default, nil metrics to disable.
func NewService(s Store, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    s,
		resolver: NewResolver(s, logger),
		metrics:  m,
		now:      time.Now,
		logger:   logger.With("component", "conversation"),
	}
}

// Resolver returns the service's conversation resolver.
func (s *Service) Resolver() *Resolver {
	return s.resolver
}

// Resolve delegates to the Resolver.
func (s *Service) Resolve(ctx context.Context, req *ResolveRequest) (*store.Conversation, bool, error) {
	return s.resolver.Resolve(ctx, req)
}

// IsParticipant reports whether userID belongs to the conversation.
func (s *Service) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	return s.store.IsParticipant(ctx, conversationID, userID)
}

// PostMessage trims content and saves it as a message from sender.
// Returns ErrEmptyMessage for blank content; nothing is stored in that case.
func (s *Service) PostMessage(ctx context.Context, conversationID string, sender *store.User, content string) (*store.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}

	now := s.now().UTC()
	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       sender.ID,
		Content:        content,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("saving message: %w", err)
	}
	msg.Sender = sender

	s.metrics.MessagePersisted()
	s.logger.Debug("message recorded",
		"conversation_id", conversationID,
		"message_id", msg.ID,
		"sender", sender.ID)
	return msg, nil
}

// MarkRead marks everything in the conversation as read for userID.
func (s *Service) MarkRead(ctx context.Context, conversationID, userID string) error {
	return s.store.MarkRead(ctx, conversationID, userID, s.now().UTC())
}

// UnreadCount returns the user's unread count in the conversation.
func (s *Service) UnreadCount(ctx context.Context, conversationID, userID string) (int, error) {
	return s.store.UnreadCount(ctx, conversationID, userID)
}

// History returns a page of messages if userID participates in the conversation.
func (s *Service) History(ctx context.Context, conversationID, userID, cursor string, limit int) (*store.MessagePage, error) {
	ok, err := s.store.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, store.ErrNotParticipant
	}
	return s.store.ListMessages(ctx, conversationID, cursor, limit)
}

// Stats returns dashboard totals for userID.
func (s *Service) Stats(ctx context.Context, userID string) (*store.UserStats, error) {
	return s.store.GetUserStats(ctx, userID)
}

// RemoveDuplicates runs reconciliation against the service's store.
func (s *Service) RemoveDuplicates(ctx context.Context) (*Report, error) {
	return RemoveDuplicates(ctx, s.store, s.metrics, s.logger)
}
