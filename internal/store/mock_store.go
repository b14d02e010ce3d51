// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	users         map[string]*User                   // keyed by user ID
	conversations map[string]*Conversation           // keyed by conversation ID
	participants  map[string]map[string]*Participant // conversation ID -> user ID
	messages      map[string][]*Message              // keyed by conversation ID, insertion order
	seq           int64

	// Error injection for tests
	CreateMessageErr error
	SetUserOnlineErr error
}

// Ensure MockStore implements Store.
var _ Store = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		users:         make(map[string]*User),
		conversations: make(map[string]*Conversation),
		participants:  make(map[string]map[string]*Participant),
		messages:      make(map[string][]*Message),
	}
}

// CreateUser stores a new user.
func (m *MockStore) CreateUser(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if existing.Username == user.Username || existing.ID == user.ID {
			return ErrUsernameExists
		}
	}

	if user.LastSeen.IsZero() {
		user.LastSeen = user.CreatedAt
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}

	u := *user
	m.users[u.ID] = &u
	return nil
}

// GetUser retrieves a user by ID.
func (m *MockStore) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *u
	return &result, nil
}

// GetUserByUsername retrieves a user by username.
func (m *MockStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Username == username {
			result := *u
			return &result, nil
		}
	}
	return nil, ErrNotFound
}

// SetUserOnline updates the online flag and last_seen.
func (m *MockStore) SetUserOnline(ctx context.Context, id string, online bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SetUserOnlineErr != nil {
		return m.SetUserOnlineErr
	}

	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.IsOnline = online
	u.LastSeen = at
	u.UpdatedAt = at
	return nil
}

// CreateConversation stores a conversation and its participants.
func (m *MockStore) CreateConversation(ctx context.Context, conv *Conversation, participantIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = conv.CreatedAt
	}

	ids := uniqueIDs(participantIDs)
	for _, id := range ids {
		if _, ok := m.users[id]; !ok {
			return ErrNotFound
		}
	}

	c := *conv
	c.ParticipantIDs = nil
	m.conversations[c.ID] = &c

	members := make(map[string]*Participant, len(ids))
	for _, id := range ids {
		members[id] = &Participant{
			ConversationID: c.ID,
			UserID:         id,
			JoinedAt:       c.CreatedAt,
			LastReadAt:     c.CreatedAt,
		}
	}
	m.participants[c.ID] = members

	conv.ParticipantIDs = append([]string(nil), ids...)
	sort.Strings(conv.ParticipantIDs)
	return nil
}

// GetConversation retrieves a conversation with its participant IDs.
func (m *MockStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.conversationCopy(c), nil
}

// conversationCopy must be called with the lock held.
func (m *MockStore) conversationCopy(c *Conversation) *Conversation {
	result := *c
	result.ParticipantIDs = nil
	for id := range m.participants[c.ID] {
		result.ParticipantIDs = append(result.ParticipantIDs, id)
	}
	sort.Strings(result.ParticipantIDs)
	return &result
}

// ListDirectConversations returns non-group conversations containing both users.
func (m *MockStore) ListDirectConversations(ctx context.Context, userA, userB string) ([]*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Conversation
	for _, c := range m.conversations {
		if c.IsGroup {
			continue
		}
		members := m.participants[c.ID]
		_, hasA := members[userA]
		_, hasB := members[userB]
		if hasA && hasB {
			result = append(result, m.conversationCopy(c))
		}
	}
	sortConversations(result)
	return result, nil
}

// ListAllDirectConversations returns every non-group conversation.
func (m *MockStore) ListAllDirectConversations(ctx context.Context) ([]*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Conversation
	for _, c := range m.conversations {
		if !c.IsGroup {
			result = append(result, m.conversationCopy(c))
		}
	}
	sortConversations(result)
	return result, nil
}

func sortConversations(convs []*Conversation) {
	sort.Slice(convs, func(i, j int) bool {
		if !convs[i].CreatedAt.Equal(convs[j].CreatedAt) {
			return convs[i].CreatedAt.Before(convs[j].CreatedAt)
		}
		return convs[i].ID < convs[j].ID
	})
}

// DeleteConversation removes a conversation, its participants and its messages.
func (m *MockStore) DeleteConversation(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversations[id]; !ok {
		return ErrNotFound
	}
	delete(m.conversations, id)
	delete(m.participants, id)
	delete(m.messages, id)
	return nil
}

// IsParticipant reports whether the user belongs to the conversation.
func (m *MockStore) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.participants[conversationID][userID]
	return ok, nil
}

// GetParticipant retrieves a participant row.
func (m *MockStore) GetParticipant(ctx context.Context, conversationID, userID string) (*Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.participants[conversationID][userID]
	if !ok {
		return nil, ErrNotParticipant
	}
	result := *p
	return &result, nil
}

// ListParticipants returns the participants of a conversation in join order.
func (m *MockStore) ListParticipants(ctx context.Context, conversationID string) ([]*Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Participant
	for _, p := range m.participants[conversationID] {
		cp := *p
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].JoinedAt.Equal(result[j].JoinedAt) {
			return result[i].JoinedAt.Before(result[j].JoinedAt)
		}
		return result[i].UserID < result[j].UserID
	})
	return result, nil
}

// MarkRead advances last_read_at without moving it backward.
func (m *MockStore) MarkRead(ctx context.Context, conversationID, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.participants[conversationID][userID]
	if !ok {
		return ErrNotParticipant
	}
	if at.After(p.LastReadAt) {
		p.LastReadAt = at
	}
	return nil
}

// UnreadCount counts messages from other senders after last_read_at.
func (m *MockStore) UnreadCount(ctx context.Context, conversationID, userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.participants[conversationID][userID]
	if !ok {
		return 0, ErrNotParticipant
	}
	return m.unreadLocked(p), nil
}

func (m *MockStore) unreadLocked(p *Participant) int {
	count := 0
	for _, msg := range m.messages[p.ConversationID] {
		if msg.SenderID != p.UserID && msg.CreatedAt.After(p.LastReadAt) {
			count++
		}
	}
	return count
}

// CreateMessage stores a message and bumps the conversation's updated_at.
func (m *MockStore) CreateMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateMessageErr != nil {
		return m.CreateMessageErr
	}

	c, ok := m.conversations[msg.ConversationID]
	if !ok {
		return ErrNotFound
	}
	if msg.UpdatedAt.IsZero() {
		msg.UpdatedAt = msg.CreatedAt
	}
	if msg.CreatedAt.After(c.UpdatedAt) {
		c.UpdatedAt = msg.CreatedAt
	}

	m.seq++
	msg.Seq = m.seq

	stored := *msg
	stored.Sender = nil
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], &stored)
	return nil
}

// GetMessage retrieves a message by ID with its sender populated.
func (m *MockStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, msgs := range m.messages {
		for _, msg := range msgs {
			if msg.ID == id {
				return m.messageCopy(msg), nil
			}
		}
	}
	return nil, ErrNotFound
}

// messageCopy must be called with the lock held.
func (m *MockStore) messageCopy(msg *Message) *Message {
	result := *msg
	if u, ok := m.users[msg.SenderID]; ok {
		sender := *u
		result.Sender = &sender
	}
	return &result
}

// ListMessages returns one page of history, newest first.
func (m *MockStore) ListMessages(ctx context.Context, conversationID string, cursor string, limit int) (*MessagePage, error) {
	c, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	limit = clampLimit(limit)

	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]*Message, 0, len(m.messages[conversationID]))
	for _, msg := range m.messages[conversationID] {
		if c == nil || c.before(msg) {
			all = append(all, m.messageCopy(msg))
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].Seq > all[j].Seq
	})
	if len(all) > limit+1 {
		all = all[:limit+1]
	}

	return buildPage(all, limit)
}

// CountMessages returns the number of messages in a conversation.
func (m *MockStore) CountMessages(ctx context.Context, conversationID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.messages[conversationID]), nil
}

// GetUserStats returns conversation, sent-message and unread totals for a user.
func (m *MockStore) GetUserStats(ctx context.Context, userID string) (*UserStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &UserStats{}
	for _, members := range m.participants {
		if p, ok := members[userID]; ok {
			stats.TotalConversations++
			stats.TotalUnread += m.unreadLocked(p)
		}
	}
	for _, msgs := range m.messages {
		for _, msg := range msgs {
			if msg.SenderID == userID {
				stats.TotalMessagesSent++
			}
		}
	}
	return stats, nil
}

// Close is a no-op for MockStore.
func (m *MockStore) Close() error {
	return nil
}
