// ABOUTME: Unit tests for MockStore to ensure behavior matches SQLiteStore
// ABOUTME: Focuses on read-state, pagination and cascade semantics of the in-memory implementation

package store

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockStore_CreateUser_Duplicate(t *testing.T) {
	store := NewMockStore()
	createTestUser(t, store, "alice")

	err := store.CreateUser(t.Context(), &User{ID: "x", Username: "alice", CreatedAt: time.Now()})
	assert.ErrorIs(t, err, ErrUsernameExists)
}

func TestMockStore_CreateConversation_UnknownUser(t *testing.T) {
	store := NewMockStore()
	alice := createTestUser(t, store, "alice")

	err := store.CreateConversation(t.Context(), &Conversation{ID: "c1", CreatedAt: time.Now()}, []string{alice.ID, "ghost"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetConversation(t.Context(), "c1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMockStore_UnreadCountAndMarkRead(t *testing.T) {
	store := NewMockStore()
	ctx := t.Context()
	alice := createTestUser(t, store, "alice")
	bob := createTestUser(t, store, "bob")

	start := time.Now().UTC()
	conv := createTestConversation(t, store, false, start, alice.ID, bob.ID)
	createTestMessage(t, store, conv.ID, alice.ID, "one", start.Add(time.Second))
	createTestMessage(t, store, conv.ID, bob.ID, "two", start.Add(2*time.Second))

	unread, err := store.UnreadCount(ctx, conv.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	readAt := start.Add(5 * time.Second)
	require.NoError(t, store.MarkRead(ctx, conv.ID, bob.ID, readAt))
	require.NoError(t, store.MarkRead(ctx, conv.ID, bob.ID, start))

	p, err := store.GetParticipant(ctx, conv.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, p.LastReadAt.Equal(readAt), "last_read_at never moves backward")

	unread, err = store.UnreadCount(ctx, conv.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)
}

func TestMockStore_ListMessages_Pagination(t *testing.T) {
	store := NewMockStore()
	ctx := t.Context()
	alice := createTestUser(t, store, "alice")
	bob := createTestUser(t, store, "bob")

	start := time.Now().UTC()
	conv := createTestConversation(t, store, false, start, alice.ID, bob.ID)
	for i := 0; i < 3; i++ {
		createTestMessage(t, store, conv.ID, alice.ID, fmt.Sprintf("msg-%d", i), start)
	}

	page, err := store.ListMessages(ctx, conv.ID, "", 2)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "msg-2", page.Messages[0].Content, "equal timestamps order by insertion")
	require.NotNil(t, page.Messages[0].Sender)
	assert.Equal(t, "alice", page.Messages[0].Sender.Username)

	page, err = store.ListMessages(ctx, conv.ID, page.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "msg-0", page.Messages[0].Content)
	assert.Empty(t, page.NextCursor)
}

func TestMockStore_DeleteConversation_Cascades(t *testing.T) {
	store := NewMockStore()
	ctx := t.Context()
	alice := createTestUser(t, store, "alice")
	bob := createTestUser(t, store, "bob")

	conv := createTestConversation(t, store, false, time.Now(), alice.ID, bob.ID)
	msg := createTestMessage(t, store, conv.ID, alice.ID, "hi", time.Now())

	require.NoError(t, store.DeleteConversation(ctx, conv.ID))

	_, err := store.GetMessage(ctx, msg.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	ok, err := store.IsParticipant(ctx, conv.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMockStore_ErrorInjection(t *testing.T) {
	store := NewMockStore()
	ctx := t.Context()
	alice := createTestUser(t, store, "alice")
	conv := createTestConversation(t, store, true, time.Now(), alice.ID)

	boom := errors.New("boom")
	store.CreateMessageErr = boom
	err := store.CreateMessage(ctx, &Message{ID: "m", ConversationID: conv.ID, SenderID: alice.ID, Content: "x"})
	assert.ErrorIs(t, err, boom)

	store.SetUserOnlineErr = boom
	assert.ErrorIs(t, store.SetUserOnline(ctx, alice.ID, true, time.Now()), boom)
}
