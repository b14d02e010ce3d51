package presence

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/store"
)

func TestTracker_SetOnline(t *testing.T) {
	s := store.NewMockStore()
	ctx := t.Context()
	require.NoError(t, s.CreateUser(ctx, &store.User{ID: "u1", Username: "alice", IsActive: true, CreatedAt: time.Now()}))

	tracker := NewTracker(s, nil)
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return fixed }

	require.NoError(t, tracker.SetOnline(ctx, "u1", true))
	u, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, u.IsOnline)
	assert.True(t, u.LastSeen.Equal(fixed))

	require.NoError(t, tracker.SetOnline(ctx, "u1", false))
	u, err = s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, u.IsOnline)
}

func TestTracker_StoreFailureIsReturned(t *testing.T) {
	s := store.NewMockStore()
	boom := errors.New("disk full")
	s.SetUserOnlineErr = boom

	tracker := NewTracker(s, nil)
	err := tracker.SetOnline(t.Context(), "u1", true)
	assert.ErrorIs(t, err, boom)
}

func TestTracker_UnknownUser(t *testing.T) {
	tracker := NewTracker(store.NewMockStore(), nil)
	err := tracker.SetOnline(t.Context(), "ghost", true)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
