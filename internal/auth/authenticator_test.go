package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/store"
)

type failingUserStore struct{ err error }

func (f failingUserStore) GetUser(ctx context.Context, id string) (*store.User, error) {
	return nil, f.err
}

func TestAuthenticator_Authenticate(t *testing.T) {
	verifier := newTestVerifier(t)
	users := store.NewMockStore()
	alice := seedUser(t, users, "alice", true)
	seedUser(t, users, "bob", false)

	authn := NewAuthenticator(verifier, users)

	token, err := verifier.Generate(alice.ID, time.Hour)
	require.NoError(t, err)

	got, err := authn.Authenticate(t.Context(), token)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)

	_, err = authn.Authenticate(t.Context(), "")
	assert.ErrorIs(t, err, ErrInvalidToken)

	bobToken, err := verifier.Generate("bob", time.Hour)
	require.NoError(t, err)
	_, err = authn.Authenticate(t.Context(), bobToken)
	assert.ErrorIs(t, err, ErrInactiveUser)

	ghostToken, err := verifier.Generate("ghost", time.Hour)
	require.NoError(t, err)
	_, err = authn.Authenticate(t.Context(), ghostToken)
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestAuthenticator_StoreFailure(t *testing.T) {
	verifier := newTestVerifier(t)
	boom := errors.New("db down")
	authn := NewAuthenticator(verifier, failingUserStore{err: boom})

	token, err := verifier.Generate("alice", time.Hour)
	require.NoError(t, err)

	_, err = authn.Authenticate(t.Context(), token)
	assert.ErrorIs(t, err, boom)
}
