// ABOUTME: Resolves a bearer token to an active user
// ABOUTME: Combines the TokenVerifier with a user lookup and the is_active check

package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/parley/internal/store"
)

// ErrInactiveUser is returned when a token belongs to a deactivated account.
var ErrInactiveUser = errors.New("user is inactive")

// ErrUnknownUser is returned when a token names a user that does not exist.
var ErrUnknownUser = errors.New("unknown user")

// UserStore is the subset of store.Store needed to resolve identities.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
}

// Authenticator turns a bearer token into a *store.User.
type Authenticator struct {
	verifier TokenVerifier
	users    UserStore
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(verifier TokenVerifier, users UserStore) *Authenticator {
	return &Authenticator{verifier: verifier, users: users}
}

// Authenticate verifies the token and loads the user it identifies.
// Inactive users are refused with ErrInactiveUser.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*store.User, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	userID, err := a.verifier.Verify(token)
	if err != nil {
		return nil, err
	}

	user, err := a.users.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnknownUser
	}
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}

	if !user.IsActive {
		return nil, ErrInactiveUser
	}
	return user, nil
}
