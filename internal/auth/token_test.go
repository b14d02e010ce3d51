// ABOUTME: Unit tests for JWT token verification and generation
// ABOUTME: Tests valid tokens, invalid tokens, expired tokens and token types

package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret-key-for-jwt-signing!")

func newTestVerifier(t *testing.T) *JWTVerifier {
	t.Helper()
	verifier, err := NewJWTVerifier(testSecret)
	if err != nil {
		t.Fatalf("NewJWTVerifier() error = %v", err)
	}
	return verifier
}

func TestNewJWTVerifier_ShortSecret(t *testing.T) {
	_, err := NewJWTVerifier([]byte("short"))
	if !errors.Is(err, ErrWeakSecret) {
		t.Errorf("NewJWTVerifier() error = %v, want ErrWeakSecret", err)
	}
}

func TestJWTVerifier_ValidToken(t *testing.T) {
	verifier := newTestVerifier(t)

	userID := "user-123"
	token, err := verifier.Generate(userID, time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	gotID, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	if gotID != userID {
		t.Errorf("Verify() = %q, want %q", gotID, userID)
	}
}

func TestJWTVerifier_InvalidToken(t *testing.T) {
	verifier := newTestVerifier(t)

	tests := []struct {
		name  string
		token string
	}{
		{
			name:  "empty token",
			token: "",
		},
		{
			name:  "garbage token",
			token: "not-a-jwt-token",
		},
		{
			name:  "malformed JWT",
			token: "header.payload.signature",
		},
		{
			name: "wrong secret",
			token: func() string {
				other, _ := NewJWTVerifier([]byte("a-completely-different-secret-32"))
				token, _ := other.Generate("user-123", time.Hour)
				return token
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.Verify(tt.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestJWTVerifier_ExpiredToken(t *testing.T) {
	verifier := newTestVerifier(t)

	token, err := verifier.Generate("user-123", -time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	_, err = verifier.Verify(token)
	if !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Verify() error = %v, want ErrExpiredToken", err)
	}
}

func TestJWTVerifier_RefreshTokenRejected(t *testing.T) {
	verifier := newTestVerifier(t)

	token, err := verifier.GenerateWithClaims("user-123", Claims{Username: "alice"}, TokenTypeRefresh, time.Hour)
	if err != nil {
		t.Fatalf("GenerateWithClaims() error = %v", err)
	}

	_, err = verifier.Verify(token)
	if !errors.Is(err, ErrWrongTokenType) {
		t.Errorf("Verify() error = %v, want ErrWrongTokenType", err)
	}
}

func TestJWTVerifier_ClaimFallbacks(t *testing.T) {
	verifier := newTestVerifier(t)

	sign := func(claims jwt.MapClaims) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
		if err != nil {
			t.Fatalf("SignedString() error = %v", err)
		}
		return token
	}
	exp := time.Now().Add(time.Hour).Unix()

	t.Run("sub only, no type", func(t *testing.T) {
		id, err := verifier.Verify(sign(jwt.MapClaims{"sub": "user-9", "exp": exp}))
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if id != "user-9" {
			t.Errorf("Verify() = %q, want user-9", id)
		}
	})

	t.Run("user_id preferred over sub", func(t *testing.T) {
		id, err := verifier.Verify(sign(jwt.MapClaims{"user_id": "a", "sub": "b", "type": "access", "exp": exp}))
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if id != "a" {
			t.Errorf("Verify() = %q, want a", id)
		}
	})

	t.Run("no identity claim", func(t *testing.T) {
		_, err := verifier.Verify(sign(jwt.MapClaims{"type": "access", "exp": exp}))
		if !errors.Is(err, ErrMissingClaim) {
			t.Errorf("Verify() error = %v, want ErrMissingClaim", err)
		}
	})
}

func TestJWTVerifier_RejectsNoneAlgorithm(t *testing.T) {
	verifier := newTestVerifier(t)

	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"user_id": "user-123",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	if _, err := verifier.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
	}
}
