// ABOUTME: JWT token verification for authenticating chat connections and API calls
// ABOUTME: Uses HS256 signing with configurable secret; only access tokens are accepted

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the minimum accepted HS256 secret size in bytes.
const MinSecretLength = 32

// Token types carried in the "type" claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Token errors
var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token expired")
	ErrMissingClaim   = errors.New("missing required claim")
	ErrWrongTokenType = errors.New("wrong token type")
	ErrWeakSecret     = errors.New("jwt secret too short")
)

// TokenVerifier defines the interface for token verification
type TokenVerifier interface {
	Verify(tokenString string) (userID string, err error)
}

// Claims are the extra identity fields embedded in generated tokens.
type Claims struct {
	Username string
	Email    string
}

// JWTVerifier implements TokenVerifier using HS256 signed JWTs
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a new JWT verifier with the given secret.
// Returns ErrWeakSecret if the secret is shorter than MinSecretLength.
func NewJWTVerifier(secret []byte) (*JWTVerifier, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: need at least %d bytes, got %d", ErrWeakSecret, MinSecretLength, len(secret))
	}
	return &JWTVerifier{secret: secret}, nil
}

// Verify validates the token and extracts the user ID from the "user_id"
// claim, falling back to "sub". Tokens whose "type" claim is present and not
// "access" are rejected.
func (v *JWTVerifier) Verify(tokenString string) (userID string, err error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HS256
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		// Check if it's specifically an expiration error
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	if typ, present := claims["type"]; present {
		if s, _ := typ.(string); s != TokenTypeAccess {
			return "", fmt.Errorf("%w: %v", ErrWrongTokenType, typ)
		}
	}

	if id, ok := claims["user_id"].(string); ok && id != "" {
		return id, nil
	}
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub, nil
	}
	return "", fmt.Errorf("%w: user_id", ErrMissingClaim)
}

// Generate creates a new access token for the given user ID with expiration
func (v *JWTVerifier) Generate(userID string, expiresIn time.Duration) (string, error) {
	return v.GenerateWithClaims(userID, Claims{}, TokenTypeAccess, expiresIn)
}

// GenerateWithClaims creates a token of the given type carrying the user's
// username and email alongside the id.
func (v *JWTVerifier) GenerateWithClaims(userID string, extra Claims, tokenType string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"sub":     userID,
		"type":    tokenType,
		"iat":     now.Unix(),
		"exp":     now.Add(expiresIn).Unix(),
	}
	if extra.Username != "" {
		claims["username"] = extra.Username
	}
	if extra.Email != "" {
		claims["email"] = extra.Email
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
