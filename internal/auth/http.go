// ABOUTME: HTTP middleware and token extraction for API and websocket endpoints
// ABOUTME: Reads the JWT from the Authorization header or the token query parameter

package auth

import (
	"errors"
	"net/http"
	"strings"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// TokenFromRequest returns the bearer token for a websocket handshake: the
// "token" query parameter, or the Authorization header when the query
// parameter is absent. Returns "" when neither is present.
func TokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	token, _ := extractBearerToken(r.Header.Get("Authorization"))
	return token
}

// HTTPAuthMiddleware creates an HTTP middleware that authenticates the bearer
// token and adds the user to the request context.
func HTTPAuthMiddleware(authn *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				writeAuthError(w, errMsg, http.StatusUnauthorized)
				return
			}

			user, err := authn.Authenticate(r.Context(), token)
			switch {
			case err == nil:
			case errors.Is(err, ErrInactiveUser):
				writeAuthError(w, "user is inactive", http.StatusForbidden)
				return
			case errors.Is(err, ErrUnknownUser):
				writeAuthError(w, "user not found", http.StatusUnauthorized)
				return
			case errors.Is(err, ErrExpiredToken):
				writeAuthError(w, "token expired", http.StatusUnauthorized)
				return
			case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrMissingClaim), errors.Is(err, ErrWrongTokenType):
				writeAuthError(w, "invalid token", http.StatusUnauthorized)
				return
			default:
				writeAuthError(w, "authentication failed", http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func writeAuthError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}` + "\n"))
}
