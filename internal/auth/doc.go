// Package auth authenticates parley clients.
//
// # Tokens
//
// Clients present HS256 JWTs issued elsewhere. JWTVerifier checks the
// signature and expiry and returns the user id from the "user_id" claim,
// falling back to "sub". Tokens carrying a "type" claim other than "access"
// (for example refresh tokens) are rejected.
//
//	verifier, err := auth.NewJWTVerifier(secret) // secret must be >= 32 bytes
//	userID, err := verifier.Verify(token)
//
// Generate mints access tokens for development and the CLI.
//
// # Users
//
// Authenticator resolves a token to a *store.User and refuses inactive
// accounts with ErrInactiveUser.
//
// # HTTP
//
// HTTPAuthMiddleware authenticates API requests from the Authorization
// header and stores the user in the request context (UserFromContext).
// Websocket handshakes use TokenFromRequest, which prefers the "token" query
// parameter because browsers cannot set headers on websocket upgrades.
package auth
