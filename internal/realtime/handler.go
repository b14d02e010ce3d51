// ABOUTME: HTTP handler that authenticates chat socket handshakes and upgrades them
// ABOUTME: Refused handshakes get a bare 403 before any websocket frames are exchanged

package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/parley/internal/auth"
	"github.com/2389/parley/internal/hub"
	"github.com/2389/parley/internal/metrics"
	"github.com/2389/parley/internal/relay"
	"github.com/2389/parley/internal/store"
)

// Config tunes connection handling. Zero fields take defaults.
type Config struct {
	WriteTimeout   time.Duration
	PongTimeout    time.Duration
	PingInterval   time.Duration
	SendBuffer     int
	MaxMessageSize int64
	// AllowedOrigins lists accepted Origin headers. "*" accepts any origin;
	// an empty list accepts same-host browsers and clients without an Origin.
	AllowedOrigins []string
}

// Default connection settings.
const (
	DefaultWriteTimeout   = 10 * time.Second
	DefaultPongTimeout    = 60 * time.Second
	DefaultSendBuffer     = 64
	DefaultMaxMessageSize = 64 * 1024
)

func (c Config) withDefaults() Config {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = DefaultPongTimeout
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongTimeout {
		c.PingInterval = c.PongTimeout * 9 / 10
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = DefaultSendBuffer
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	return c
}

// Authenticator resolves a bearer token to an active user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*store.User, error)
}

// Conversations is the conversation layer used by sessions.
type Conversations interface {
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	PostMessage(ctx context.Context, conversationID string, sender *store.User, content string) (*store.Message, error)
}

// Presence records online state.
type Presence interface {
	SetOnline(ctx context.Context, userID string, online bool) error
}

// Deps are the collaborators a Handler needs. Metrics and Logger are optional.
type Deps struct {
	Authenticator Authenticator
	Conversations Conversations
	Registry      *hub.Registry
	Relay         relay.Relay
	Presence      Presence
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
}

// Handler serves GET /ws/chat/{id}/.
type Handler struct {
	cfg           Config
	authn         Authenticator
	conversations Conversations
	registry      *hub.Registry
	relay         relay.Relay
	presence      Presence
	metrics       *metrics.Metrics
	upgrader      websocket.Upgrader
	sessions      sync.WaitGroup // running sessions, including their teardown
	logger        *slog.Logger
}

// NewHandler creates the chat socket handler.
func NewHandler(cfg Config, deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	h := &Handler{
		cfg:           cfg,
		authn:         deps.Authenticator,
		conversations: deps.Conversations,
		registry:      deps.Registry,
		relay:         deps.Relay,
		presence:      deps.Presence,
		metrics:       deps.Metrics,
		logger:        logger.With("component", "realtime"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return h
}

// Register mounts the handler on mux, with and without the trailing slash.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("GET /ws/chat/{id}/", h)
	mux.Handle("GET /ws/chat/{id}", h)
}

// ServeHTTP authenticates the handshake, checks participation and, only when
// both pass, upgrades the connection and runs the session.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	if conversationID == "" {
		h.refuse(w, metrics.HandshakeForbidden, "missing conversation id")
		return
	}

	token := auth.TokenFromRequest(r)
	if token == "" {
		h.refuse(w, metrics.HandshakeUnauthorized, "missing token")
		return
	}

	user, err := h.authn.Authenticate(r.Context(), token)
	if err != nil {
		result := metrics.HandshakeUnauthorized
		switch {
		case errors.Is(err, auth.ErrInactiveUser):
			result = metrics.HandshakeForbidden
		case !isAuthFailure(err):
			result = metrics.HandshakeError
		}
		h.refuse(w, result, "authentication failed", "error", err)
		return
	}

	ok, err := h.conversations.IsParticipant(r.Context(), conversationID, user.ID)
	if err != nil {
		h.refuse(w, metrics.HandshakeError, "participant check failed",
			"user_id", user.ID, "conversation_id", conversationID, "error", err)
		return
	}
	if !ok {
		h.refuse(w, metrics.HandshakeForbidden, "not a participant",
			"user_id", user.ID, "conversation_id", conversationID)
		return
	}

	// Counted before the hijack so Wait cannot miss a session that
	// http.Server.Shutdown no longer tracks.
	h.sessions.Add(1)
	defer h.sessions.Done()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response.
		h.metrics.HandshakeResult(metrics.HandshakeError)
		h.logger.Debug("upgrade failed", "error", err)
		return
	}
	h.metrics.HandshakeResult(metrics.HandshakeAccepted)

	newSession(h, conn, user, conversationID).run()
}

// Wait blocks until every running session has finished its teardown, or ctx
// is done.
func (h *Handler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) refuse(w http.ResponseWriter, result, reason string, args ...any) {
	h.metrics.HandshakeResult(result)
	h.logger.Debug("handshake refused", append([]any{"reason", reason}, args...)...)
	w.WriteHeader(http.StatusForbidden)
}

func isAuthFailure(err error) bool {
	return errors.Is(err, auth.ErrInvalidToken) ||
		errors.Is(err, auth.ErrExpiredToken) ||
		errors.Is(err, auth.ErrMissingClaim) ||
		errors.Is(err, auth.ErrWrongTokenType) ||
		errors.Is(err, auth.ErrUnknownUser)
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	if slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
