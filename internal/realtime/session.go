// ABOUTME: Per-connection chat session: state machine, read loop and write loop
// ABOUTME: Sessions are hub handles; teardown runs exactly once on every exit path

package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/2389/parley/internal/conversation"
	"github.com/2389/parley/internal/hub"
	"github.com/2389/parley/internal/store"
)

// State is a session's lifecycle position.
type State int32

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// cleanupTimeout bounds the store write and broadcast made on disconnect.
const cleanupTimeout = 5 * time.Second

// closeGrace bounds the close frame sent to the peer before the socket is dropped.
const closeGrace = time.Second

// Session is one authenticated connection bound to one conversation.
type Session struct {
	id             string
	user           *store.User
	conversationID string
	conn           *websocket.Conn
	h              *Handler

	state atomic.Int32

	mu     sync.RWMutex
	closed bool
	send   chan []byte
	done   chan struct{}

	ctx         context.Context
	cancel      context.CancelFunc
	cleanupOnce sync.Once
	logger      *slog.Logger
}

// Ensure Session implements hub.Handle.
var _ hub.Handle = (*Session)(nil)

func newSession(h *Handler, conn *websocket.Conn, user *store.User, conversationID string) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New().String()
	s := &Session{
		id:             id,
		user:           user,
		conversationID: conversationID,
		conn:           conn,
		h:              h,
		send:           make(chan []byte, h.cfg.SendBuffer),
		done:           make(chan struct{}),
		ctx:            ctx,
		cancel:         cancel,
		logger: h.logger.With(
			"session", id,
			"user_id", user.ID,
			"conversation_id", conversationID),
	}
	s.state.Store(int32(StateAuthenticating))
	return s
}

// ID returns the connection ID.
func (s *Session) ID() string { return s.id }

// UserID returns the authenticated user's ID.
func (s *Session) UserID() string { return s.user.ID }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Send enqueues ev for the write loop without blocking. Typing events from
// this session's own user are swallowed and count as delivered.
func (s *Session) Send(ev *hub.Event) bool {
	if ev.Type == EventTyping && ev.OriginUserID == s.user.ID {
		return true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- ev.Payload:
		return true
	default:
		return false
	}
}

// Close shuts the connection, which ends the read loop and triggers teardown.
// It never writes to the network on the caller's goroutine, so a broadcaster
// dropping a peer that stopped reading is not held up by it. Safe to call
// repeatedly and from any goroutine.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	s.cancel()
	go s.closeConn()
}

// closeConn sends a close frame and drops the socket. The frame waits at most
// closeGrace for the write lock, which a stuck write loop may hold; dropping
// the socket then unblocks that write.
func (s *Session) closeConn() {
	deadline := time.Now().Add(min(closeGrace, s.h.cfg.WriteTimeout))
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), deadline)
	_ = s.conn.Close()
}

// run joins the group, announces presence and serves the connection until it
// ends. It blocks in the read loop.
func (s *Session) run() {
	defer s.teardown()

	s.h.registry.Join(s.conversationID, s)
	s.state.Store(int32(StateJoined))
	s.h.metrics.ConnectionOpened()
	s.logger.Info("session joined")

	// Presence errors are already logged by the tracker; the status is broadcast regardless.
	_ = s.h.presence.SetOnline(s.ctx, s.user.ID, true)
	s.publishStatus(s.ctx, true)

	go s.writeLoop()
	s.readLoop()
}

// teardown flips presence offline, announces it and leaves the group.
func (s *Session) teardown() {
	s.cleanupOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		s.Close()

		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()

		// Leave first so the closed session is not counted as a failed delivery.
		s.h.registry.Leave(s.conversationID, s)
		_ = s.h.presence.SetOnline(ctx, s.user.ID, false)
		s.publishStatus(ctx, false)

		s.h.metrics.ConnectionClosed()
		s.logger.Info("session closed")
	})
}

func (s *Session) readLoop() {
	s.conn.SetReadLimit(s.h.cfg.MaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.h.cfg.PongTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.h.cfg.PongTimeout))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("connection lost", "error", err)
			}
			return
		}
		s.dispatch(data)
	}
}

func (s *Session) writeLoop() {
	ticker := time.NewTicker(s.h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case payload := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.h.cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.logger.Debug("write failed", "error", err)
				s.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.h.cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		}
	}
}

// dispatch handles one inbound frame. Nothing it does closes the connection.
func (s *Session) dispatch(data []byte) {
	ev, err := decodeInbound(data)
	if err != nil {
		s.h.metrics.InboundEvent("malformed")
		s.logger.Debug("dropping malformed frame", "error", err)
		return
	}

	switch ev.Type {
	case EventMessage:
		s.h.metrics.InboundEvent(EventMessage)
		s.handleMessage(ev.Content)
	case EventTyping:
		s.h.metrics.InboundEvent(EventTyping)
		s.handleTyping(ev.IsTyping)
	default:
		s.h.metrics.InboundEvent("unknown")
		s.logger.Debug("ignoring frame", "type", ev.Type)
	}
}

func (s *Session) handleMessage(content string) {
	msg, err := s.h.conversations.PostMessage(s.ctx, s.conversationID, s.user, content)
	if errors.Is(err, conversation.ErrEmptyMessage) {
		return
	}
	if err != nil {
		s.logger.Warn("message dropped", "error", err)
		return
	}

	payload, err := encodeMessage(msg)
	if err != nil {
		s.logger.Error("encoding message frame", "error", err)
		return
	}
	s.publish(s.ctx, &hub.Event{Type: EventMessage, OriginUserID: s.user.ID, Payload: payload})
}

func (s *Session) handleTyping(typing bool) {
	payload, err := encodeTyping(s.user, typing)
	if err != nil {
		s.logger.Error("encoding typing frame", "error", err)
		return
	}
	s.publish(s.ctx, &hub.Event{Type: EventTyping, OriginUserID: s.user.ID, Payload: payload})
}

func (s *Session) publishStatus(ctx context.Context, online bool) {
	payload, err := encodeStatus(s.user, online)
	if err != nil {
		s.logger.Error("encoding status frame", "error", err)
		return
	}
	s.publish(ctx, &hub.Event{Type: EventUserStatus, OriginUserID: s.user.ID, Payload: payload})
}

func (s *Session) publish(ctx context.Context, ev *hub.Event) {
	if err := s.h.relay.Publish(ctx, s.conversationID, ev); err != nil {
		s.logger.Warn("publish failed", "event_type", ev.Type, "error", err)
	}
}
