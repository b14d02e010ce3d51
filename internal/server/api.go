// ABOUTME: HTTP API exposing the conversation core: resolve, mark-read, unread, history and stats
// ABOUTME: Every route requires a bearer token; errors are rendered as {"error": "..."}

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/2389/parley/internal/auth"
	"github.com/2389/parley/internal/conversation"
	"github.com/2389/parley/internal/store"
)

// ResolveConversationRequest is the body of POST /api/conversations.
type ResolveConversationRequest struct {
	Name           string   `json:"name"`
	IsGroup        bool     `json:"is_group"`
	ParticipantIDs []string `json:"participant_ids"`
}

// UnreadResponse reports a participant's unread count.
type UnreadResponse struct {
	Conversation string `json:"conversation"`
	UnreadCount  int    `json:"unread_count"`
}

// MessagesResponse is one page of history, newest first.
type MessagesResponse struct {
	Conversation string                     `json:"conversation"`
	Messages     []conversation.MessageView `json:"messages"`
	NextCursor   string                     `json:"next_cursor,omitempty"`
}

// StatsResponse holds the dashboard totals for the caller.
type StatsResponse struct {
	TotalConversations int `json:"total_conversations"`
	TotalMessagesSent  int `json:"total_messages_sent"`
	TotalUnread        int `json:"total_unread"`
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("writing response", "error", err)
	}
}

// handleResolveConversation handles POST /api/conversations.
// Returns 201 for a new conversation and 200 when an existing one-to-one
// conversation is reused.
func (s *Server) handleResolveConversation(w http.ResponseWriter, r *http.Request) {
	user := auth.MustUserFromContext(r.Context())

	var req ResolveConversationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	conv, existing, err := s.conversations.Resolve(r.Context(), &conversation.ResolveRequest{
		CreatorID:      user.ID,
		Name:           req.Name,
		IsGroup:        req.IsGroup,
		ParticipantIDs: req.ParticipantIDs,
	})
	if err != nil {
		s.logger.Error("failed to resolve conversation", "user_id", user.ID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	status := http.StatusCreated
	if existing {
		status = http.StatusOK
	}
	s.sendJSON(w, status, conversation.NewConversationView(conv, existing))
}

// handleMarkRead handles POST /api/conversations/{id}/read.
func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	user := auth.MustUserFromContext(r.Context())
	conversationID := r.PathValue("id")

	err := s.conversations.MarkRead(r.Context(), conversationID, user.ID)
	if errors.Is(err, store.ErrNotParticipant) {
		s.sendJSONError(w, http.StatusForbidden, "not a participant")
		return
	}
	if err != nil {
		s.logger.Error("failed to mark read", "conversation_id", conversationID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.writeUnread(w, r, conversationID, user.ID)
}

// handleUnread handles GET /api/conversations/{id}/unread.
func (s *Server) handleUnread(w http.ResponseWriter, r *http.Request) {
	user := auth.MustUserFromContext(r.Context())
	s.writeUnread(w, r, r.PathValue("id"), user.ID)
}

func (s *Server) writeUnread(w http.ResponseWriter, r *http.Request, conversationID, userID string) {
	count, err := s.conversations.UnreadCount(r.Context(), conversationID, userID)
	if errors.Is(err, store.ErrNotParticipant) {
		s.sendJSONError(w, http.StatusForbidden, "not a participant")
		return
	}
	if err != nil {
		s.logger.Error("failed to count unread", "conversation_id", conversationID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.sendJSON(w, http.StatusOK, UnreadResponse{Conversation: conversationID, UnreadCount: count})
}

// handleMessages handles GET /api/conversations/{id}/messages?cursor=&limit=.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	user := auth.MustUserFromContext(r.Context())
	conversationID := r.PathValue("id")

	limit := store.DefaultPageSize
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			s.sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, store.MaxPageSize)
	}

	page, err := s.conversations.History(r.Context(), conversationID, user.ID, r.URL.Query().Get("cursor"), limit)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotParticipant):
		s.sendJSONError(w, http.StatusForbidden, "not a participant")
		return
	case errors.Is(err, store.ErrInvalidCursor):
		s.sendJSONError(w, http.StatusBadRequest, "invalid cursor")
		return
	default:
		s.logger.Error("failed to list messages", "conversation_id", conversationID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := MessagesResponse{
		Conversation: conversationID,
		Messages:     make([]conversation.MessageView, len(page.Messages)),
		NextCursor:   page.NextCursor,
	}
	for i, msg := range page.Messages {
		resp.Messages[i] = conversation.NewMessageView(msg)
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// handleStats handles GET /api/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	user := auth.MustUserFromContext(r.Context())

	stats, err := s.conversations.Stats(r.Context(), user.ID)
	if err != nil {
		s.logger.Error("failed to load stats", "user_id", user.ID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.sendJSON(w, http.StatusOK, StatsResponse{
		TotalConversations: stats.TotalConversations,
		TotalMessagesSent:  stats.TotalMessagesSent,
		TotalUnread:        stats.TotalUnread,
	})
}
