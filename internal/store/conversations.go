// ABOUTME: Conversation and participant persistence for SQLiteStore
// ABOUTME: Conversations are created with their participants in one transaction

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// CreateConversation inserts a conversation together with its participant rows.
// Participant IDs are deduplicated; joined_at and last_read_at default to the
// conversation's creation time.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation, participantIDs []string) error {
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = conv.CreatedAt
	}

	ids := uniqueIDs(participantIDs)

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (id, name, is_group, created_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			conv.ID,
			nullString(conv.Name),
			boolInt(conv.IsGroup),
			nullString(conv.CreatedBy),
			formatTime(conv.CreatedAt),
			formatTime(conv.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("inserting conversation: %w", err)
		}

		ts := formatTime(conv.CreatedAt)
		for _, userID := range ids {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO participants (conversation_id, user_id, joined_at, last_read_at)
				VALUES (?, ?, ?, ?)
			`, conv.ID, userID, ts, ts)
			if err != nil {
				return fmt.Errorf("inserting participant %s: %w", userID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	conv.ParticipantIDs = append([]string(nil), ids...)
	sort.Strings(conv.ParticipantIDs)
	s.logger.Debug("created conversation", "id", conv.ID, "is_group", conv.IsGroup, "participants", len(ids))
	return nil
}

// conversationColumns selects a conversation plus its participant ids as a
// comma separated list.
const conversationColumns = `c.id, c.name, c.is_group, c.created_by, c.created_at, c.updated_at,
	(SELECT GROUP_CONCAT(p.user_id, ',') FROM participants p WHERE p.conversation_id = c.id)`

// GetConversation retrieves a conversation by ID, including its participant IDs.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations c WHERE c.id = ?`, id)

	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	return conv, nil
}

// ListDirectConversations returns every non-group conversation in which both
// users participate, oldest first. Callers filter on participant count.
func (s *SQLiteStore) ListDirectConversations(ctx context.Context, userA, userB string) ([]*Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations c
		WHERE c.is_group = 0
		  AND EXISTS (SELECT 1 FROM participants WHERE conversation_id = c.id AND user_id = ?)
		  AND EXISTS (SELECT 1 FROM participants WHERE conversation_id = c.id AND user_id = ?)
		ORDER BY c.created_at ASC, c.id ASC
	`
	return s.queryConversations(ctx, query, userA, userB)
}

// ListAllDirectConversations returns every non-group conversation, oldest first.
func (s *SQLiteStore) ListAllDirectConversations(ctx context.Context) ([]*Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations c
		WHERE c.is_group = 0
		ORDER BY c.created_at ASC, c.id ASC
	`
	return s.queryConversations(ctx, query)
}

func (s *SQLiteStore) queryConversations(ctx context.Context, query string, args ...any) ([]*Conversation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		convs = append(convs, conv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}

	return convs, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var conv Conversation
	var name, createdBy, participants sql.NullString
	var isGroup int
	var createdAt, updatedAt string

	if err := row.Scan(&conv.ID, &name, &isGroup, &createdBy, &createdAt, &updatedAt, &participants); err != nil {
		return nil, err
	}

	conv.Name = name.String
	conv.IsGroup = isGroup == 1
	conv.CreatedBy = createdBy.String

	var err error
	if conv.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing conversation created_at: %w", err)
	}
	if conv.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing conversation updated_at: %w", err)
	}

	if participants.Valid && participants.String != "" {
		conv.ParticipantIDs = strings.Split(participants.String, ",")
		sort.Strings(conv.ParticipantIDs)
	}

	return &conv, nil
}

// DeleteConversation removes a conversation along with its participants and messages.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
			return fmt.Errorf("deleting messages: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM participants WHERE conversation_id = ?`, id); err != nil {
			return fmt.Errorf("deleting participants: %w", err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("deleting conversation: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking rows affected: %w", err)
		}
		if rows == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// IsParticipant reports whether the user belongs to the conversation.
func (s *SQLiteStore) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM participants WHERE conversation_id = ? AND user_id = ?)
	`, conversationID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking participant: %w", err)
	}
	return exists == 1, nil
}

// GetParticipant retrieves a participant row.
// Returns ErrNotParticipant if the user is not in the conversation.
func (s *SQLiteStore) GetParticipant(ctx context.Context, conversationID, userID string) (*Participant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT conversation_id, user_id, joined_at, last_read_at
		FROM participants
		WHERE conversation_id = ? AND user_id = ?
	`, conversationID, userID)

	p, err := scanParticipant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotParticipant
	}
	if err != nil {
		return nil, fmt.Errorf("querying participant: %w", err)
	}
	return p, nil
}

// ListParticipants returns the participants of a conversation in join order.
func (s *SQLiteStore) ListParticipants(ctx context.Context, conversationID string) ([]*Participant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, user_id, joined_at, last_read_at
		FROM participants
		WHERE conversation_id = ?
		ORDER BY joined_at ASC, user_id ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying participants: %w", err)
	}
	defer rows.Close()

	var participants []*Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning participant: %w", err)
		}
		participants = append(participants, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating participants: %w", err)
	}

	return participants, nil
}

func scanParticipant(row rowScanner) (*Participant, error) {
	var p Participant
	var joinedAt, lastReadAt string

	if err := row.Scan(&p.ConversationID, &p.UserID, &joinedAt, &lastReadAt); err != nil {
		return nil, err
	}

	var err error
	if p.JoinedAt, err = parseTime(joinedAt); err != nil {
		return nil, fmt.Errorf("parsing joined_at: %w", err)
	}
	if p.LastReadAt, err = parseTime(lastReadAt); err != nil {
		return nil, fmt.Errorf("parsing last_read_at: %w", err)
	}
	return &p, nil
}

// MarkRead advances the participant's last_read_at to at. The stored value
// never moves backward.
// Returns ErrNotParticipant if the user is not in the conversation.
func (s *SQLiteStore) MarkRead(ctx context.Context, conversationID, userID string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE participants
		SET last_read_at = MAX(last_read_at, ?)
		WHERE conversation_id = ? AND user_id = ?
	`, formatTime(at), conversationID, userID)
	if err != nil {
		return fmt.Errorf("marking read: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotParticipant
	}
	return nil
}

// UnreadCount counts messages from other senders created after the
// participant's last_read_at.
// Returns ErrNotParticipant if the user is not in the conversation.
func (s *SQLiteStore) UnreadCount(ctx context.Context, conversationID, userID string) (int, error) {
	var count sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT (
			SELECT COUNT(*) FROM messages m
			WHERE m.conversation_id = p.conversation_id
			  AND m.created_at > p.last_read_at
			  AND m.sender_id != p.user_id
		)
		FROM participants p
		WHERE p.conversation_id = ? AND p.user_id = ?
	`, conversationID, userID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotParticipant
	}
	if err != nil {
		return 0, fmt.Errorf("counting unread: %w", err)
	}
	return int(count.Int64), nil
}

// GetUserStats returns conversation, sent-message and unread totals for a user.
func (s *SQLiteStore) GetUserStats(ctx context.Context, userID string) (*UserStats, error) {
	var stats UserStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM participants WHERE user_id = ?1),
			(SELECT COUNT(*) FROM messages WHERE sender_id = ?1),
			(SELECT COUNT(*) FROM messages m
			   JOIN participants p ON p.conversation_id = m.conversation_id
			  WHERE p.user_id = ?1
			    AND m.sender_id != ?1
			    AND m.created_at > p.last_read_at)
	`, userID).Scan(&stats.TotalConversations, &stats.TotalMessagesSent, &stats.TotalUnread)
	if err != nil {
		return nil, fmt.Errorf("querying user stats: %w", err)
	}
	return &stats, nil
}

// uniqueIDs drops empty and repeated ids, keeping first-seen order.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
