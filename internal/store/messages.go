// ABOUTME: Message persistence for SQLiteStore
// ABOUTME: Insert, lookup and cursor-paginated history (newest first)

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// DefaultPageSize is used by ListMessages when limit is not positive.
const DefaultPageSize = 50

// MaxPageSize caps the number of messages returned by ListMessages.
const MaxPageSize = 200

// CreateMessage inserts a message and bumps the conversation's updated_at.
// msg.Seq is set from the inserted row.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *Message) error {
	if msg.UpdatedAt.IsZero() {
		msg.UpdatedAt = msg.CreatedAt
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE conversations SET updated_at = MAX(updated_at, ?) WHERE id = ?
		`, formatTime(msg.CreatedAt), msg.ConversationID)
		if err != nil {
			return fmt.Errorf("touching conversation: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking rows affected: %w", err)
		}
		if rows == 0 {
			return ErrNotFound
		}

		result, err = tx.ExecContext(ctx, `
			INSERT INTO messages (id, conversation_id, sender_id, content, is_read, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			msg.ID,
			msg.ConversationID,
			msg.SenderID,
			msg.Content,
			boolInt(msg.IsRead),
			formatTime(msg.CreatedAt),
			formatTime(msg.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("inserting message: %w", err)
		}

		seq, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading message seq: %w", err)
		}
		msg.Seq = seq
		return nil
	})
}

const messageColumns = `m.seq, m.id, m.conversation_id, m.sender_id, m.content, m.is_read,
	m.created_at, m.updated_at,
	u.id, u.username, u.first_name, u.last_name, u.email, u.avatar,
	u.is_active, u.is_online, u.last_seen, u.created_at, u.updated_at`

// GetMessage retrieves a message by ID with its sender populated.
// Returns ErrNotFound if the message doesn't exist.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages m JOIN users u ON u.id = m.sender_id
		WHERE m.id = ?
	`, id)

	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}
	return msg, nil
}

// ListMessages returns one page of a conversation's history, newest first.
// cursor is the NextCursor of the previous page, or empty for the latest page.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string, cursor string, limit int) (*MessagePage, error) {
	c, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	limit = clampLimit(limit)

	query := `
		SELECT ` + messageColumns + `
		FROM messages m JOIN users u ON u.id = m.sender_id
		WHERE m.conversation_id = ?
	`
	args := []any{conversationID}
	if c != nil {
		ts := formatTime(c.CreatedAt)
		query += ` AND (m.created_at < ? OR (m.created_at = ? AND m.seq < ?))`
		args = append(args, ts, ts, c.Seq)
	}
	// Fetch one extra row to learn whether an older page exists.
	query += ` ORDER BY m.created_at DESC, m.seq DESC LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	return buildPage(msgs, limit)
}

// CountMessages returns the number of messages in a conversation.
func (s *SQLiteStore) CountMessages(ctx context.Context, conversationID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conversationID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}
	return count, nil
}

func scanMessage(row rowScanner) (*Message, error) {
	var msg Message
	var u User
	var isRead, isActive, isOnline int
	var avatar sql.NullString
	var createdAt, updatedAt, uLastSeen, uCreatedAt, uUpdatedAt string

	err := row.Scan(
		&msg.Seq, &msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &isRead,
		&createdAt, &updatedAt,
		&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.Email, &avatar,
		&isActive, &isOnline, &uLastSeen, &uCreatedAt, &uUpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	msg.IsRead = isRead == 1
	if msg.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing message created_at: %w", err)
	}
	if msg.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing message updated_at: %w", err)
	}

	u.Avatar = avatar.String
	u.IsActive = isActive == 1
	u.IsOnline = isOnline == 1
	if u.LastSeen, err = parseTime(uLastSeen); err != nil {
		return nil, fmt.Errorf("parsing sender last_seen: %w", err)
	}
	if u.CreatedAt, err = parseTime(uCreatedAt); err != nil {
		return nil, fmt.Errorf("parsing sender created_at: %w", err)
	}
	if u.UpdatedAt, err = parseTime(uUpdatedAt); err != nil {
		return nil, fmt.Errorf("parsing sender updated_at: %w", err)
	}
	msg.Sender = &u

	return &msg, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// buildPage trims a newest-first result fetched with limit+1 rows and sets
// NextCursor when older messages remain.
func buildPage(msgs []*Message, limit int) (*MessagePage, error) {
	page := &MessagePage{Messages: msgs}
	if len(msgs) <= limit {
		return page, nil
	}

	page.Messages = msgs[:limit]
	next, err := EncodeCursor(cursorFor(page.Messages[limit-1]))
	if err != nil {
		return nil, err
	}
	page.NextCursor = next
	return page, nil
}
