// ABOUTME: User persistence for SQLiteStore
// ABOUTME: Create/lookup users and record presence (is_online, last_seen)

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateUser inserts a new user.
// Returns ErrUsernameExists if the username is taken.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, username, first_name, last_name, email, avatar,
			is_active, is_online, last_seen, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if user.LastSeen.IsZero() {
		user.LastSeen = user.CreatedAt
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.FirstName,
		user.LastName,
		user.Email,
		nullString(user.Avatar),
		boolInt(user.IsActive),
		boolInt(user.IsOnline),
		formatTime(user.LastSeen),
		formatTime(user.CreatedAt),
		formatTime(user.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrUsernameExists
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	s.logger.Debug("created user", "id", user.ID, "username", user.Username)
	return nil
}

const userColumns = `id, username, first_name, last_name, email, avatar,
	is_active, is_online, last_seen, created_at, updated_at`

// GetUser retrieves a user by ID.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByUsername retrieves a user by username.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var avatar sql.NullString
	var isActive, isOnline int
	var lastSeen, createdAt, updatedAt string

	err := row.Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.Email, &avatar,
		&isActive, &isOnline, &lastSeen, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	u.Avatar = avatar.String
	u.IsActive = isActive == 1
	u.IsOnline = isOnline == 1

	if u.LastSeen, err = parseTime(lastSeen); err != nil {
		return nil, fmt.Errorf("parsing user last_seen: %w", err)
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing user created_at: %w", err)
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing user updated_at: %w", err)
	}

	return &u, nil
}

// SetUserOnline records a presence transition: the online flag and last_seen.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) SetUserOnline(ctx context.Context, id string, online bool, at time.Time) error {
	query := `UPDATE users SET is_online = ?, last_seen = ?, updated_at = ? WHERE id = ?`

	ts := formatTime(at)
	result, err := s.db.ExecContext(ctx, query, boolInt(online), ts, ts, id)
	if err != nil {
		return fmt.Errorf("updating user presence: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}
