// ABOUTME: Opaque history cursor encoding for message pagination
// ABOUTME: msgpack-encoded position rendered as base58 text

package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcutil/base58"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrInvalidCursor is returned when a cursor string cannot be decoded.
var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor marks the oldest message of a page. The next page starts strictly
// before it in (created_at, seq) order.
type Cursor struct {
	ID        string    `msgpack:"i"`
	Seq       int64     `msgpack:"s"`
	CreatedAt time.Time `msgpack:"v"`
}

// EncodeCursor renders a cursor as an opaque string.
func EncodeCursor(c *Cursor) (string, error) {
	b, err := msgpack.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encoding cursor: %w", err)
	}
	return base58.Encode(b), nil
}

// DecodeCursor parses a string produced by EncodeCursor.
// An empty string decodes to a nil cursor (first page).
func DecodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}

	b := base58.Decode(s)
	if len(b) == 0 {
		return nil, ErrInvalidCursor
	}

	var c Cursor
	if err := msgpack.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if c.ID == "" || c.CreatedAt.IsZero() {
		return nil, ErrInvalidCursor
	}
	return &c, nil
}

// cursorFor builds the cursor pointing at msg.
func cursorFor(msg *Message) *Cursor {
	return &Cursor{ID: msg.ID, Seq: msg.Seq, CreatedAt: msg.CreatedAt}
}

// before reports whether msg sorts strictly before the cursor position.
func (c *Cursor) before(msg *Message) bool {
	if !msg.CreatedAt.Equal(c.CreatedAt) {
		return msg.CreatedAt.Before(c.CreatedAt)
	}
	return msg.Seq < c.Seq
}
