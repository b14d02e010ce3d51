// Package store provides persistent storage for parley using SQLite.
//
// # Architecture
//
// A single Store interface covers users, conversations, participants and
// messages. SQLiteStore is the production implementation; MockStore is an
// in-memory implementation with the same semantics for unit tests.
//
// # Data Models
//
//   - User: chat account with presence (IsOnline, LastSeen)
//   - Conversation: one-to-one or group container
//   - Participant: user membership plus read state (LastReadAt)
//   - Message: immutable chat message, ordered by (CreatedAt, Seq)
//
// # Read State
//
// The unread count of a participant is the number of messages from other
// senders created after its LastReadAt. MarkRead never moves LastReadAt
// backward.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode and foreign keys enabled:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Deleting a conversation removes its participants and messages.
// Timestamps are stored as fixed-width UTC text so they compare as strings.
//
// # Pagination
//
// ListMessages returns history newest first. The NextCursor of a page is an
// opaque base58 string (msgpack inside) that resumes strictly before the
// oldest message of that page.
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: Requested entity does not exist
//   - ErrNotParticipant: User is not a member of the conversation
//   - ErrUsernameExists: Username already taken
//   - ErrInvalidCursor: Pagination cursor could not be decoded
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewMockStore() for unit tests, or NewSQLiteStore(":memory:") for
// integration tests with real SQLite.
package store
