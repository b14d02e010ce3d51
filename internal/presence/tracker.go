// ABOUTME: Presence tracker that records per-user online state in the store
// ABOUTME: Failures are logged and returned; callers decide whether they matter

package presence

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Store is the persistence needed by the tracker.
type Store interface {
	SetUserOnline(ctx context.Context, id string, online bool, at time.Time) error
}

// Tracker flips users online and offline. Each call writes the flag as given,
// so with several open connections the last transition wins.
type Tracker struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// NewTracker creates a tracker. Pass nil logger for default.
func NewTracker(store Store, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		store:  store,
		now:    time.Now,
		logger: logger.With("component", "presence"),
	}
}

// SetOnline records the user's online flag and stamps last_seen.
func (t *Tracker) SetOnline(ctx context.Context, userID string, online bool) error {
	if err := t.store.SetUserOnline(ctx, userID, online, t.now().UTC()); err != nil {
		t.logger.Warn("failed to update presence",
			"user_id", userID,
			"online", online,
			"error", err)
		return fmt.Errorf("updating presence for %s: %w", userID, err)
	}

	t.logger.Debug("presence updated", "user_id", userID, "online", online)
	return nil
}
