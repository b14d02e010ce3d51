// ABOUTME: Offline reconciliation that collapses duplicate one-to-one conversations
// ABOUTME: Keeps the earliest conversation per participant pair and deletes the rest

package conversation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/parley/internal/metrics"
	"github.com/2389/parley/internal/store"
)

// ReconcileStore defines what reconciliation needs from storage
type ReconcileStore interface {
	ListAllDirectConversations(ctx context.Context) ([]*store.Conversation, error)
	CountMessages(ctx context.Context, conversationID string) (int, error)
	DeleteConversation(ctx context.Context, id string) error
}

// Removal describes one deleted duplicate.
type Removal struct {
	ConversationID string
	KeptID         string
	UserA, UserB   string
	Messages       int // messages deleted along with the conversation
}

// Report summarizes a reconciliation run.
type Report struct {
	Scanned   int // two-person direct conversations examined
	Pairs     int // distinct participant pairs
	Kept      int
	Removed   int
	Remaining int // two-person direct conversations after the run
	Removals  []Removal
}

// RemoveDuplicates deletes every non-group two-person conversation that is
// not the earliest for its participant pair. Running it again on a clean
// store removes nothing.
func RemoveDuplicates(ctx context.Context, s ReconcileStore, m *metrics.Metrics, logger *slog.Logger) (*Report, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "reconcile")

	convs, err := s.ListAllDirectConversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing direct conversations: %w", err)
	}

	report := &Report{}
	keep := make(map[string]*store.Conversation)
	var order []string
	duplicates := make(map[string][]*store.Conversation)

	// Conversations arrive oldest first, so the first one seen per pair wins.
	for _, c := range convs {
		if len(c.ParticipantIDs) != 2 {
			continue
		}
		report.Scanned++

		key := PairKey(c.ParticipantIDs[0], c.ParticipantIDs[1])
		if _, ok := keep[key]; !ok {
			keep[key] = c
			order = append(order, key)
			continue
		}
		duplicates[key] = append(duplicates[key], c)
	}
	report.Pairs = len(order)
	report.Kept = len(order)

	// Removals are grouped by pair, in the order each pair was first created.
	for _, key := range order {
		kept := keep[key]
		for _, dup := range duplicates[key] {
			if err := removeDuplicate(ctx, s, report, kept, dup, m, logger); err != nil {
				return report, err
			}
		}
	}

	after, err := s.ListAllDirectConversations(ctx)
	if err != nil {
		return report, fmt.Errorf("recounting direct conversations: %w", err)
	}
	for _, c := range after {
		if len(c.ParticipantIDs) == 2 {
			report.Remaining++
		}
	}

	logger.Info("reconciliation complete",
		"scanned", report.Scanned,
		"kept", report.Kept,
		"removed", report.Removed,
		"remaining", report.Remaining)
	return report, nil
}

// removeDuplicate deletes dup and records it against kept.
func removeDuplicate(ctx context.Context, s ReconcileStore, report *Report, kept, dup *store.Conversation, m *metrics.Metrics, logger *slog.Logger) error {
	count, err := s.CountMessages(ctx, dup.ID)
	if err != nil {
		return fmt.Errorf("counting messages of %s: %w", dup.ID, err)
	}
	if err := s.DeleteConversation(ctx, dup.ID); err != nil {
		return fmt.Errorf("deleting duplicate %s: %w", dup.ID, err)
	}

	report.Removed++
	report.Removals = append(report.Removals, Removal{
		ConversationID: dup.ID,
		KeptID:         kept.ID,
		UserA:          kept.ParticipantIDs[0],
		UserB:          kept.ParticipantIDs[1],
		Messages:       count,
	})
	m.DuplicatesRemoved(1)

	logger.Info("removed duplicate conversation",
		"conversation_id", dup.ID,
		"kept_id", kept.ID,
		"messages", count)
	return nil
}
