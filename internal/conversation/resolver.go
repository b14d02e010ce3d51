// ABOUTME: Conversation resolver: returns the existing one-to-one conversation for a pair or creates one
// ABOUTME: Group and multi-party requests always create; pair creation is serialized per pair

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/parley/internal/store"
)

// ErrNoCreator is returned when a resolve request has no creator.
var ErrNoCreator = errors.New("creator is required")

// ResolverStore defines what the resolver needs from storage
type ResolverStore interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
	CreateConversation(ctx context.Context, conv *store.Conversation, participantIDs []string) error
	ListDirectConversations(ctx context.Context, userA, userB string) ([]*store.Conversation, error)
}

// ResolveRequest describes a conversation a user wants to open.
type ResolveRequest struct {
	CreatorID      string
	Name           string
	IsGroup        bool
	ParticipantIDs []string // other participants; the creator may be listed, it is ignored
}

// Resolver finds or creates conversations.
type Resolver struct {
	store  ResolverStore
	pairs  *keyLock
	now    func() time.Time
	logger *slog.Logger
}

// NewResolver creates a resolver. Pass nil logger for default.
func NewResolver(store ResolverStore, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:  store,
		pairs:  newKeyLock(),
		now:    time.Now,
		logger: logger.With("component", "resolver"),
	}
}

// Resolve returns the conversation for req. For a non-group request with
// exactly one other participant it returns the earliest existing two-person
// conversation of the pair (existing == true) or creates it. Every other
// request creates a new conversation with the creator and all resolvable
// participants.
func (r *Resolver) Resolve(ctx context.Context, req *ResolveRequest) (conv *store.Conversation, existing bool, err error) {
	if req.CreatorID == "" {
		return nil, false, ErrNoCreator
	}

	others, err := r.resolveParticipants(ctx, req.CreatorID, req.ParticipantIDs)
	if err != nil {
		return nil, false, err
	}

	if req.IsGroup || len(others) != 1 {
		conv, err := r.create(ctx, req, others)
		return conv, false, err
	}

	other := others[0]
	unlock := r.pairs.Lock(PairKey(req.CreatorID, other))
	defer unlock()

	found, err := r.findDirect(ctx, req.CreatorID, other)
	if err != nil {
		return nil, false, err
	}
	if found != nil {
		r.logger.Debug("found existing direct conversation",
			"conversation_id", found.ID,
			"creator", req.CreatorID,
			"other", other)
		return found, true, nil
	}

	conv, err = r.create(ctx, req, others)
	return conv, false, err
}

// resolveParticipants drops duplicates, the creator and ids that do not name
// a user, keeping request order.
func (r *Resolver) resolveParticipants(ctx context.Context, creatorID string, ids []string) ([]string, error) {
	seen := map[string]bool{creatorID: true}
	var others []string
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		_, err := r.store.GetUser(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			r.logger.Debug("skipping unknown participant", "user_id", id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("looking up participant %s: %w", id, err)
		}
		others = append(others, id)
	}
	return others, nil
}

// findDirect returns the earliest non-group conversation whose participants
// are exactly a and b, or nil.
func (r *Resolver) findDirect(ctx context.Context, a, b string) (*store.Conversation, error) {
	convs, err := r.store.ListDirectConversations(ctx, a, b)
	if err != nil {
		return nil, fmt.Errorf("listing direct conversations: %w", err)
	}
	// The store returns oldest first.
	for _, c := range convs {
		if len(c.ParticipantIDs) == 2 {
			return c, nil
		}
	}
	return nil, nil
}

func (r *Resolver) create(ctx context.Context, req *ResolveRequest, others []string) (*store.Conversation, error) {
	now := r.now().UTC()
	conv := &store.Conversation{
		ID:        uuid.New().String(),
		Name:      req.Name,
		IsGroup:   req.IsGroup,
		CreatedBy: req.CreatorID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	participants := append([]string{req.CreatorID}, others...)
	if err := r.store.CreateConversation(ctx, conv, participants); err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	r.logger.Info("conversation created",
		"conversation_id", conv.ID,
		"is_group", conv.IsGroup,
		"participants", len(participants))
	return conv, nil
}

// PairKey is the order-independent key of a user pair.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}
