// Package conversation implements conversation-level operations on top of
// the store.
//
// # Resolver
//
// Resolver opens conversations. A non-group request naming exactly one other
// user returns the earliest existing two-person conversation for that pair,
// or creates it:
//
//	conv, existing, err := resolver.Resolve(ctx, &conversation.ResolveRequest{
//		CreatorID:      alice.ID,
//		ParticipantIDs: []string{bob.ID},
//	})
//
// Group requests, and requests with zero or several other users, always
// create a new conversation. Duplicate ids, the creator's own id and ids that
// do not name a user are skipped.
//
// Creation for a pair is serialized in-process by a per-pair lock. Separate
// processes can still race; RemoveDuplicates is the backstop.
//
// # Reconciliation
//
// RemoveDuplicates groups two-person direct conversations by participant
// pair, keeps the earliest and deletes the rest together with their
// messages. A second run removes nothing.
//
// # Service
//
// Service wraps the resolver with message posting (trim, reject blank,
// persist first), mark-read, history pages and per-user stats. Both the chat
// socket and the HTTP API go through it.
package conversation
