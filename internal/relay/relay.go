// ABOUTME: Relay delivers group events to every parley instance's registry
// ABOUTME: Local delivers in-process only; NATS also fans out across instances

package relay

import (
	"context"

	"github.com/2389/parley/internal/hub"
)

// Relay publishes an event to a group on every instance, this one included.
type Relay interface {
	Publish(ctx context.Context, group string, ev *hub.Event) error
	Close() error
}

// Local delivers straight into the in-process registry.
type Local struct {
	registry *hub.Registry
}

// Ensure Local implements Relay.
var _ Relay = (*Local)(nil)

// NewLocal creates a single-instance relay.
func NewLocal(registry *hub.Registry) *Local {
	return &Local{registry: registry}
}

// Publish broadcasts ev to group on this instance.
func (l *Local) Publish(ctx context.Context, group string, ev *hub.Event) error {
	l.registry.Broadcast(group, ev)
	return nil
}

// Close is a no-op; the registry is owned by the caller.
func (l *Local) Close() error {
	return nil
}
