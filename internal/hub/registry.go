// ABOUTME: In-memory group registry that fans events out to live connection handles
// ABOUTME: Group map guarded by an RWMutex, each group's member set by its own Mutex

package hub

import (
	"log/slog"
	"sync"

	"github.com/2389/parley/internal/metrics"
)

// Event is a server-to-client event fanned out to a group.
// Payload is the JSON frame written to each recipient.
type Event struct {
	Type         string // "message", "typing", "user_status"
	OriginUserID string // user that caused the event, used for delivery filtering
	Payload      []byte
}

// Handle is a live connection registered in a group.
type Handle interface {
	// ID uniquely identifies the connection.
	ID() string
	// UserID is the authenticated user behind the connection.
	UserID() string
	// Send enqueues the event without blocking. It returns false if the
	// outbound queue is full or the connection is closed.
	Send(ev *Event) bool
	// Close tears the connection down. It must be safe to call repeatedly
	// and from any goroutine.
	Close()
}

type group struct {
	mu      sync.Mutex
	members map[string]Handle // handle ID -> handle
	dead    bool              // removed from the registry map
}

// Registry maps group keys (conversation IDs) to the handles joined to them.
// Groups are created lazily on Join and removed when their last handle leaves.
type Registry struct {
	mu      sync.RWMutex
	groups  map[string]*group
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewRegistry creates a registry. Pass nil logger for default, nil metrics to disable.
func NewRegistry(logger *slog.Logger, m *metrics.Metrics) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		groups:  make(map[string]*group),
		metrics: m,
		logger:  logger.With("component", "hub"),
	}
}

// Join registers h under key. Joining twice with the same handle is a no-op.
func (r *Registry) Join(key string, h Handle) {
	// Fast path: group exists and is live.
	r.mu.RLock()
	g := r.groups[key]
	r.mu.RUnlock()

	if g != nil && g.add(h) {
		r.logger.Debug("handle joined", "group", key, "handle", h.ID())
		return
	}

	r.mu.Lock()
	g = r.groups[key]
	if g == nil || !g.add(h) {
		g = &group{members: map[string]Handle{h.ID(): h}}
		r.groups[key] = g
	}
	r.mu.Unlock()

	r.logger.Debug("handle joined", "group", key, "handle", h.ID())
}

// add inserts h unless the group has already been removed.
func (g *group) add(h Handle) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.dead {
		return false
	}
	g.members[h.ID()] = h
	return true
}

// Leave removes h from key. Leaving a group the handle is not in is a no-op.
func (r *Registry) Leave(key string, h Handle) {
	r.mu.RLock()
	g := r.groups[key]
	r.mu.RUnlock()
	if g == nil {
		return
	}

	g.mu.Lock()
	if _, ok := g.members[h.ID()]; !ok {
		g.mu.Unlock()
		return
	}
	delete(g.members, h.ID())
	empty := len(g.members) == 0
	if empty {
		g.dead = true
	}
	g.mu.Unlock()

	if empty {
		r.mu.Lock()
		if r.groups[key] == g {
			delete(r.groups, key)
		}
		r.mu.Unlock()
	}

	r.logger.Debug("handle left", "group", key, "handle", h.ID())
}

// Broadcast delivers ev to every handle registered under key at call time and
// returns the number of handles that accepted it. A handle whose queue
// rejects the event is closed; delivery errors never reach the caller.
func (r *Registry) Broadcast(key string, ev *Event) int {
	r.mu.RLock()
	g := r.groups[key]
	r.mu.RUnlock()
	if g == nil {
		return 0
	}

	// Copy members under the group lock to avoid holding it during sends
	g.mu.Lock()
	targets := make([]Handle, 0, len(g.members))
	for _, h := range g.members {
		targets = append(targets, h)
	}
	g.mu.Unlock()

	r.metrics.Broadcast()

	delivered := 0
	for _, h := range targets {
		if h.Send(ev) {
			delivered++
			continue
		}
		r.metrics.DeliveryFailure()
		r.logger.Debug("closing unresponsive handle",
			"group", key,
			"handle", h.ID(),
			"event_type", ev.Type)
		h.Close()
	}
	return delivered
}

// Members returns the number of handles in key.
func (r *Registry) Members(key string) int {
	r.mu.RLock()
	g := r.groups[key]
	r.mu.RUnlock()
	if g == nil {
		return 0
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.members)
}

// Has reports whether h is registered under key.
func (r *Registry) Has(key string, h Handle) bool {
	r.mu.RLock()
	g := r.groups[key]
	r.mu.RUnlock()
	if g == nil {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.members[h.ID()]
	return ok
}

// Groups returns the number of non-empty groups.
func (r *Registry) Groups() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}

// Close removes every group and closes every registered handle.
func (r *Registry) Close() {
	r.mu.Lock()
	groups := r.groups
	r.groups = make(map[string]*group)
	r.mu.Unlock()

	var handles []Handle
	for _, g := range groups {
		g.mu.Lock()
		g.dead = true
		for _, h := range g.members {
			handles = append(handles, h)
		}
		g.members = make(map[string]Handle)
		g.mu.Unlock()
	}

	// Closing outside the locks lets handles call Leave from their teardown.
	for _, h := range handles {
		h.Close()
	}

	r.logger.Debug("registry closed", "handles", len(handles))
}
