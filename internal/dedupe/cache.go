// ABOUTME: Thread-safe TTL window of recently seen relay envelope IDs
// ABOUTME: Drops envelopes delivered twice by the cross-instance relay

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// Defaults used by the relay.
const (
	DefaultTTL     = 2 * time.Minute
	DefaultMaxSize = 50_000
)

type entry struct {
	id     string
	seenAt time.Time
}

// Cache remembers IDs for ttl, holding at most maxSize of them. The oldest
// ID is evicted first when full. A linked list keeps IDs in first-seen order
// so eviction and expiry walk from the front.
type Cache struct {
	mu      sync.Mutex
	index   map[string]*list.Element
	order   *list.List // *entry, oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a cache and starts a background sweeper for expired IDs.
// Non-positive arguments fall back to DefaultTTL and DefaultMaxSize.
func New(ttl time.Duration, maxSize int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	c := &Cache{
		index:   make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.sweepLoop(sweepInterval(ttl))
	return c
}

func sweepInterval(ttl time.Duration) time.Duration {
	interval := ttl / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	return interval
}

// Seen reports whether id was already recorded within the TTL. An unseen (or
// expired) id is recorded in the same critical section, so of several
// concurrent callers with the same id exactly one gets false.
func (c *Cache) Seen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.index[id]; ok {
		if now.Sub(el.Value.(*entry).seenAt) < c.ttl {
			return true
		}
		c.removeLocked(el)
	}
	c.insertLocked(id, now)
	return false
}

// Mark records id without checking it, e.g. for envelopes this instance
// published and already delivered locally.
func (c *Cache) Mark(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[id]; ok {
		c.removeLocked(el)
	}
	c.insertLocked(id, c.now())
}

// Len returns the number of remembered IDs, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

func (c *Cache) insertLocked(id string, at time.Time) {
	for len(c.index) >= c.maxSize {
		c.removeLocked(c.order.Front())
	}
	c.index[id] = c.order.PushBack(&entry{id: id, seenAt: at})
}

func (c *Cache) removeLocked(el *list.Element) {
	if el == nil {
		return
	}
	c.order.Remove(el)
	delete(c.index, el.Value.(*entry).id)
}

// sweep drops expired IDs from the front of the list.
func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for el := c.order.Front(); el != nil; el = c.order.Front() {
		if now.Sub(el.Value.(*entry).seenAt) < c.ttl {
			return
		}
		c.removeLocked(el)
	}
}

func (c *Cache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// Close stops the sweeper. It is safe to call multiple times.
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}
