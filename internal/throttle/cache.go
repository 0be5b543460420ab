// Package throttle implements the login-attempt and request throttles that
// protect the credential-check endpoint from brute-force abuse.
package throttle

import (
	"sync"
	"sync/atomic"
	"time"
)

// ExpiryMode selects how an entry's expiry behaves on writes.
type ExpiryMode int

const (
	// FixedWindow sets the expiry when the entry is created and leaves it
	// alone until the window elapses and the entry is dropped.
	FixedWindow ExpiryMode = iota
	// SlidingWindow pushes the expiry forward on every increment.
	SlidingWindow
)

type counterEntry struct {
	count     atomic.Int64
	expiresAt time.Time
}

// CounterCache is a concurrent counter map with per-key TTL. Increments are
// linearizable per key; expiry is lazy on access plus a background janitor,
// so a counter may be read a few times past its nominal expiry. The
// throttles built on top are best-effort defenses, not precise rate
// contracts.
type CounterCache struct {
	mu      sync.Mutex
	entries map[string]*counterEntry

	ttl  time.Duration
	mode ExpiryMode
	now  func() time.Time

	stop chan struct{}
	once sync.Once
}

// CacheOption configures a CounterCache.
type CacheOption func(*CounterCache)

// WithCacheClock overrides the time source (useful for tests).
func WithCacheClock(fn func() time.Time) CacheOption {
	return func(c *CounterCache) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCounterCache creates a cache whose entries expire after ttl. A janitor
// goroutine sweeps expired entries until Close is called.
func NewCounterCache(ttl time.Duration, mode ExpiryMode, opts ...CacheOption) *CounterCache {
	c := &CounterCache{
		entries: make(map[string]*counterEntry),
		ttl:     ttl,
		mode:    mode,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	interval := ttl
	if interval > time.Minute {
		interval = time.Minute
	}
	go c.janitor(interval)
	return c
}

// Increment adds one to the key's counter, creating it when absent or
// expired, and returns the new value.
func (c *CounterCache) Increment(key string) int64 {
	now := c.now()

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok || !e.expiresAt.After(now) {
		e = &counterEntry{expiresAt: now.Add(c.ttl)}
		c.entries[key] = e
	} else if c.mode == SlidingWindow {
		e.expiresAt = now.Add(c.ttl)
	}
	c.mu.Unlock()

	return e.count.Add(1)
}

// Value returns the key's current counter without mutating anything. An
// absent or expired key reads as zero.
func (c *CounterCache) Value(key string) int64 {
	now := c.now()

	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()

	if !ok || !e.expiresAt.After(now) {
		return 0
	}
	return e.count.Load()
}

// Len reports the number of live entries.
func (c *CounterCache) Len() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if e.expiresAt.After(now) {
			n++
		}
	}
	return n
}

// Close stops the janitor goroutine.
func (c *CounterCache) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *CounterCache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *CounterCache) sweep() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if !e.expiresAt.After(now) {
			delete(c.entries, key)
		}
	}
}
