// Package cache provides the in-process, TTL-bounded caches used by the
// request-authorization pipeline.
//
// Entries older than the TTL are treated as absent and evicted on read. A TTL
// of zero disables caching entirely. When the number of entries grows past the
// ceiling the default policy clears the whole cache before the next insert;
// PolicyLRU replaces that with least-recently-used eviction.
package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultCeiling is the entry count above which the clear-all policy flushes.
const DefaultCeiling = 5000

// Policy selects how the cache makes room once it reaches its ceiling.
type Policy int

const (
	// PolicyClearAll drops every entry once the count exceeds the ceiling.
	PolicyClearAll Policy = iota
	// PolicyLRU evicts the least recently used entry at the ceiling.
	PolicyLRU
)

func (p Policy) String() string {
	switch p {
	case PolicyLRU:
		return "lru"
	default:
		return "clear-all"
	}
}

// ParsePolicy maps a configuration value onto a Policy.
func ParsePolicy(raw string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "clear-all", "clearall":
		return PolicyClearAll, nil
	case "lru":
		return PolicyLRU, nil
	default:
		return PolicyClearAll, fmt.Errorf("unknown cache policy %q", raw)
	}
}

// Entry is a cached value together with the time it was stored.
type Entry[V any] struct {
	Value    V
	CachedAt time.Time
}

// Option configures a TTL cache.
type Option func(*options)

type options struct {
	ttl     time.Duration
	ceiling int
	policy  Policy
	now     func() time.Time
}

// WithTTL sets the entry lifetime. Zero or negative disables the cache.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithCeiling overrides DefaultCeiling.
func WithCeiling(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.ceiling = n
		}
	}
}

// WithPolicy selects the eviction policy.
func WithPolicy(p Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(o *options) {
		if fn != nil {
			o.now = fn
		}
	}
}

// TTL is a mutex-guarded key/value cache with per-entry expiry.
type TTL[K comparable, V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	ceiling int
	policy  Policy
	now     func() time.Time

	entries map[K]Entry[V]
	lru     *expirable.LRU[K, Entry[V]]
}

// New constructs an empty cache.
func New[K comparable, V any](opts ...Option) *TTL[K, V] {
	o := options{
		ceiling: DefaultCeiling,
		policy:  PolicyClearAll,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	c := &TTL[K, V]{
		ttl:     o.ttl,
		ceiling: o.ceiling,
		policy:  o.policy,
		now:     o.now,
	}
	if c.policy == PolicyLRU && c.Enabled() {
		// The LRU keeps its own wall-clock expiry as a backstop; reads still
		// compare CachedAt against the injected clock.
		c.lru = expirable.NewLRU[K, Entry[V]](c.ceiling, nil, c.ttl)
	} else {
		c.entries = make(map[K]Entry[V])
	}
	return c
}

// Enabled reports whether the cache stores anything at all.
func (c *TTL[K, V]) Enabled() bool {
	return c.ttl > 0
}

// TTL returns the configured entry lifetime.
func (c *TTL[K, V]) TTL() time.Duration {
	return c.ttl
}

// Get returns the entry for key if present and not older than the TTL.
// Expired entries are evicted.
func (c *TTL[K, V]) Get(key K) (Entry[V], bool) {
	if !c.Enabled() {
		return Entry[V]{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lookup(key)
	if !ok {
		return Entry[V]{}, false
	}
	if c.now().Sub(entry.CachedAt) > c.ttl {
		c.remove(key)
		return Entry[V]{}, false
	}
	return entry, true
}

// Put stores value under key, stamped with the current time.
func (c *TTL[K, V]) Put(key K, value V) {
	if !c.Enabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := Entry[V]{Value: value, CachedAt: c.now()}
	if c.lru != nil {
		c.lru.Add(key, entry)
		return
	}
	if len(c.entries) > c.ceiling {
		clear(c.entries)
	}
	c.entries[key] = entry
}

// Invalidate removes a single key.
func (c *TTL[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(key)
}

// InvalidateFunc removes every key for which match returns true and reports
// how many entries were dropped.
func (c *TTL[K, V]) InvalidateFunc(match func(K) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.keys() {
		if match(key) {
			c.remove(key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired ones included.
func (c *TTL[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lru != nil {
		return c.lru.Len()
	}
	return len(c.entries)
}

// Clear drops every entry.
func (c *TTL[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lru != nil {
		c.lru.Purge()
		return
	}
	clear(c.entries)
}

func (c *TTL[K, V]) lookup(key K) (Entry[V], bool) {
	if c.lru != nil {
		return c.lru.Get(key)
	}
	entry, ok := c.entries[key]
	return entry, ok
}

func (c *TTL[K, V]) remove(key K) {
	if c.lru != nil {
		c.lru.Remove(key)
		return
	}
	delete(c.entries, key)
}

func (c *TTL[K, V]) keys() []K {
	if c.lru != nil {
		return c.lru.Keys()
	}
	keys := make([]K, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}
