// Package cache provides a bounded, TTL-aware, concurrency-safe LRU cache.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSize bounds caches created with a non-positive size.
const DefaultSize = 1024

type item[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is an LRU cache whose entries also expire after a TTL. A zero TTL
// disables expiry; the size bound still applies.
type Cache[K comparable, V any] struct {
	mu  sync.Mutex // orders writes against expired-entry removal
	lru *lru.Cache[K, item[V]]
	ttl time.Duration
	now func() time.Time
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	now     func() time.Time
	onEvict func(key any)
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithEvictCallback is invoked with the key of every entry dropped by size
// pressure or explicit removal. fn must not write to the cache.
func WithEvictCallback(fn func(key any)) Option {
	return func(o *options) { o.onEvict = fn }
}

// New creates a cache holding at most size entries, each living for ttl.
func New[K comparable, V any](size int, ttl time.Duration, opts ...Option) (*Cache[K, V], error) {
	if size <= 0 {
		size = DefaultSize
	}

	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	var (
		l   *lru.Cache[K, item[V]]
		err error
	)
	if o.onEvict != nil {
		l, err = lru.NewWithEvict(size, func(k K, _ item[V]) { o.onEvict(k) })
	} else {
		l, err = lru.New[K, item[V]](size)
	}
	if err != nil {
		return nil, err
	}

	return &Cache[K, V]{lru: l, ttl: ttl, now: o.now}, nil
}

// Get returns the live value for key. Expired entries are removed.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	var zero V
	it, ok := c.lru.Get(key)
	if !ok {
		return zero, false
	}
	if c.expired(it) {
		c.removeExpired(key)
		return zero, false
	}
	return it.value, true
}

// removeExpired drops key only while the stored entry is still expired, so
// a value written after the stale read survives.
func (c *Cache[K, V]) removeExpired(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.lru.Peek(key); ok && c.expired(cur) {
		c.lru.Remove(key)
	}
}

func (c *Cache[K, V]) expired(it item[V]) bool {
	return !it.expiresAt.IsZero() && !c.now().Before(it.expiresAt)
}

// Set stores value under key with the cache's TTL, replacing any prior entry.
func (c *Cache[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value under key with an explicit TTL.
func (c *Cache[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	it := item[V]{value: value}
	if ttl > 0 {
		it.expiresAt = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.lru.Add(key, it)
	c.mu.Unlock()
}

// Invalidate removes key and reports whether it was present.
func (c *Cache[K, V]) Invalidate(key K) bool {
	return c.lru.Remove(key)
}

// Purge removes every entry.
func (c *Cache[K, V]) Purge() {
	c.lru.Purge()
}

// Len returns the number of stored entries, including expired ones not yet
// observed.
func (c *Cache[K, V]) Len() int {
	return c.lru.Len()
}
