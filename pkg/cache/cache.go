// Copyright (c) 2025 SpecterX-AHM
//
// This file is part of WebAuthn-Authenticator.

// Package cache provides a bounded in-memory store with least-recently-used
// eviction and an absolute idle expiry. It backs every store in the ceremony
// engine: capacity control is a cache concern, while single-use semantics are
// layered on top by the callers via Take.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Cache is a thread-safe, size-bounded map with idle expiry. Every read or
// write of an entry refreshes its recency; an entry untouched for longer than
// the idle TTL is treated as absent. When the entry count exceeds the maximum,
// the least recently used entries are evicted.
type Cache[K comparable, V any] struct {
	mu         sync.Mutex
	maxEntries int
	idleTTL    time.Duration
	entries    map[K]*list.Element
	order      *list.List // front = most recently used
	now        func() time.Time
}

type entry[K comparable, V any] struct {
	key        K
	value      V
	lastAccess time.Time
}

// New creates a cache holding at most maxEntries entries, each expiring after
// idleTTL without access. maxEntries must be positive; idleTTL of zero
// disables idle expiry.
func New[K comparable, V any](maxEntries int, idleTTL time.Duration) *Cache[K, V] {
	return NewWithClock[K, V](maxEntries, idleTTL, time.Now)
}

// NewWithClock is New with an injectable clock, for tests.
func NewWithClock[K comparable, V any](maxEntries int, idleTTL time.Duration, now func() time.Time) *Cache[K, V] {
	if maxEntries <= 0 {
		panic("cache: maxEntries must be positive")
	}
	return &Cache[K, V]{
		maxEntries: maxEntries,
		idleTTL:    idleTTL,
		entries:    make(map[K]*list.Element),
		order:      list.New(),
		now:        now,
	}
}

// Get returns the live value for key and refreshes its recency.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get(key)
}

// Put stores value under key, refreshing recency and evicting the least
// recently used entries if the cache is over capacity.
func (c *Cache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(key, value)
}

// GetOrLoad returns the live value for key, calling load to create and store
// one if absent. The load runs under the cache lock so concurrent callers
// observe exactly one creation.
func (c *Cache[K, V]) GetOrLoad(key K, load func() (V, error)) (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		var zero V
		return zero, err
	}
	c.put(key, v)
	return v, nil
}

// Update atomically applies fn to the current value of key. fn receives the
// live value (or the zero value with ok=false) and returns the replacement
// plus whether to keep the entry; returning keep=false removes it. The entry
// is refreshed when kept.
func (c *Cache[K, V]) Update(key K, fn func(value V, ok bool) (V, bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	old, ok := c.get(key)
	next, keep := fn(old, ok)
	if keep {
		c.put(key, next)
	} else {
		c.remove(key)
	}
}

// Take returns the live value for key and unconditionally removes the entry,
// present or not. Under concurrent calls for the same key exactly one caller
// receives the value.
func (c *Cache[K, V]) Take(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.get(key)
	c.remove(key)
	return v, ok
}

// Invalidate removes key, reporting whether a live entry was present.
func (c *Cache[K, V]) Invalidate(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.get(key)
	c.remove(key)
	return ok
}

// Range calls fn for every live entry until fn returns false. Iteration does
// not refresh recency.
func (c *Cache[K, V]) Range(fn func(key K, value V) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		ent := el.Value.(*entry[K, V])
		if c.expired(ent, now) {
			c.order.Remove(el)
			delete(c.entries, ent.key)
		} else if !fn(ent.key, ent.value) {
			return
		}
		el = next
	}
}

// Len returns the number of live entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	now := c.now()
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		ent := el.Value.(*entry[K, V])
		if c.expired(ent, now) {
			c.order.Remove(el)
			delete(c.entries, ent.key)
		} else {
			n++
		}
		el = next
	}
	return n
}

func (c *Cache[K, V]) get(key K) (V, bool) {
	var zero V
	el, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	ent := el.Value.(*entry[K, V])
	if c.expired(ent, c.now()) {
		c.order.Remove(el)
		delete(c.entries, key)
		return zero, false
	}
	ent.lastAccess = c.now()
	c.order.MoveToFront(el)
	return ent.value, true
}

func (c *Cache[K, V]) put(key K, value V) {
	if el, ok := c.entries[key]; ok {
		ent := el.Value.(*entry[K, V])
		ent.value = value
		ent.lastAccess = c.now()
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&entry[K, V]{key: key, value: value, lastAccess: c.now()})
	c.entries[key] = el
	for len(c.entries) > c.maxEntries {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		ent := oldest.Value.(*entry[K, V])
		c.order.Remove(oldest)
		delete(c.entries, ent.key)
	}
}

func (c *Cache[K, V]) remove(key K) {
	if el, ok := c.entries[key]; ok {
		c.order.Remove(el)
		delete(c.entries, key)
	}
}

func (c *Cache[K, V]) expired(ent *entry[K, V], now time.Time) bool {
	return c.idleTTL > 0 && now.Sub(ent.lastAccess) > c.idleTTL
}
