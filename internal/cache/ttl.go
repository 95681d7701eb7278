// Package cache provides the in-process lookup caches shared by pipeline
// runs: a capacity-bounded, time-boxed LRU with per-key single-flight
// loading, and the four lookups built on it.
package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader fetches the value for a key on a miss.
type Loader[V any] func(ctx context.Context) (V, error)

// TTL is an LRU cache whose entries expire after a fixed duration. Concurrent
// misses on the same key share a single Loader call; loader errors are
// returned to every waiter and never stored.
type TTL[V any] struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	items    map[string]*list.Element
	order    *list.List // front = most recently used
	group    singleflight.Group
	now      func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

type entry[V any] struct {
	key     string
	value   V
	expires time.Time
}

// NewTTL creates a cache holding at most capacity entries for ttl each.
func NewTTL[V any](ttl time.Duration, capacity int) *TTL[V] {
	if capacity < 1 {
		capacity = 1
	}
	return &TTL[V]{
		ttl:      ttl,
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// Get returns the cached value for key, calling load at most once across
// concurrent callers when the key is absent or expired. A caller whose ctx is
// cancelled stops waiting; the load itself keeps running for the others.
func (c *TTL[V]) Get(ctx context.Context, key string, load Loader[V]) (V, error) {
	if v, ok := c.lookup(key); ok {
		c.hits.Add(1)
		return v, nil
	}
	c.misses.Add(1)

	ch := c.group.DoChan(key, func() (any, error) {
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		v, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return v, err
		}
		c.store(key, v)
		return v, nil
	})

	select {
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		return res.Val.(V), nil
	}
}

// Set stores value under key, replacing any existing entry.
func (c *TTL[V]) Set(key string, value V) {
	c.store(key, value)
}

// Len returns the number of entries, including expired ones not yet evicted.
func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns the hit and miss counters.
func (c *TTL[V]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Purge drops every entry.
func (c *TTL[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
}

func (c *TTL[V]) lookup(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.items[key]
	if !ok {
		return zero, false
	}
	e := elem.Value.(*entry[V])
	if !c.now().Before(e.expires) {
		c.removeLocked(elem)
		return zero, false
	}
	c.order.MoveToFront(elem)
	return e.value, true
}

func (c *TTL[V]) store(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.now().Add(c.ttl)
	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*entry[V])
		e.value = value
		e.expires = expires
		c.order.MoveToFront(elem)
		return
	}
	c.items[key] = c.order.PushFront(&entry[V]{key: key, value: value, expires: expires})
	for c.order.Len() > c.capacity {
		c.removeLocked(c.order.Back())
	}
}

// removeLocked removes elem. Caller must hold c.mu.
func (c *TTL[V]) removeLocked(elem *list.Element) {
	e := elem.Value.(*entry[V])
	c.order.Remove(elem)
	delete(c.items, e.key)
}
