package expirymap

import (
	"sync"
	"sync/atomic"
	"time"
)

// entry is a (key, value, created-at, expires-at, in-use-count) cache
// entry. Its invariant is expiresAt > createdAt, enforced by the map on
// every (re)insertion and touch.
type entry[V any] struct {
	mu sync.Mutex

	value     V
	createdAt time.Time
	expiresAt time.Time
	inUse     atomic.Int32
}

func newEntry[V any](value V, lifetime time.Duration) *entry[V] {
	now := time.Now()
	return &entry[V]{
		value:     value,
		createdAt: now,
		expiresAt: now.Add(lifetime),
	}
}

func (e *entry[V]) touch(lifetime time.Duration) {
	e.mu.Lock()
	e.expiresAt = time.Now().Add(lifetime)
	e.mu.Unlock()
}

// Ref is a held reference to a cache entry's value. When the Map's
// Config sets BlockWhileEviction, the entry is not evicted while any Ref
// obtained from Find remains unreleased; without it, eviction ignores
// the in-use count, and the Ref keeps the value it already holds after
// the entry is gone. Callers must call Release exactly once.
type Ref[V any] struct {
	value   V
	e       *entry[V]
	release func(*entry[V])
	done    atomic.Bool
}

// Value returns the referenced entry's value.
func (r *Ref[V]) Value() V {
	return r.value
}

// Release drops this hold on the entry, allowing it to become eligible
// for eviction once its in-use-count reaches zero. Calling Release more
// than once is a no-op.
func (r *Ref[V]) Release() {
	if r.done.CompareAndSwap(false, true) {
		r.release(r.e)
	}
}
