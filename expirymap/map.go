// Package expirymap implements a concurrent keyed cache with TTL,
// touch-on-access, and a pre-eviction veto callback. It is the shared
// substrate under the per-audience token cache and the client pool.
package expirymap

import (
	"errors"
	"sync"
	"time"
)

// ErrAlreadyPresent is returned by Insert when the key is already present.
var ErrAlreadyPresent = errors.New("expirymap: already present")

// ErrNotPresent is returned by Erase when the key is not present.
var ErrNotPresent = errors.New("expirymap: not present")

// VetoFunc is consulted before an entry past its expiry is evicted. It
// returns true to allow the delete, false to deny it (the entry's
// expiry is left as-is and it will be reconsidered on a later sweep).
type VetoFunc[K comparable, V any] func(key K, value V) bool

// Config controls a Map's TTL behavior.
type Config struct {
	// Lifetime is how long a fresh or touched entry remains valid.
	Lifetime time.Duration
	// TouchOnAccess extends an entry's expiry on every successful Find.
	TouchOnAccess bool
	// BlockWhileEviction, when set, skips the eviction attempt entirely
	// for an entry with a nonzero in-use-count instead of still invoking
	// the veto callback.
	BlockWhileEviction bool
	// SweepInterval is how often the eviction ticker scans for expired
	// entries. Sub-entry-lifetime resolution is recommended.
	SweepInterval time.Duration
}

// Map is a concurrent keyed cache with TTL, touch-on-access, and a
// pre-eviction veto callback.
type Map[K comparable, V any] struct {
	cfg  Config
	veto VetoFunc[K, V]

	mu      sync.RWMutex
	entries map[K]*entry[V]

	stop chan struct{}
	done chan struct{}
}

// New builds a Map. veto may be nil, in which case every expired entry
// is evicted unconditionally, except an in-use entry when
// BlockWhileEviction is set.
func New[K comparable, V any](cfg Config, veto VetoFunc[K, V]) *Map[K, V] {
	if veto == nil {
		veto = func(K, V) bool { return true }
	}
	m := &Map[K, V]{
		cfg:     cfg,
		veto:    veto,
		entries: make(map[K]*entry[V]),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go m.sweep()
	return m
}

// Insert adds a new entry for k. Returns ErrAlreadyPresent if k already
// has an entry.
func (m *Map[K, V]) Insert(k K, v V) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[k]; ok {
		return ErrAlreadyPresent
	}
	m.entries[k] = newEntry(v, m.cfg.Lifetime)
	return nil
}

// Find looks up k, returning a Ref the caller must Release when done
// using the value. If TouchOnAccess is set, a successful Find extends
// the entry's expiry.
func (m *Map[K, V]) Find(k K) (*Ref[V], bool) {
	m.mu.RLock()
	e, ok := m.entries[k]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if m.cfg.TouchOnAccess {
		e.touch(m.cfg.Lifetime)
	}
	e.inUse.Add(1)
	e.mu.Lock()
	value := e.value
	e.mu.Unlock()
	ref := &Ref[V]{value: value, e: e, release: releaseEntry[V]}
	return ref, true
}

func releaseEntry[V any](e *entry[V]) {
	e.inUse.Add(-1)
}

// Erase removes k's entry regardless of in-use-count or expiry. Returns
// ErrNotPresent if k has no entry.
func (m *Map[K, V]) Erase(k K) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[k]; !ok {
		return ErrNotPresent
	}
	delete(m.entries, k)
	return nil
}

// Keys returns a point-in-time snapshot of the map's keys.
func (m *Map[K, V]) Keys() []K {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]K, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	return keys
}

// Close stops the eviction ticker. The map remains usable for
// Insert/Find/Erase/Keys after Close; only background eviction stops.
func (m *Map[K, V]) Close() {
	close(m.stop)
	<-m.done
}

func (m *Map[K, V]) sweep() {
	defer close(m.done)
	interval := m.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.evictDue()
		}
	}
}

func (m *Map[K, V]) evictDue() {
	now := time.Now()
	m.mu.RLock()
	candidates := make(map[K]*entry[V], len(m.entries))
	for k, e := range m.entries {
		candidates[k] = e
	}
	m.mu.RUnlock()
	for k, e := range candidates {
		e.mu.Lock()
		expired := !now.Before(e.expiresAt)
		inUse := e.inUse.Load() > 0
		value := e.value
		e.mu.Unlock()
		if !expired {
			continue
		}
		if inUse && m.cfg.BlockWhileEviction {
			continue
		}
		if !m.veto(k, value) {
			continue
		}
		m.mu.Lock()
		if cur, ok := m.entries[k]; ok && cur == e {
			if cur.inUse.Load() == 0 || !m.cfg.BlockWhileEviction {
				delete(m.entries, k)
			}
		}
		m.mu.Unlock()
	}
}
