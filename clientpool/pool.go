// Package clientpool implements the per-identity client pool: a keyed
// cache of long-lived cloud-SDK clients layered directly on
// expirymap.Map, so that shared-ownership gating (a client isn't
// destroyed while any in-flight operation holds it) comes for free.
package clientpool

import (
	"context"
	"errors"

	"github.com/romanqed/cpio/expirymap"
)

// ErrUnavailable is returned by Get when a freshly built client is
// repeatedly evicted between insert and lookup. In practice it requires
// an entry lifetime shorter than the sweep interval.
var ErrUnavailable = errors.New("clientpool: entry evicted before use")

// Factory builds a fresh client for id. Implementations are
// vendor-specific; see GCSFactory for an example.
type Factory[C any] func(ctx context.Context, id Identity) (C, error)

// Pool is a per-identity cache of clients of type C, keyed by
// Identity.Key(). On miss it calls the configured Factory, inserts the
// result, and returns it; all access is through expirymap.Ref, so a
// client in use is never evicted out from under its caller.
type Pool[C any] struct {
	entries *expirymap.Map[string, C]
	factory Factory[C]
}

// New builds a Pool backed by entries, calling factory on a cache miss.
// The veto callback passed to entries should normally allow every
// eviction (clients are cheap to recreate); callers wanting to retain
// idle clients longer should pass a veto that denies eviction instead.
func New[C any](entries *expirymap.Map[string, C], factory Factory[C]) *Pool[C] {
	return &Pool[C]{entries: entries, factory: factory}
}

// AlwaysEvict is the default veto for a Pool's backing Map: client
// entries are cheap to recreate, so every expired, unused entry is
// evicted.
func AlwaysEvict[C any](string, C) bool { return true }

// Get returns the client for id, building one via the Factory on a
// cache miss. The returned Ref must be Released when the caller is done
// with the client.
func (p *Pool[C]) Get(ctx context.Context, id Identity) (*expirymap.Ref[C], error) {
	key := id.Key()
	if ref, ok := p.entries.Find(key); ok {
		return ref, nil
	}
	client, err := p.factory(ctx, id)
	if err != nil {
		return nil, err
	}
	// Insert may race with a concurrent miss on the same key or with an
	// eviction sweep; either way, retry Find once the insert attempt
	// settles rather than handing back an unreferenced client.
	for i := 0; i < 2; i++ {
		if err := p.entries.Insert(key, client); err != nil && !errors.Is(err, expirymap.ErrAlreadyPresent) {
			return nil, err
		}
		if ref, ok := p.entries.Find(key); ok {
			return ref, nil
		}
	}
	return nil, ErrUnavailable
}
