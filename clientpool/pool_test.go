package clientpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/romanqed/cpio/expirymap"
)

type fakeClient struct {
	n int
}

func TestPoolBuildsOnceThenReuses(t *testing.T) {
	var builds atomic.Int32
	entries := expirymap.New[string, *fakeClient](expirymap.Config{Lifetime: time.Minute, SweepInterval: time.Hour}, nil)
	defer entries.Close()
	pool := New(entries, func(ctx context.Context, id Identity) (*fakeClient, error) {
		builds.Add(1)
		return &fakeClient{n: int(builds.Load())}, nil
	})
	id := Identity{ProjectID: "p1", Scopes: []string{"a", "b"}}

	ref1, err := pool.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer ref1.Release()

	ref2, err := pool.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer ref2.Release()

	if ref1.Value() != ref2.Value() {
		t.Fatal("expected the same pooled client instance")
	}
	if got := builds.Load(); got != 1 {
		t.Fatalf("builds = %d, want 1", got)
	}
}

func TestIdentityKeyStableUnderScopeOrder(t *testing.T) {
	a := Identity{ProjectID: "p", Scopes: []string{"x", "y"}}
	b := Identity{ProjectID: "p", Scopes: []string{"y", "x"}}
	if a.Key() != b.Key() {
		t.Fatalf("keys differ: %q vs %q", a.Key(), b.Key())
	}
}
