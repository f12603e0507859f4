package lifecycle

import (
	"sync"

	"github.com/romanqed/cpio/jobclient"
)

// claim is the metadata held for one claimed queue message: the receipt
// identifying this delivery and whether the extender should keep
// refreshing its visibility. One entry per claimed job on this worker.
type claim struct {
	receipt                jobclient.Receipt
	isVisibilityExtendable bool
}

// claimsMap is the helper's single mutable shared structure, guarded by
// its own lock. An entry exists iff this worker holds the claim for that
// job id.
type claimsMap struct {
	mu      sync.Mutex
	entries map[string]claim
}

func newClaimsMap() *claimsMap {
	return &claimsMap{entries: make(map[string]claim)}
}

// upsert erases any existing entry for id before inserting c, so a stale
// entry left behind by a prior, abandoned claim cannot block a fresh one.
func (m *claimsMap) upsert(id string, c claim) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	m.entries[id] = c
}

func (m *claimsMap) find(id string) (claim, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.entries[id]
	return c, ok
}

func (m *claimsMap) erase(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
}

// keys returns a point-in-time snapshot of claimed job ids, for the
// extender to walk without holding the lock while it calls out to G.
func (m *claimsMap) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	return ids
}
