package executor

import "sync/atomic"

// Stats exposes per-priority counters of executed tasks and current
// queue depth. Reads never block scheduling or execution: every field is
// a separate atomic counter, not a snapshot guarded by a shared lock.
type Stats struct {
	executed [3]atomic.Int64
	depth    [3]atomic.Int64
}

func (s *Stats) onEnqueue(p Priority) {
	s.depth[p].Add(1)
}

func (s *Stats) onDequeue(p Priority) {
	s.depth[p].Add(-1)
}

func (s *Stats) onExecuted(p Priority) {
	s.executed[p].Add(1)
}

// Executed returns the number of tasks executed so far at priority p.
func (s *Stats) Executed(p Priority) int64 {
	return s.executed[p].Load()
}

// QueueDepth returns the current number of tasks waiting at priority p.
// A scheduled-for-time task only contributes once it has moved from the
// delay heap into the ready queue.
func (s *Stats) QueueDepth(p Priority) int64 {
	return s.depth[p].Load()
}
