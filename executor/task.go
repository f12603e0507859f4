package executor

import (
	"context"
	"time"
)

// Priority orders tasks across the executor's three queues. Higher
// values are drained first: Urgent before High before Normal.
type Priority int

const (
	Normal Priority = iota
	High
	Urgent
)

// String returns the canonical lower-case name of the priority.
func (p Priority) String() string {
	switch p {
	case Urgent:
		return "urgent"
	case High:
		return "high"
	default:
		return "normal"
	}
}

// Affinity is a best-effort scheduling hint, never a correctness
// invariant.
type Affinity int

const (
	// AffinityNone means no preference: any worker may run the task.
	AffinityNone Affinity = iota
	// AffinitySameWorker asks the executor to prefer running the task on
	// the same worker goroutine that scheduled it, when the scheduler is
	// itself a worker of this executor. Ignored otherwise.
	AffinitySameWorker
)

// Op is the unit of work an executor runs. It receives a context bound to
// the executor's lifetime, cancelled when the executor stops.
type Op func(ctx context.Context)

// task is a priority-tagged (operation, priority, optional scheduled-for
// time, optional affinity) tuple. It is created at Schedule/ScheduleFor
// and destroyed after execution or cancellation.
type task struct {
	op           Op
	priority     Priority
	scheduledFor time.Time
	affinity     Affinity
}
