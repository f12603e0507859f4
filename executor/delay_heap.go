package executor

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"
)

// CancelFunc, when invoked, prevents a scheduled-for-time task from
// running if it has not already started. Cancellation after start is a
// no-op.
type CancelFunc func()

// delayedTask pairs a task with an independent cancellation flag so a
// caller-held CancelFunc can veto the task without touching the heap
// directly.
type delayedTask struct {
	t         *task
	cancelled atomic.Bool
	index     int // heap.Interface bookkeeping
}

// delayHeap is a time-ordered min-heap keyed by scheduledFor, draining
// into the executor's ready queues as entries become due. All mutation
// goes through the embedded mutex; heap.Interface methods themselves
// assume the caller already holds it.
type delayHeap struct {
	mu    sync.Mutex
	items []*delayedTask
}

func (h *delayHeap) Len() int { return len(h.items) }

func (h *delayHeap) Less(i, j int) bool {
	return h.items[i].t.scheduledFor.Before(h.items[j].t.scheduledFor)
}

func (h *delayHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

func (h *delayHeap) Push(x any) {
	dt := x.(*delayedTask)
	dt.index = len(h.items)
	h.items = append(h.items, dt)
}

func (h *delayHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	h.items = old[:n-1]
	return item
}

// insert adds dt to the heap under lock.
func (h *delayHeap) insert(dt *delayedTask) {
	h.mu.Lock()
	defer h.mu.Unlock()
	heap.Push(h, dt)
}

// drainDue pops and returns every entry whose scheduledFor has elapsed
// as of now, in scheduledFor order, skipping entries already cancelled.
func (h *delayHeap) drainDue(now time.Time) []*task {
	h.mu.Lock()
	defer h.mu.Unlock()
	var due []*task
	for h.Len() > 0 && !h.items[0].t.scheduledFor.After(now) {
		dt := heap.Pop(h).(*delayedTask)
		if dt.cancelled.Load() {
			continue
		}
		due = append(due, dt.t)
	}
	return due
}
