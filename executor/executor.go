// Package executor implements a bounded priority worker pool: three
// priority queues (urgent, high, normal) drained urgent-first by a fixed
// set of worker goroutines, plus scheduled-for-time tasks held in a
// time-ordered heap until due.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/romanqed/cpio"
)

// ErrStopped is returned by Schedule/ScheduleFor once the executor has
// been stopped.
var ErrStopped = errors.New("executor: stopped")

// ErrQueueFull is returned by Schedule when the target priority queue is
// at capacity.
var ErrQueueFull = errors.New("executor: queue full")

type workerCtxValue struct {
	exec *Executor
	id   int
}

type workerCtxKey struct{}

// Executor is a bounded priority worker pool. The zero value is not
// usable; construct with New.
type Executor struct {
	cpio.LifecycleBase

	cfg   Config
	log   *slog.Logger
	stats Stats

	queues   [3]chan *task
	inboxes  []chan *task
	heap     delayHeap
	ctx      context.Context
	cancel   context.CancelFunc
	drain    bool
	wg       sync.WaitGroup
	tickDone chan struct{}
}

// New builds an Executor with the given configuration. Call Start before
// scheduling any work.
func New(cfg Config, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		cfg: cfg,
		log: log,
	}
}

// Start launches the worker goroutines and the delay-heap ticker.
// Returns cpio.ErrDoubleStarted if already running.
func (e *Executor) Start(ctx context.Context) error {
	if err := e.TryStart(); err != nil {
		return err
	}
	e.ctx, e.cancel = context.WithCancel(ctx)
	for i := range e.queues {
		e.queues[i] = make(chan *task, e.cfg.QueueCapacity)
	}
	e.inboxes = make([]chan *task, e.cfg.Workers)
	for i := range e.inboxes {
		e.inboxes[i] = make(chan *task, 4)
	}
	e.tickDone = make(chan struct{})
	for i := 0; i < e.cfg.Workers; i++ {
		e.wg.Add(1)
		go e.runWorker(i)
	}
	go e.runTicker()
	return nil
}

// Stop shuts the executor down and blocks up to timeout. With
// dropPending=false the workers first run every task already queued;
// with dropPending=true queued tasks are discarded. In-flight tasks
// always run to completion either way. Scheduled-for-time tasks not yet
// due are discarded in both modes. Returns cpio.ErrStopTimeout if the
// workers have not exited in time, cpio.ErrDoubleStopped if not running.
func (e *Executor) Stop(timeout time.Duration, dropPending bool) error {
	return e.TryStop(timeout, func() cpio.DoneChan {
		e.drain = !dropPending
		e.cancel()
		return cpio.AfterAll(cpio.AfterWaitGroup(&e.wg), e.tickDone)
	})
}

// Schedule enqueues op at the given priority. ctx should be the context
// passed into the calling worker's Op, if any; it is how the executor
// recognizes a same-executor affinity hint. Returns ErrQueueFull if the
// target queue is at capacity, or ErrStopped if not running.
func (e *Executor) Schedule(ctx context.Context, op Op, priority Priority, affinity Affinity) error {
	return e.schedule(ctx, &task{op: op, priority: priority, affinity: affinity})
}

// ScheduleFor enqueues a delayed task that becomes runnable once
// wall-clock reaches at. It returns a CancelFunc that prevents the task
// from running if it has not already started; cancellation after start
// is a no-op.
func (e *Executor) ScheduleFor(ctx context.Context, op Op, priority Priority, at time.Time) (CancelFunc, error) {
	if !e.Running() {
		return nil, ErrStopped
	}
	t := &task{op: op, priority: priority, scheduledFor: at}
	dt := &delayedTask{t: t}
	e.heap.insert(dt)
	return func() { dt.cancelled.Store(true) }, nil
}

func (e *Executor) schedule(ctx context.Context, t *task) error {
	if !e.Running() {
		return ErrStopped
	}
	if t.affinity == AffinitySameWorker {
		if v, ok := ctx.Value(workerCtxKey{}).(workerCtxValue); ok && v.exec == e {
			select {
			case e.inboxes[v.id] <- t:
				return nil
			default:
				// inbox full: fall through to the shared queue below.
			}
		}
	}
	e.stats.onEnqueue(t.priority)
	select {
	case e.queues[t.priority] <- t:
		return nil
	default:
		e.stats.onDequeue(t.priority)
		return ErrQueueFull
	}
}

func (e *Executor) runWorker(id int) {
	defer e.wg.Done()
	ctx := context.WithValue(e.ctx, workerCtxKey{}, workerCtxValue{exec: e, id: id})
	inbox := e.inboxes[id]
	for {
		select {
		case <-ctx.Done():
			if e.drain {
				e.drainRemaining(ctx, inbox)
			}
			return
		default:
		}
		if t := e.tryOwn(inbox); t != nil {
			e.run(ctx, t)
			continue
		}
		if t := e.tryDequeue(); t != nil {
			e.run(ctx, t)
			continue
		}
		select {
		case <-ctx.Done():
			if e.drain {
				e.drainRemaining(ctx, inbox)
			}
			return
		case t := <-inbox:
			e.run(ctx, t)
		case t := <-e.queues[Urgent]:
			e.stats.onDequeue(Urgent)
			e.run(ctx, t)
		case t := <-e.queues[High]:
			e.stats.onDequeue(High)
			e.run(ctx, t)
		case t := <-e.queues[Normal]:
			e.stats.onDequeue(Normal)
			e.run(ctx, t)
		}
	}
}

// drainRemaining empties the worker's inbox and the shared queues after
// shutdown has begun. New submissions are already rejected by schedule at
// this point, so the loop terminates once the backlog is gone.
func (e *Executor) drainRemaining(ctx context.Context, inbox chan *task) {
	for {
		t := e.tryOwn(inbox)
		if t == nil {
			t = e.tryDequeue()
		}
		if t == nil {
			return
		}
		e.run(ctx, t)
	}
}

func (e *Executor) tryOwn(inbox chan *task) *task {
	select {
	case t := <-inbox:
		return t
	default:
		return nil
	}
}

func (e *Executor) tryDequeue() *task {
	select {
	case t := <-e.queues[Urgent]:
		e.stats.onDequeue(Urgent)
		return t
	default:
	}
	select {
	case t := <-e.queues[High]:
		e.stats.onDequeue(High)
		return t
	default:
	}
	select {
	case t := <-e.queues[Normal]:
		e.stats.onDequeue(Normal)
		return t
	default:
	}
	return nil
}

func (e *Executor) run(ctx context.Context, t *task) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("executor task panic recovered", "err", r)
		}
	}()
	t.op(ctx)
	e.stats.onExecuted(t.priority)
}

func (e *Executor) runTicker() {
	defer close(e.tickDone)
	interval := time.Duration(e.cfg.TickIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case now := <-ticker.C:
			for _, t := range e.heap.drainDue(now) {
				_ = e.schedule(e.ctx, t)
			}
		}
	}
}

// Stats returns the executor's live per-priority counters.
func (e *Executor) Stats() *Stats {
	return &e.stats
}
