package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/romanqed/cpio"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	e := New(Config{Workers: 4, QueueCapacity: 16, TickIntervalMs: 5}, nil)
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		if err := e.Stop(time.Second, false); err != nil {
			t.Fatalf("stop: %v", err)
		}
	})
	return e
}

func TestExecutorSchedule(t *testing.T) {
	e := newTestExecutor(t)
	var wg sync.WaitGroup
	wg.Add(1)
	var ran atomic.Bool
	err := e.Schedule(context.Background(), func(ctx context.Context) {
		ran.Store(true)
		wg.Done()
	}, Normal, AffinityNone)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	wg.Wait()
	if !ran.Load() {
		t.Fatal("task did not run")
	}
	if got := e.Stats().Executed(Normal); got != 1 {
		t.Fatalf("executed = %d, want 1", got)
	}
}

func TestExecutorPriorityOrder(t *testing.T) {
	// A single worker, wedged on a gate task, so the three tasks below are
	// all queued before any is picked up; the drain must then go urgent,
	// high, normal regardless of submission order.
	e := New(Config{Workers: 1, QueueCapacity: 16, TickIntervalMs: 5}, nil)
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		if err := e.Stop(time.Second, false); err != nil {
			t.Fatalf("stop: %v", err)
		}
	})
	gate := make(chan struct{})
	started := make(chan struct{})
	_ = e.Schedule(context.Background(), func(ctx context.Context) {
		close(started)
		<-gate
	}, Normal, AffinityNone)
	<-started

	var mu sync.Mutex
	var order []Priority
	var wg sync.WaitGroup
	wg.Add(3)
	record := func(p Priority) Op {
		return func(ctx context.Context) {
			mu.Lock()
			order = append(order, p)
			mu.Unlock()
			wg.Done()
		}
	}
	_ = e.Schedule(context.Background(), record(Normal), Normal, AffinityNone)
	_ = e.Schedule(context.Background(), record(High), High, AffinityNone)
	_ = e.Schedule(context.Background(), record(Urgent), Urgent, AffinityNone)
	close(gate)
	wg.Wait()
	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != Urgent || order[1] != High || order[2] != Normal {
		t.Fatalf("order = %v, want [urgent high normal]", order)
	}
}

func TestExecutorScheduleFor(t *testing.T) {
	e := newTestExecutor(t)
	done := make(chan time.Time, 1)
	start := time.Now()
	_, err := e.ScheduleFor(context.Background(), func(ctx context.Context) {
		done <- time.Now()
	}, Normal, start.Add(50*time.Millisecond))
	if err != nil {
		t.Fatalf("schedule for: %v", err)
	}
	select {
	case fired := <-done:
		if fired.Sub(start) < 40*time.Millisecond {
			t.Fatalf("fired too early: %v", fired.Sub(start))
		}
	case <-time.After(time.Second):
		t.Fatal("delayed task never ran")
	}
}

func TestExecutorScheduleForCancel(t *testing.T) {
	e := newTestExecutor(t)
	var ran atomic.Bool
	cancel, err := e.ScheduleFor(context.Background(), func(ctx context.Context) {
		ran.Store(true)
	}, Normal, time.Now().Add(50*time.Millisecond))
	if err != nil {
		t.Fatalf("schedule for: %v", err)
	}
	cancel()
	time.Sleep(150 * time.Millisecond)
	if ran.Load() {
		t.Fatal("cancelled task ran")
	}
}

func TestExecutorScheduleAfterStop(t *testing.T) {
	e := New(Config{Workers: 1, QueueCapacity: 4, TickIntervalMs: 5}, nil)
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := e.Stop(time.Second, false); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := e.State(); got != cpio.StateStopped {
		t.Fatalf("state = %v, want stopped", got)
	}
	err := e.Schedule(context.Background(), func(context.Context) {}, Normal, AffinityNone)
	if err != ErrStopped {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}

func TestExecutorStopDrainsPending(t *testing.T) {
	// One worker wedged on a slow task while more tasks queue behind it:
	// Stop with dropPending=false must run them all before returning.
	e := New(Config{Workers: 1, QueueCapacity: 16, TickIntervalMs: 5}, nil)
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	gate := make(chan struct{})
	started := make(chan struct{})
	_ = e.Schedule(context.Background(), func(ctx context.Context) {
		close(started)
		<-gate
	}, Normal, AffinityNone)
	<-started

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		if err := e.Schedule(context.Background(), func(ctx context.Context) {
			ran.Add(1)
		}, Normal, AffinityNone); err != nil {
			t.Fatalf("schedule: %v", err)
		}
	}
	close(gate)
	if err := e.Stop(2*time.Second, false); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := ran.Load(); got != 5 {
		t.Fatalf("ran = %d, want all 5 pending tasks drained", got)
	}
}

func TestExecutorStopDropsPending(t *testing.T) {
	e := New(Config{Workers: 1, QueueCapacity: 16, TickIntervalMs: 5}, nil)
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	gate := make(chan struct{})
	started := make(chan struct{})
	_ = e.Schedule(context.Background(), func(ctx context.Context) {
		close(started)
		<-gate
	}, Normal, AffinityNone)
	<-started

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		_ = e.Schedule(context.Background(), func(ctx context.Context) {
			ran.Add(1)
		}, Normal, AffinityNone)
	}

	// Begin shutdown while the worker is still wedged, so cancellation is
	// already visible by the time the worker looks for more work.
	stopped := make(chan error, 1)
	go func() { stopped <- e.Stop(2*time.Second, true) }()
	for e.Running() {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)

	if err := <-stopped; err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := ran.Load(); got != 0 {
		t.Fatalf("ran = %d, want pending tasks discarded", got)
	}
}
