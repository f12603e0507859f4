package retry

import (
	"context"
	"time"

	"github.com/romanqed/cpio"
	"github.com/romanqed/cpio/executor"
)

// Op is an attempt at some operation; attempt is 1 on the first call. Op
// returns a cpio.Result telling the Dispatcher whether to retry.
type Op func(ctx context.Context, attempt uint32) cpio.Result

// Dispatcher runs an Op to completion, rescheduling it through an
// executor as a delayed task whenever the Op reports a retriable result
// and the Policy still owes an attempt. The delay between attempts never
// blocks a worker goroutine; the next attempt is a ScheduleFor task.
type Dispatcher struct {
	exec     *executor.Executor
	policy   Policy
	priority executor.Priority
}

// New builds a Dispatcher that schedules attempts on exec at priority.
func New(exec *executor.Executor, policy Policy, priority executor.Priority) *Dispatcher {
	return &Dispatcher{exec: exec, policy: policy, priority: priority}
}

// Run starts op at attempt 1 and keeps retrying per d.policy until op
// returns a non-retriable result, the policy is exhausted, or ctx is
// cancelled. done is invoked exactly once, on the executor goroutine
// that produced the final result.
//
// Cancellation is checked at attempt boundaries: a ctx cancelled while
// an attempt is in flight takes effect before the next attempt runs,
// which resolves as a cancelled failure instead of running op again.
func (d *Dispatcher) Run(ctx context.Context, op Op, done func(cpio.Result)) error {
	return d.exec.Schedule(ctx, d.attempt(ctx, op, done, 1), d.priority, executor.AffinityNone)
}

func (d *Dispatcher) attempt(ctx context.Context, op Op, done func(cpio.Result), n uint32) executor.Op {
	return func(context.Context) {
		if err := ctx.Err(); err != nil {
			done(cpio.Failure(cpio.CodeCancelled, err))
			return
		}
		result := op(ctx, n)
		if !result.IsRetriable() {
			done(result)
			return
		}
		delay, ok := d.policy.Next(n)
		if !ok {
			// The last attempt failed retriably but no further attempt is
			// owed; the caller must see that nothing more will happen, so
			// the result is reported as a fatal exhaustion failure rather
			// than the raw still-marked-retriable one.
			done(cpio.Failure(cpio.CodeDispatchRetriesExhausted, result.Err()))
			return
		}
		next := d.attempt(ctx, op, done, n+1)
		if _, err := d.exec.ScheduleFor(ctx, next, d.priority, time.Now().Add(delay)); err != nil {
			done(result)
		}
	}
}
