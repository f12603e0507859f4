// Package lifecycle implements the job lifecycle helper: the
// state-machine centerpiece that composes the queue+table client, the
// autoscaler gate, and the retry/executor substrate into PrepareNextJob,
// MarkJobCompleted and ReleaseJobForRetry, plus the background
// visibility extender.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/romanqed/cpio"
	"github.com/romanqed/cpio/autoscaler"
	"github.com/romanqed/cpio/executor"
	"github.com/romanqed/cpio/job"
	"github.com/romanqed/cpio/jobclient"
	"github.com/romanqed/cpio/metrics"
	"github.com/romanqed/cpio/retry"
)

// Helper is the job lifecycle helper. Construct with New, Start it
// before use, and Stop it during shutdown.
type Helper struct {
	cpio.LifecycleBase

	autoscaler autoscaler.Client
	jobs       *jobclient.Client
	exec       *executor.Executor
	dispatcher *retry.Dispatcher
	recorder   *metrics.Recorder
	log        *slog.Logger
	cfg        Config

	claims *claimsMap

	extenderStop chan struct{}
	extenderDone chan struct{}
}

// New builds a Helper. log defaults to slog.Default() if nil. Every
// operation the helper runs goes through a retry.Dispatcher built from
// cfg's backoff knobs, so transient queue/table failures are retried
// with backoff on the executor before the caller ever sees them.
func New(cfg Config, autoscalerClient autoscaler.Client, jobs *jobclient.Client, exec *executor.Executor, recorder *metrics.Recorder, log *slog.Logger) *Helper {
	if log == nil {
		log = slog.Default()
	}
	policy := retry.Exponential{
		Base:       cfg.DispatchRetryBase,
		Multiplier: cfg.DispatchRetryMultiplier,
		Max:        cfg.DispatchRetryMax,
		MaxRetries: cfg.DispatchMaxAttempts,
	}
	return &Helper{
		autoscaler: autoscalerClient,
		jobs:       jobs,
		exec:       exec,
		dispatcher: retry.New(exec, policy, executor.High),
		recorder:   recorder,
		log:        log,
		cfg:        cfg,
		claims:     newClaimsMap(),
	}
}

// Start launches the background extender. Returns cpio.ErrDoubleStarted
// if already running.
func (h *Helper) Start(ctx context.Context) error {
	if err := h.TryStart(); err != nil {
		return err
	}
	h.extenderStop = make(chan struct{})
	h.extenderDone = make(chan struct{})
	go h.runExtender(ctx)
	return nil
}

// Stop signals the extender to exit and waits up to timeout for it.
func (h *Helper) Stop(timeout time.Duration) error {
	return h.TryStop(timeout, func() cpio.DoneChan {
		close(h.extenderStop)
		return cpio.AfterAll(h.extenderDone)
	})
}

// PrepareNextJobRequest carries the caller's claim options.
// IsVisibilityExtendable controls whether the background extender keeps
// refreshing the claimed message's invisibility window; callers whose
// handler finishes well inside the queue's default window can leave it
// false and skip the extension traffic.
type PrepareNextJobRequest struct {
	IsVisibilityExtendable bool
}

// PrepareNextJob asynchronously claims the next visible job and resolves
// cctx with it. Transient claim/read failures are retried with backoff
// before cctx ever sees them; cctx only observes a final success, a
// state-level failure (empty queue, job-being-processed, the termination
// gate), a dispatch-retries-exhausted failure once the retry budget is
// spent, or a cancelled failure when ctx is cancelled before the next
// attempt. The submission itself may fail if the executor is stopped or its
// queue is full; that failure is returned directly rather than through
// cctx, since it means the operation never ran at all.
func (h *Helper) PrepareNextJob(ctx context.Context, cctx *cpio.Context[PrepareNextJobRequest, *job.Job]) error {
	req := cctx.Request()
	var claimed *job.Job
	op := func(ctx context.Context, attempt uint32) cpio.Result {
		result, j := h.doPrepareNextJob(ctx, req)
		claimed = j
		return result
	}
	return h.dispatcher.Run(ctx, op, func(result cpio.Result) {
		cctx.Resolve(result, claimed)
	})
}

func (h *Helper) doPrepareNextJob(ctx context.Context, req PrepareNextJobRequest) (cpio.Result, *job.Job) {
	scheduled, err := h.autoscaler.TryFinishInstanceTermination(ctx, h.cfg.CurrentInstanceResourceName, h.cfg.ScaleInHookName)
	if err != nil {
		return cpio.Retriable(cpio.CodeNone, err), nil
	}
	if scheduled {
		return cpio.Failure(cpio.CodeCurrentInstanceTerminating, nil), nil
	}

	j, receipt, err := h.jobs.GetNextJob(ctx)
	if errors.Is(err, jobclient.ErrJobNotFound) {
		// Empty queue is a normal outcome, not a transient fault: it
		// propagates to the caller instead of burning retry attempts.
		return cpio.Failure(cpio.CodeNone, err), nil
	}
	if err != nil {
		return cpio.Retriable(cpio.CodeNone, err), nil
	}

	if j.IsOrphan() {
		// Delete errors take priority over orphaned-job-found: the delete
		// call is what propagates here, not the orphan verdict, since an
		// undeleted ghost message will simply be re-claimed next time.
		if err := h.jobs.DeleteOrphanedJobMessage(ctx, j.ID, receipt); err != nil {
			return cpio.Retriable(cpio.CodeNone, err), nil
		}
		return cpio.Failure(cpio.CodeOrphanedJobFound, nil), nil
	}

	if j.Status == job.Processing {
		// ClaimNext is queue-side only, so Processing here is another
		// worker's earlier claim, not an artifact of our own.
		elapsed := time.Duration(0)
		if j.ProcessingStartedAt != nil {
			elapsed = time.Since(*j.ProcessingStartedAt)
		}
		if elapsed < h.cfg.JobProcessingTimeout {
			return cpio.Failure(cpio.CodeJobBeingProcessed, nil), nil
		}
		// Past the processing-timeout window: fall through and reclaim.
	}

	if j.Status == job.Success || j.Status == job.Failure {
		if err := h.jobs.DeleteOrphanedJobMessage(ctx, j.ID, receipt); err != nil {
			return cpio.Retriable(cpio.CodeNone, err), nil
		}
		return cpio.Failure(cpio.CodeJobAlreadyCompleted, nil), nil
	}

	if j.RetryCount >= h.cfg.RetryLimit {
		if _, err := h.jobs.UpdateJobStatus(ctx, j.ID, job.Failure, receipt, j.UpdatedAt); err != nil {
			return cpio.Retriable(cpio.CodeNone, err), nil
		}
		return cpio.Failure(cpio.CodeRetriesExhausted, nil), nil
	}

	if j.Status == job.Created {
		// All checks passed: take the row. The CAS on updated_at is the
		// only guard here; losing it means another worker claimed the job
		// between our read and this write. A reclaim (Processing past the
		// timeout) skips this and keeps the row's original
		// processing_started_at.
		newUpdatedTime, err := h.jobs.UpdateJobStatus(ctx, j.ID, job.Processing, receipt, j.UpdatedAt)
		if err != nil {
			if errors.Is(err, jobclient.ErrUpdationConflict) {
				return cpio.Failure(cpio.CodeJobBeingProcessed, err), nil
			}
			return cpio.Retriable(cpio.CodeNone, err), nil
		}
		j.Status = job.Processing
		j.UpdatedAt = newUpdatedTime
	}

	h.claims.upsert(j.ID, claim{receipt: receipt, isVisibilityExtendable: req.IsVisibilityExtendable})
	return cpio.Success(), j
}

// MarkJobCompletedRequest names the job and the terminal status to
// transition it to.
type MarkJobCompletedRequest struct {
	ID     string
	Status job.Status
}

// MarkJobCompleted asynchronously transitions id to a terminal status
// and resolves cctx, retrying transient read/update failures with
// backoff along the way.
func (h *Helper) MarkJobCompleted(ctx context.Context, cctx *cpio.Context[MarkJobCompletedRequest, struct{}]) error {
	req := cctx.Request()
	op := func(ctx context.Context, attempt uint32) cpio.Result {
		return h.doMarkJobCompleted(ctx, req)
	}
	return h.dispatcher.Run(ctx, op, func(result cpio.Result) {
		cctx.Resolve(result, struct{}{})
	})
}

func (h *Helper) doMarkJobCompleted(ctx context.Context, req MarkJobCompletedRequest) cpio.Result {
	if req.ID == "" {
		return cpio.Failure(cpio.CodeMissingJobID, nil)
	}
	if !req.Status.IsTerminal() {
		return cpio.Failure(cpio.CodeInvalidJobStatus, nil)
	}

	c, ok := h.claims.find(req.ID)
	if !ok {
		return cpio.Failure(cpio.CodeMissingReceiptInfo, nil)
	}

	row, err := h.jobs.GetJobById(ctx, req.ID)
	if err != nil {
		return cpio.Retriable(cpio.CodeNone, err)
	}

	newUpdatedTime, err := h.jobs.UpdateJobStatus(ctx, req.ID, req.Status, c.receipt, row.UpdatedAt)
	if err != nil {
		if errors.Is(err, jobclient.ErrUpdationConflict) {
			return cpio.Failure(cpio.CodeUpdationConflict, err)
		}
		return cpio.Retriable(cpio.CodeNone, err)
	}

	h.claims.erase(req.ID)
	h.recordCompletion(ctx, row, newUpdatedTime)
	return cpio.Success()
}

func (h *Helper) recordCompletion(ctx context.Context, row *job.Job, newUpdatedTime time.Time) {
	if h.recorder == nil || row.ProcessingStartedAt == nil {
		return
	}
	processingMs := float64(newUpdatedTime.Sub(*row.ProcessingStartedAt).Milliseconds())
	waitingMs := float64(row.ProcessingStartedAt.Sub(row.CreatedAt).Milliseconds())
	h.recorder.RecordCompletion(ctx, processingMs, waitingMs)
}

// ReleaseJobForRetryRequest names the job and how long to suppress
// redelivery before it becomes claimable again.
type ReleaseJobForRetryRequest struct {
	ID                    string
	DurationBeforeRelease time.Duration
}

// ReleaseJobForRetry asynchronously returns id to job.Created, pushes
// its redelivery out by the requested duration, and resolves cctx.
func (h *Helper) ReleaseJobForRetry(ctx context.Context, cctx *cpio.Context[ReleaseJobForRetryRequest, struct{}]) error {
	req := cctx.Request()
	op := func(ctx context.Context, attempt uint32) cpio.Result {
		return h.doReleaseJobForRetry(ctx, req)
	}
	return h.dispatcher.Run(ctx, op, func(result cpio.Result) {
		cctx.Resolve(result, struct{}{})
	})
}

func (h *Helper) doReleaseJobForRetry(ctx context.Context, req ReleaseJobForRetryRequest) cpio.Result {
	if req.ID == "" {
		return cpio.Failure(cpio.CodeMissingJobID, nil)
	}
	if req.DurationBeforeRelease < 0 || req.DurationBeforeRelease > 600*time.Second {
		return cpio.Failure(cpio.CodeInvalidDurationBeforeRelease, nil)
	}

	c, ok := h.claims.find(req.ID)
	if !ok {
		return cpio.Failure(cpio.CodeMissingReceiptInfo, nil)
	}

	row, err := h.jobs.GetJobById(ctx, req.ID)
	if err != nil {
		return cpio.Retriable(cpio.CodeNone, err)
	}
	if row.Status != job.Created && row.Status != job.Processing {
		h.claims.erase(req.ID)
		return cpio.Failure(cpio.CodeInvalidJobStatus, nil)
	}

	if _, err := h.jobs.UpdateJobStatus(ctx, req.ID, job.Created, c.receipt, row.UpdatedAt); err != nil {
		if errors.Is(err, jobclient.ErrUpdationConflict) {
			return cpio.Failure(cpio.CodeUpdationConflict, err)
		}
		return cpio.Retriable(cpio.CodeNone, err)
	}
	if err := h.jobs.UpdateJobVisibilityTimeout(ctx, req.ID, req.DurationBeforeRelease, c.receipt); err != nil {
		return cpio.Retriable(cpio.CodeNone, err)
	}

	h.claims.erase(req.ID)
	return cpio.Success()
}
