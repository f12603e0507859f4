package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/romanqed/cpio"
	"github.com/romanqed/cpio/job"
)

// These wrappers submit the async form and block the caller on a channel
// fed by the context's Then callback. They must never be called from an
// executor worker goroutine: the goroutine that would eventually run
// the submitted task is the same one blocked here, which deadlocks.

// PrepareNextJobSync blocks until PrepareNextJob's async form resolves.
func (h *Helper) PrepareNextJobSync(ctx context.Context, req PrepareNextJobRequest) (*job.Job, error) {
	cctx := cpio.NewContext[PrepareNextJobRequest, *job.Job](req, uuid.Nil, nil)
	done := make(chan struct{})
	cctx.Then(func(rc *cpio.Context[PrepareNextJobRequest, *job.Job]) {
		close(done)
	})
	if err := h.PrepareNextJob(ctx, cctx); err != nil {
		return nil, err
	}
	<-done
	if res := cctx.Result(); !res.IsSuccess() {
		return nil, res.Err()
	}
	return cctx.Response(), nil
}

// MarkJobCompletedSync blocks until MarkJobCompleted's async form
// resolves.
func (h *Helper) MarkJobCompletedSync(ctx context.Context, id string, status job.Status) error {
	cctx := cpio.NewContext[MarkJobCompletedRequest, struct{}](MarkJobCompletedRequest{ID: id, Status: status}, uuid.Nil, nil)
	done := make(chan struct{})
	cctx.Then(func(rc *cpio.Context[MarkJobCompletedRequest, struct{}]) {
		close(done)
	})
	if err := h.MarkJobCompleted(ctx, cctx); err != nil {
		return err
	}
	<-done
	return cctx.Result().Err()
}

// ReleaseJobForRetrySync blocks until ReleaseJobForRetry's async form
// resolves.
func (h *Helper) ReleaseJobForRetrySync(ctx context.Context, id string, durationBeforeRelease time.Duration) error {
	cctx := cpio.NewContext[ReleaseJobForRetryRequest, struct{}](ReleaseJobForRetryRequest{ID: id, DurationBeforeRelease: durationBeforeRelease}, uuid.Nil, nil)
	done := make(chan struct{})
	cctx.Then(func(rc *cpio.Context[ReleaseJobForRetryRequest, struct{}]) {
		close(done)
	})
	if err := h.ReleaseJobForRetry(ctx, cctx); err != nil {
		return err
	}
	<-done
	return cctx.Result().Err()
}
