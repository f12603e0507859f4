package lifecycle

import (
	"context"
	"time"

	"github.com/romanqed/cpio/job"
)

// runExtender is the single dedicated extender goroutine: every
// ExtenderSleepTime, it walks a snapshot of the claimed-jobs map and
// extends the visibility of every entry still eligible, keeping claimed
// jobs invisible to other workers while their handler runs.
func (h *Helper) runExtender(ctx context.Context) {
	defer close(h.extenderDone)
	ticker := time.NewTicker(h.cfg.ExtenderSleepTime)
	defer ticker.Stop()
	for {
		select {
		case <-h.extenderStop:
			return
		case <-ticker.C:
			h.extendClaims(ctx)
		}
	}
}

func (h *Helper) extendClaims(ctx context.Context) {
	for _, id := range h.claims.keys() {
		c, ok := h.claims.find(id)
		if !ok {
			continue
		}
		if !c.isVisibilityExtendable {
			continue
		}
		if c.receipt == "" {
			h.claims.erase(id)
			continue
		}
		row, err := h.jobs.GetJobById(ctx, id)
		if err != nil {
			h.log.Warn("lifecycle: extender failed to read job, leaving claim as-is", "job_id", id, "err", err)
			continue
		}
		if row.ProcessingStartedAt != nil && time.Since(*row.ProcessingStartedAt) >= h.cfg.JobProcessingTimeout {
			h.claims.erase(id)
			continue
		}
		if row.Status != job.Processing {
			continue
		}
		if err := h.jobs.UpdateJobVisibilityTimeout(ctx, id, h.cfg.VisibilityTimeoutExtendTime, c.receipt); err != nil {
			h.log.Warn("lifecycle: extender failed to extend visibility, queue redelivery will recover", "job_id", id, "err", err)
		}
	}
}
