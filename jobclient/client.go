// Package jobclient defines the queue+table adapter the job lifecycle
// helper is built against: one half claims and releases queue messages,
// the other half reads and CAS-updates the authoritative database row.
//
// A concrete backend may wire both halves against the same storage (see
// storage/bunstore); the split lets tests substitute either half
// independently.
package jobclient

import (
	"context"
	"errors"
	"time"

	"github.com/romanqed/cpio/job"
)

// Receipt identifies a claimed queue message so that a subsequent
// extend/delete call targets the same delivery, not just the same job id.
// Its shape is backend-defined; jobclient treats it as opaque.
type Receipt = string

// ErrJobNotFound is returned by GetNextJob when the queue has no
// currently visible message, and by GetJobById when no row matches id.
var ErrJobNotFound = errors.New("jobclient: job not found")

// ErrUpdationConflict is returned by UpdateJobStatus when the row's
// updated_time no longer matches expectedUpdatedTime: another writer
// changed the row between the caller's read and this call.
var ErrUpdationConflict = errors.New("jobclient: updation conflict")

// ErrDurationTooLong is returned by UpdateJobVisibilityTimeout when the
// requested extension exceeds MaxVisibilityExtension.
var ErrDurationTooLong = errors.New("jobclient: visibility extension exceeds limit")

// MaxVisibilityExtension caps a single visibility extension, matching
// the longest invisibility window cloud queues accept per call.
const MaxVisibilityExtension = 600 * time.Second

// QueueBackend is the queue half of a Client: claiming, extending the
// visibility of, and deleting queue messages.
type QueueBackend interface {
	// ClaimNext claims the next visible queue message, making it
	// invisible for the backend's configured default visibility window,
	// and returns the claimed job's id alongside a Receipt identifying
	// this specific delivery. The claim is queue-side only: the job row's
	// status and timing are left untouched, so the caller can still
	// distinguish a fresh Created job from one another worker is
	// processing before issuing the status transition itself. Returns
	// ErrJobNotFound if nothing is currently visible.
	ClaimNext(ctx context.Context) (id string, receipt Receipt, err error)

	// ExtendVisibility extends the invisibility window of the message
	// identified by (id, receipt) by duration, which must be at most
	// 600 seconds.
	ExtendVisibility(ctx context.Context, id string, receipt Receipt, duration time.Duration) error

	// DeleteMessage removes the queue message identified by (id, receipt).
	// Used both for orphan cleanup and, implicitly, whenever a row is no
	// longer expected to be redelivered.
	DeleteMessage(ctx context.Context, id string, receipt Receipt) error
}

// TableBackend is the database half of a Client: reading and
// CAS-transitioning the authoritative job row.
type TableBackend interface {
	// GetByID reads the current row for id. Returns ErrJobNotFound if no
	// row exists, which combined with a claimed message with no row is
	// the orphan signature job.Job.IsOrphan reports.
	GetByID(ctx context.Context, id string) (*job.Job, error)

	// Insert creates a new row in job.Created status.
	Insert(ctx context.Context, j *job.Job) error

	// UpdateStatus transitions id to newStatus iff the row's UpdatedAt
	// still equals expectedUpdatedTime, and returns the row's new
	// UpdatedAt on success. Returns ErrUpdationConflict otherwise.
	UpdateStatus(ctx context.Context, id string, newStatus job.Status, expectedUpdatedTime time.Time) (time.Time, error)
}

// Client composes a QueueBackend and a TableBackend into the five named
// operations the lifecycle helper calls. It performs no orchestration of
// its own beyond delegating to the matching backend call; PrepareNextJob,
// MarkJobCompleted and ReleaseJobForRetry live in package lifecycle.
type Client struct {
	Queue QueueBackend
	Table TableBackend
}

// New builds a Client from a queue backend and a table backend. The two
// may be the same value, as storage/bunstore's Store is.
func New(queue QueueBackend, table TableBackend) *Client {
	return &Client{Queue: queue, Table: table}
}

// GetNextJob claims the next visible queue message and loads its
// corresponding database row. If the row does not exist, the returned
// job is the orphan signature: job.IsOrphan reports true on it.
func (c *Client) GetNextJob(ctx context.Context) (*job.Job, Receipt, error) {
	id, receipt, err := c.Queue.ClaimNext(ctx)
	if err != nil {
		return nil, "", err
	}
	j, err := c.Table.GetByID(ctx, id)
	if errors.Is(err, ErrJobNotFound) {
		return &job.Job{ID: id}, receipt, nil
	}
	if err != nil {
		return nil, "", err
	}
	return j, receipt, nil
}

// GetJobById performs a DB-only read of id, bypassing the queue.
func (c *Client) GetJobById(ctx context.Context, id string) (*job.Job, error) {
	return c.Table.GetByID(ctx, id)
}

// UpdateJobStatus CAS-transitions id to newStatus. receipt is accepted
// for interface symmetry with the queue-coupled operations but is not
// otherwise used by the table backend.
func (c *Client) UpdateJobStatus(ctx context.Context, id string, newStatus job.Status, _ Receipt, expectedUpdatedTime time.Time) (time.Time, error) {
	return c.Table.UpdateStatus(ctx, id, newStatus, expectedUpdatedTime)
}

// UpdateJobVisibilityTimeout extends the queue invisibility window of
// (id, receipt) by duration. Returns ErrDurationTooLong if duration
// exceeds MaxVisibilityExtension.
func (c *Client) UpdateJobVisibilityTimeout(ctx context.Context, id string, duration time.Duration, receipt Receipt) error {
	if duration > MaxVisibilityExtension {
		return ErrDurationTooLong
	}
	return c.Queue.ExtendVisibility(ctx, id, receipt, duration)
}

// DeleteOrphanedJobMessage removes a queue message whose DB row is
// missing or already terminal.
func (c *Client) DeleteOrphanedJobMessage(ctx context.Context, id string, receipt Receipt) error {
	return c.Queue.DeleteMessage(ctx, id, receipt)
}
