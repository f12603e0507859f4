package job

import "time"

// Job represents a unit of work managed by the CPIO job lifecycle, per
// the data model's Job tuple: (id, server-side-id, status, body,
// created-time, processing-started-time, updated-time, retry-count).
//
// ID identifies the job to the database/table backend. ServerSideID is the
// opaque identifier (if any) a cloud queue assigns the underlying message,
// distinct from ID since a queue and a table may key their records
// differently.
//
// CreatedAt records when the job was first enqueued. UpdatedAt records the
// last state transition; it is also the CAS comparand for UpdateJobStatus.
// ProcessingStartedAt is set whenever Status is Processing, per the
// invariant in the data model; storage/bunstore leaves it in place when
// the job later moves out of Processing.
//
// RetryCount is the retry counter stored with the row; it is compared
// against retry_limit to decide whether a claim forces a terminal
// failure. No operation in this module increments it.
//
// Job values are snapshots of authoritative storage state. Mutating fields
// directly does not change the underlying store; transitions must be
// performed through a jobclient.Client.
type Job struct {
	ID           string
	ServerSideID string

	Status Status
	Body   []byte

	CreatedAt           time.Time
	ProcessingStartedAt *time.Time
	UpdatedAt           time.Time

	RetryCount uint32
}

// IsOrphan reports whether j is the signature of an orphaned queue
// message: an unknown-status job with a zero-value created-at timestamp,
// i.e. a queue message with no corresponding database row.
func (j *Job) IsOrphan() bool {
	return j.Status == Unknown && j.CreatedAt.IsZero()
}
