package bunstore

import (
	"time"

	"github.com/romanqed/cpio/job"
	"github.com/uptrace/bun"
)

// jobModel is the single-table representation backing both halves of
// jobclient.Client: locked_until and receipt_token carry the queue's
// visibility/delivery state, the rest is the record GetByID and
// UpdateStatus operate on.
type jobModel struct {
	bun.BaseModel `bun:"table:jobs"`

	ID           string `bun:"id,pk"`
	ServerSideID string `bun:"server_side_id,notnull,default:''"`

	Status     job.Status `bun:"status,notnull,default:0"`
	// No explicit column type: bun picks BLOB on sqlite and BYTEA on
	// postgres, the two dialects this store targets.
	Body       []byte     `bun:"body"`
	RetryCount uint32     `bun:"retry_count,notnull,default:0"`

	CreatedAt           time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	ProcessingStartedAt *time.Time `bun:"processing_started_at,nullzero,default:null"`
	UpdatedAt           time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`

	LockedUntil  *time.Time `bun:"locked_until,nullzero,default:null"`
	ReceiptToken string     `bun:"receipt_token,notnull,default:''"`
}

func (m *jobModel) toJob() *job.Job {
	return &job.Job{
		ID:                  m.ID,
		ServerSideID:        m.ServerSideID,
		Status:              m.Status,
		Body:                m.Body,
		CreatedAt:           m.CreatedAt,
		ProcessingStartedAt: m.ProcessingStartedAt,
		UpdatedAt:           m.UpdatedAt,
		RetryCount:          m.RetryCount,
	}
}

func fromJob(j *job.Job) *jobModel {
	return &jobModel{
		ID:                  j.ID,
		ServerSideID:        j.ServerSideID,
		Status:              j.Status,
		Body:                j.Body,
		RetryCount:          j.RetryCount,
		CreatedAt:           j.CreatedAt,
		ProcessingStartedAt: j.ProcessingStartedAt,
		UpdatedAt:           j.UpdatedAt,
	}
}
