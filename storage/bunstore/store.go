// Package bunstore implements jobclient.QueueBackend and
// jobclient.TableBackend against a single bun.DB-backed table: one row
// serves as both queue message and database record, locked_until
// carrying visibility and updated_at carrying the optimistic-concurrency
// comparand for status transitions.
//
// Store is compatible with any bun dialect; sqlitedialect (modernc.org/
// sqlite) is used in tests, pgdialect (jackc/pgx/v5/stdlib) in production.
package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/romanqed/cpio/job"
	"github.com/romanqed/cpio/jobclient"
)

// Store implements jobclient.QueueBackend and jobclient.TableBackend over
// a single *bun.DB. DefaultVisibility is the invisibility window ClaimNext
// applies to a freshly claimed message.
type Store struct {
	db                *bun.DB
	defaultVisibility time.Duration
}

// New builds a Store. defaultVisibility is the window ClaimNext grants a
// freshly claimed message before it becomes eligible for reclaim.
func New(db *bun.DB, defaultVisibility time.Duration) *Store {
	return &Store{db: db, defaultVisibility: defaultVisibility}
}

var _ jobclient.QueueBackend = (*Store)(nil)
var _ jobclient.TableBackend = (*Store)(nil)

// ClaimNext claims the oldest visible message: one whose locked_until is
// unset or elapsed. The claim is queue-side only — it takes the
// visibility lock and stamps a fresh receipt token, via a single
// UPDATE ... RETURNING to avoid a race between selection and claim, but
// leaves the job record itself (status, timing, updated_at) untouched.
// The status transition belongs to UpdateStatus, so a claim cannot
// disguise a row another worker is still processing as freshly claimed.
func (s *Store) ClaimNext(ctx context.Context) (string, jobclient.Receipt, error) {
	now := time.Now()
	receipt := uuid.NewString()
	lockedUntil := now.Add(s.defaultVisibility)
	subQuery := s.db.NewSelect().
		Model((*jobModel)(nil)).
		Column("id").
		WhereGroup("AND", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("locked_until IS NULL").
				WhereOr("locked_until < ?", now)
		}).
		Order("created_at ASC").
		Limit(1)
	var rows []jobModel
	err := s.db.NewUpdate().
		Model((*jobModel)(nil)).
		Set("locked_until = ?", lockedUntil).
		Set("receipt_token = ?", receipt).
		Where("id IN (?)", subQuery).
		Returning("*").
		Scan(ctx, &rows)
	if err != nil {
		return "", "", err
	}
	if len(rows) == 0 {
		return "", "", jobclient.ErrJobNotFound
	}
	return rows[0].ID, receipt, nil
}

// ExtendVisibility pushes locked_until out by duration for the row
// matching both id and the receipt issued at claim time, so a stale
// caller whose lease already expired and was reclaimed by another
// worker cannot extend the new owner's lease.
func (s *Store) ExtendVisibility(ctx context.Context, id string, receipt jobclient.Receipt, duration time.Duration) error {
	now := time.Now()
	res, err := s.db.NewUpdate().
		Model((*jobModel)(nil)).
		Set("locked_until = ?", now.Add(duration)).
		Where("id = ?", id).
		Where("receipt_token = ?", receipt).
		Exec(ctx)
	if err != nil {
		return err
	}
	if !isAffected(res) {
		return jobclient.ErrJobNotFound
	}
	return nil
}

// DeleteMessage removes the row identified by (id, receipt) outright.
// Used for orphan cleanup; a real two-system deployment would instead
// delete only the queue message, but in this single-table model the row
// is the message.
func (s *Store) DeleteMessage(ctx context.Context, id string, receipt jobclient.Receipt) error {
	_, err := s.db.NewDelete().
		Model((*jobModel)(nil)).
		Where("id = ?", id).
		Where("receipt_token = ?", receipt).
		Exec(ctx)
	return err
}

// GetByID reads the current row for id.
func (s *Store) GetByID(ctx context.Context, id string) (*job.Job, error) {
	var m jobModel
	err := s.db.NewSelect().
		Model(&m).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, jobclient.ErrJobNotFound
		}
		return nil, err
	}
	return m.toJob(), nil
}

// Insert creates a new row in job.Created status. j.CreatedAt and
// j.UpdatedAt are stamped with the current time if unset.
func (s *Store) Insert(ctx context.Context, j *job.Job) error {
	now := time.Now()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	if j.UpdatedAt.IsZero() {
		j.UpdatedAt = now
	}
	j.Status = job.Created
	_, err := s.db.NewInsert().
		Model(fromJob(j)).
		Exec(ctx)
	return err
}

// UpdateStatus CAS-transitions id to newStatus iff its current
// updated_at equals expectedUpdatedTime, returning the freshly stamped
// updated_at on success or jobclient.ErrUpdationConflict otherwise. A
// transition into Processing also stamps processing_started_at, keeping
// the invariant that a Processing row always carries one.
func (s *Store) UpdateStatus(ctx context.Context, id string, newStatus job.Status, expectedUpdatedTime time.Time) (time.Time, error) {
	// Both target dialects store timestamps at microsecond precision;
	// truncating first makes the returned value equal the stored one.
	now := time.Now().Truncate(time.Microsecond)
	q := s.db.NewUpdate().
		Model((*jobModel)(nil)).
		Set("status = ?", newStatus).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("updated_at = ?", expectedUpdatedTime)
	if newStatus == job.Processing {
		q = q.Set("processing_started_at = ?", now)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if !isAffected(res) {
		return time.Time{}, jobclient.ErrUpdationConflict
	}
	return now, nil
}
