package bunstore

import (
	"context"
	"errors"

	"github.com/uptrace/bun"
)

func createTable(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateTable().
		Model((*jobModel)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

func createClaimIndex(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateIndex().
		Model((*jobModel)(nil)).
		Index("idx_jobs_status_locked").
		Column("status", "locked_until").
		IfNotExists().
		Exec(ctx)
	return err
}

func createUpdatedIndex(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateIndex().
		Model((*jobModel)(nil)).
		Index("idx_jobs_status_updated").
		Column("status", "updated_at").
		IfNotExists().
		Exec(ctx)
	return err
}

func initDB(ctx context.Context, db *bun.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := createTable(ctx, tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	if err := createClaimIndex(ctx, tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	if err := createUpdatedIndex(ctx, tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	return tx.Commit()
}

// InitDB creates the jobs table and its indexes inside a single
// transaction if they do not already exist. InitDB is idempotent and
// performs no destructive migration; schema evolution beyond additive
// index/table creation must be handled externally.
func InitDB(ctx context.Context, db *bun.DB) error {
	return initDB(ctx, db)
}

// MustInitDB behaves like InitDB but panics on failure. Intended for
// application bootstrap where a broken schema is unrecoverable.
func MustInitDB(ctx context.Context, db *bun.DB) {
	if err := initDB(ctx, db); err != nil {
		panic(err)
	}
}
