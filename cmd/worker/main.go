// Command worker runs the job-processing loop: claim the next job,
// process it, report the terminal status, repeat; exit cleanly once the
// autoscaler schedules this instance for termination. It has no
// subcommands. Construction goes bottom-up: storage, the collaborators
// layered on it, then the lifecycle helper.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.opentelemetry.io/otel"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"oss.nandlabs.io/golly/config"

	"github.com/romanqed/cpio"
	"github.com/romanqed/cpio/autoscaler"
	"github.com/romanqed/cpio/executor"
	"github.com/romanqed/cpio/job"
	"github.com/romanqed/cpio/jobclient"
	"github.com/romanqed/cpio/lifecycle"
	"github.com/romanqed/cpio/metrics"
	"github.com/romanqed/cpio/storage/bunstore"
)

const prepareRetryDelay = 10 * time.Second

func main() {
	log := slog.Default()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log); err != nil {
		log.Error("worker exited with error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	if err := bunstore.InitDB(ctx, db); err != nil {
		return err
	}

	execCfg := executor.ConfigFromEnv()
	exec := executor.New(execCfg, log)
	if err := exec.Start(ctx); err != nil {
		return err
	}

	lcCfg := lifecycle.ConfigFromEnv()
	meter := otel.Meter("cpio/worker")
	recorder, err := metrics.New(meter, lcCfg.MetricNamespace, lcCfg.EnableMetricsRecording)
	if err != nil {
		return err
	}

	visibility, err := config.GetEnvAsInt("CPIO_DEFAULT_VISIBILITY_SECONDS", 60)
	if err != nil {
		visibility = 60
	}
	store := bunstore.New(db, time.Duration(visibility)*time.Second)
	client := jobclient.New(store, store)

	scaler := autoscaler.Client(autoscaler.StaticClient{})

	helper := lifecycle.New(lcCfg, scaler, client, exec, recorder, log)
	if err := helper.Start(ctx); err != nil {
		return err
	}

	loop(ctx, helper, log)

	return shutdown(helper, exec, log)
}

// loop runs prepare, process, complete until the context is cancelled or
// the instance is scheduled for termination; any other preparation
// failure (including an empty queue) sleeps and retries.
func loop(ctx context.Context, helper *lifecycle.Helper, log *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		j, err := helper.PrepareNextJobSync(ctx, lifecycle.PrepareNextJobRequest{IsVisibilityExtendable: true})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			if isTerminating(err) {
				log.Info("worker: instance terminating, exiting")
				return
			}
			log.Warn("worker: preparation failed, retrying", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(prepareRetryDelay):
			}
			continue
		}

		status := process(ctx, j, log)
		if err := helper.MarkJobCompletedSync(ctx, j.ID, status); err != nil {
			log.Error("worker: failed to mark job completed", "job_id", j.ID, "err", err)
		}
	}
}

// process runs the caller-supplied job body. A real deployment replaces
// this with domain logic; the worker loop itself only needs a terminal
// status back.
func process(ctx context.Context, j *job.Job, log *slog.Logger) job.Status {
	log.Info("worker: processing job", "job_id", j.ID, "retry_count", j.RetryCount)
	return job.Success
}

// isTerminating reports whether err is PrepareNextJobSync's wrapping of
// cpio.CodeCurrentInstanceTerminating. Result.Err formats a failure as
// "<code>" or "<code>: <wrapped err>", so a prefix check is sufficient
// without threading the *cpio.Context through the sync wrapper.
func isTerminating(err error) bool {
	if err == nil {
		return false
	}
	return strings.HasPrefix(err.Error(), string(cpio.CodeCurrentInstanceTerminating))
}

func shutdown(helper *lifecycle.Helper, exec *executor.Executor, log *slog.Logger) error {
	var failed bool
	if err := helper.Stop(5 * time.Second); err != nil {
		log.Error("worker: lifecycle helper stop failed", "err", err, "state", helper.State(), "uptime", helper.Uptime())
		failed = true
	}
	if err := exec.Stop(5*time.Second, false); err != nil {
		log.Error("worker: executor stop failed", "err", err, "state", exec.State(), "uptime", exec.Uptime())
		failed = true
	}
	if failed {
		return errors.New("worker: shutdown failed")
	}
	return nil
}

func openDB() (*bun.DB, error) {
	driver := config.GetEnvAsString("CPIO_DB_DRIVER", "sqlite")
	dsn := config.GetEnvAsString("CPIO_DB_DSN", "file::memory:?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")

	switch driver {
	case "postgres":
		sqlDB, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, err
		}
		return bun.NewDB(sqlDB, pgdialect.New()), nil
	default:
		sqlDB, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		return bun.NewDB(sqlDB, sqlitedialect.New()), nil
	}
}
