// Package database implements the Conversation Database (spec §4.7): a
// local SQLite store indexing saved conversations for listing, full-text
// search, and reload, separate from the `.bskc` archive files themselves.
package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/sigmanight/basiliskllm/pkg/errs"
	"github.com/sigmanight/basiliskllm/pkg/logger"
)

// writeJob is one unit of serialised write work (spec §4.7: "all writes
// serialised through a single background executor"). It carries its own
// result channel so Save/Delete/UpdateTitle callers can block for the
// outcome without the writer goroutine needing to know about callers.
type writeJob struct {
	run  func(ctx context.Context, tx *sql.Tx) error
	done chan error
}

// DB is the Conversation Database handle. Reads run directly against the
// pooled *sql.DB connection (SQLite serialises them internally); writes
// are funnelled through a single goroutine draining writeQueue, the same
// buffered-channel-owned-by-one-goroutine shape used by the Completion
// Orchestrator's Scheduler, repointed here from UI dispatch onto database
// transactions.
type DB struct {
	sql        *sql.DB
	writeQueue chan writeJob
	stop       chan struct{}
	stopped    chan struct{}
}

// Open creates or opens a SQLite database file at path, applies schema if
// missing, and starts the write-serialising goroutine.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errs.New(errs.KindStorage, fmt.Errorf("opening database %q: %w", path, err))
	}
	sqlDB.SetMaxOpenConns(8)

	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, errs.New(errs.KindStorage, fmt.Errorf("applying schema: %w", err))
	}

	db := &DB{
		sql:        sqlDB,
		writeQueue: make(chan writeJob, 64),
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	go db.runWriter()
	return db, nil
}

func (db *DB) runWriter() {
	defer close(db.stopped)
	for {
		select {
		case job := <-db.writeQueue:
			job.done <- db.runInTransaction(job.run)
		case <-db.stop:
			// Drain any writes already queued before shutting down.
			for {
				select {
				case job := <-db.writeQueue:
					job.done <- db.runInTransaction(job.run)
				default:
					return
				}
			}
		}
	}
}

func (db *DB) runInTransaction(run func(ctx context.Context, tx *sql.Tx) error) error {
	ctx := context.Background()
	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return errs.New(errs.KindStorage, err)
	}
	if err := run(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.WarnCF("database", "rollback failed after write error", map[string]any{"error": rbErr.Error()})
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return errs.New(errs.KindStorage, fmt.Errorf("committing transaction: %w", err))
	}
	return nil
}

// write enqueues run on the writer goroutine and blocks for its result.
func (db *DB) write(ctx context.Context, run func(ctx context.Context, tx *sql.Tx) error) error {
	job := writeJob{run: run, done: make(chan error, 1)}
	select {
	case db.writeQueue <- job:
	case <-ctx.Done():
		return ctx.Err()
	case <-db.stop:
		return errs.Newf(errs.KindStorage, "database is closed")
	}
	select {
	case err := <-job.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the writer goroutine, letting already-queued writes drain
// first, and closes the underlying connection pool.
func (db *DB) Close() error {
	close(db.stop)
	<-db.stopped
	return db.sql.Close()
}
