package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/iliyamo/hit-counter/internal/database"
)

const selectCount = `SELECT cnt FROM hits WHERE id = 1`

// CounterRepo owns the `hits` table.  All statements run on the caller's
// connection; the repo never opens or closes connections itself.
type CounterRepo struct {
	log *zap.Logger
	// ready is set once Ensure has succeeded in this process, after which
	// the DDL round trips are skipped.
	ready atomic.Bool
}

func NewCounterRepo(log *zap.Logger) *CounterRepo {
	if log == nil {
		log = zap.NewNop()
	}
	return &CounterRepo{log: log.Named("counter")}
}

// Ensure creates the counter table and its single row if they are missing.
// Both statements are idempotent, so any number of concurrent first-time
// callers end up with exactly one row holding 0.
func (r *CounterRepo) Ensure(ctx context.Context, conn *database.Connection) error {
	if r.ready.Load() {
		return nil
	}
	if _, err := conn.ExecContext(ctx, conn.Dialect.CreateCounterTable()); err != nil {
		return fmt.Errorf("%w: create table: %w", ErrSchemaCreateFailed, err)
	}
	if _, err := conn.ExecContext(ctx, conn.Dialect.SeedCounter()); err != nil {
		return fmt.Errorf("%w: seed row: %w", ErrSchemaCreateFailed, err)
	}
	r.ready.Store(true)
	return nil
}

// Increment adds one to the counter and returns the value this call
// produced.  The upsert and the read share a transaction, so the returned
// value is the one written here even under concurrent increments.
func (r *CounterRepo) Increment(ctx context.Context, conn *database.Connection) (int64, error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %w", ErrUpdateFailed, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, conn.Dialect.IncrementCounter()); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}
	var n int64
	if err := tx.QueryRowContext(ctx, selectCount).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: read back: %w", ErrUpdateFailed, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %w", ErrUpdateFailed, err)
	}
	return n, nil
}

// EnsureAndIncrement makes sure the counter exists and increments it.
//
// A failed Ensure does not end the request on its own: the table may well
// exist already (created by another process, or by an operator while this
// user lacks CREATE). The increment is attempted anyway and only when it
// fails too is the original create error reported.
func (r *CounterRepo) EnsureAndIncrement(ctx context.Context, conn *database.Connection) (int64, error) {
	ensureErr := r.Ensure(ctx, conn)
	n, err := r.Increment(ctx, conn)
	switch {
	case err == nil:
		if ensureErr != nil {
			r.log.Warn("counter ensure failed, increment succeeded on existing table", zap.Error(ensureErr))
		}
		return n, nil
	case ensureErr != nil:
		return 0, fmt.Errorf("%w (increment: %v)", ensureErr, err)
	default:
		return 0, err
	}
}

// Read returns the current counter value without changing it.  A counter
// that was never created reads as ErrReadFailed wrapping sql.ErrNoRows or
// the driver's missing-table error.
func (r *CounterRepo) Read(ctx context.Context, conn *database.Connection) (int64, error) {
	var n int64
	err := conn.QueryRowContext(ctx, selectCount).Scan(&n)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: counter row missing: %w", ErrReadFailed, err)
		}
		return 0, fmt.Errorf("%w: %w", ErrReadFailed, err)
	}
	return n, nil
}
