package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrTxConflict is returned when a transaction kept failing with a
// serialization conflict after all retries were spent. Callers may retry
// the whole operation; nothing was applied.
var ErrTxConflict = errors.New("transaction conflict")

// Querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
// Repositories are written against it so the same code runs standalone
// or inside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxRunner runs a function inside a single database transaction.
// Services depend on this interface so tests can substitute an in-memory
// runner.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(pgx.Tx) error) error
}

// WithTx executes a function within a transaction using the RepeatableRead
// isolation level. Row locks taken inside fn are held until commit.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// PoolRunner is the production TxRunner. Transactions that fail with a
// serialization conflict or deadlock are retried up to MaxRetries times;
// after that the operation surfaces ErrTxConflict so the caller sees a
// transient failure instead of a partial apply.
type PoolRunner struct {
	Pool       *pgxpool.Pool
	MaxRetries int
}

func (r PoolRunner) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	retries := r.MaxRetries
	if retries <= 0 {
		retries = 2
	}

	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		err = WithTx(ctx, r.Pool, fn)
		if err == nil || !IsTransient(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w: %v", ErrTxConflict, err)
}

// IsTransient reports whether the error is a serialization failure or
// deadlock that is safe to retry from a clean transaction.
func IsTransient(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// 40001 serialization_failure, 40P01 deadlock_detected
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// IsUniqueViolation reports whether the error is a unique constraint
// violation, optionally scoped to a named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
