package storage

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// RetryPolicy bounds how often a transaction is re-run after a transient
// conflict. Delays double per attempt, with up to 100% jitter.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetry is used for serializable transactions.
var DefaultRetry = RetryPolicy{MaxRetries: 3, BaseDelay: 20 * time.Millisecond}

// isRetriable reports serialization_failure and deadlock_detected.
func isRetriable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// Do runs fn until it succeeds, fails with a non-retriable error, the
// retries are spent, or ctx ends.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	delay := p.BaseDelay
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !isRetriable(err) || attempt >= p.MaxRetries {
			return err
		}
		wait := delay
		if delay > 0 {
			wait += time.Duration(rand.Int64N(int64(delay))) //nolint:gosec // jitter doesn't need crypto-strength randomness
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		delay *= 2
	}
}

// serializableTx runs fn inside a SERIALIZABLE transaction, re-running the
// whole transaction under DefaultRetry on conflicts.
func (db *DB) serializableTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return DefaultRetry.Do(ctx, func() error {
		tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return fmt.Errorf("storage: begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
}
