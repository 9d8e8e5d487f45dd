package tx

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dErrors "agora/pkg/domain-errors"
)

// PostgresRunner opens a transaction per unit of work and serializes work on
// the same key with a transaction-scoped advisory lock. Stores pick the
// transaction up from ctx via Use.
type PostgresRunner struct {
	db      *sql.DB
	timeout time.Duration
}

// NewPostgresRunner constructs a Runner backed by db.
func NewPostgresRunner(db *sql.DB, timeout time.Duration) *PostgresRunner {
	return &PostgresRunner{db: db, timeout: timeout}
}

func (r *PostgresRunner) RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	// Advisory locks are re-entrant per session, so nesting under an outer
	// transaction only needs to take the key.
	if outer, ok := From(ctx); ok {
		if err := lockKey(ctx, outer, key); err != nil {
			return err
		}
		return fn(ctx)
	}

	ctx, cancel := withDefaultTimeout(ctx, r.timeout)
	defer cancel()

	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := lockKey(ctx, sqlTx, key); err != nil {
		return err
	}
	if err := fn(WithTx(ctx, sqlTx)); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func lockKey(ctx context.Context, sqlTx *sql.Tx, key string) error {
	if _, err := sqlTx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return fmt.Errorf("acquire entity lock: %w", err)
	}
	return nil
}
