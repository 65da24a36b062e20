package tx

import (
	"context"
	"database/sql"
	"time"

	dErrors "assurly/pkg/domain-errors"
)

// defaultTimeout bounds a unit of work when the caller supplied no deadline.
const defaultTimeout = 5 * time.Second

// Runner executes a function inside one transactional unit of work. Every
// public engine operation runs through a Runner so a timeout or error rolls
// back all writes together (no contract without its payment schedule).
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SQLRunner backs units of work with database transactions. The transaction
// is placed in context; stores pick it up via From.
type SQLRunner struct {
	DB      *sql.DB
	Timeout time.Duration
}

func NewSQLRunner(db *sql.DB, timeout time.Duration) *SQLRunner {
	return &SQLRunner{DB: db, Timeout: timeout}
}

func (r *SQLRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel, err := applyTimeout(ctx, r.Timeout)
	if err != nil {
		return err
	}
	defer cancel()

	dbtx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "begin transaction")
	}
	defer func() {
		_ = dbtx.Rollback()
	}()

	if err := fn(WithTx(ctx, dbtx)); err != nil {
		return err
	}
	if err := dbtx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "commit transaction")
	}
	return nil
}

// MemoryRunner serializes units of work behind a channel-free mutex-less
// timeout boundary. In-memory stores do their own locking per entity; the
// runner only contributes cancellation semantics so service code is
// identical across backends.
type MemoryRunner struct {
	Timeout time.Duration
}

func NewMemoryRunner(timeout time.Duration) *MemoryRunner {
	return &MemoryRunner{Timeout: timeout}
}

func (r *MemoryRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel, err := applyTimeout(ctx, r.Timeout)
	if err != nil {
		return err
	}
	defer cancel()
	return fn(ctx)
}

func applyTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if timeout == 0 {
		timeout = defaultTimeout
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, cancel, nil
}
