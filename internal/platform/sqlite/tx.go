package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"agenthub/pkg/retry"
)

type txKey struct{}

// Querier is the query surface shared by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
)

// busyPolicy: 10ms, 20ms before the third and last attempt.
var busyPolicy = retry.Policy{MaxRetries: 2, BaseDelay: 10 * time.Millisecond, MaxJitter: 5 * time.Millisecond, Multiplier: 2}

// TxRunner runs work in a transaction, retrying the whole transaction while
// SQLite reports the database as locked.
type TxRunner struct {
	db     *sql.DB
	caller *retry.Caller
}

// NewTxRunner creates a TxRunner.
func NewTxRunner(db *sql.DB) *TxRunner {
	caller, err := retry.New(busyPolicy, retry.WithClassifier(classifyBusy), retry.WithLogger(slog.New(slog.DiscardHandler)))
	if err != nil {
		panic(err) // busyPolicy is valid
	}
	return &TxRunner{db: db, caller: caller}
}

// WithinTx commits when fn returns nil and rolls back otherwise. Nested
// calls join the outer transaction.
func (r *TxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := SqlTx(ctx); ok {
		return fn(ctx)
	}
	err := r.caller.Do(ctx, func(ctx context.Context) error {
		return r.execute(ctx, fn)
	}, nil)
	var exhausted *retry.RetriesExhaustedError
	if errors.As(err, &exhausted) {
		return exhausted.LastError
	}
	return err
}

func (r *TxRunner) execute(ctx context.Context, fn func(context.Context) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// SqlTx returns the transaction in ctx, if any.
func SqlTx(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok
}

// Querier returns the transaction in ctx or the database.
func (r *TxRunner) Querier(ctx context.Context) Querier {
	if tx, ok := SqlTx(ctx); ok {
		return tx
	}
	return r.db
}

func classifyBusy(err error) retry.Outcome {
	switch {
	case err == nil:
		return retry.OutcomeSuccess
	case IsBusy(err):
		return retry.OutcomeRetryable
	default:
		return retry.OutcomeFatal
	}
}

// IsBusy reports whether err is an SQLite lock error.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "database is locked") ||
		strings.Contains(s, "SQLITE_BUSY") ||
		strings.Contains(s, "database table is locked")
}
