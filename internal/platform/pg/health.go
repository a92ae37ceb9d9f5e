package pg

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"agenthub/pkg/retry"
)

// WaitOptions bound WaitForDB.
type WaitOptions struct {
	// Attempts is the total number of pings, at least one.
	Attempts int
	// Interval is the wait after the first failed ping; it doubles after
	// each further failure.
	Interval    time.Duration
	PingTimeout time.Duration
	Log         *slog.Logger
}

// DefaultWaitOptions gives a database started next to the app about a
// minute and a half.
func DefaultWaitOptions() WaitOptions {
	return WaitOptions{Attempts: 7, Interval: time.Second, PingTimeout: 5 * time.Second}
}

// WaitForDB pings dsn until it answers, the attempts run out or ctx ends.
func WaitForDB(ctx context.Context, dsn string, opts WaitOptions) error {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	caller, err := retry.New(
		retry.Policy{MaxRetries: opts.Attempts - 1, BaseDelay: opts.Interval, Multiplier: 2},
		retry.WithClassifier(retryAll),
		retry.WithLogger(opts.Log),
	)
	if err != nil {
		return err
	}
	return caller.Do(ctx, func(ctx context.Context) error {
		return ping(ctx, dsn, opts.PingTimeout)
	}, nil)
}

// retryAll treats every ping failure as transient.
func retryAll(err error) retry.Outcome {
	if err == nil {
		return retry.OutcomeSuccess
	}
	return retry.OutcomeRetryable
}

// HealthCheckPool runs SELECT 1 on pool.
func HealthCheckPool(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return errors.New("pool is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var one int
	if err := pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return err
	}
	return nil
}

func ping(ctx context.Context, dsn string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return err
	}
	defer pool.Close()
	return pool.Ping(ctx)
}
