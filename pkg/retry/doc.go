// Package retry wraps remote calls with bounded exponential backoff and jitter.
//
// Only rate-limit failures are retried. Everything else is returned to the
// caller unchanged on the first attempt.
//
// Key Features:
//   - Generic Call for operations returning a value, Do for error-only operations
//   - Rate-limit classification (transport-tagged errors first, message tokens second)
//   - OnRetry callback reporting the computed delay ("retrying in N seconds")
//   - Distinct RetriesExhaustedError with attempt history; the last failure is
//     kept in LastError and is not part of the error chain
//   - Observer hooks for metrics and a time abstraction for tests
//
// Basic Usage:
//
//	caller, err := retry.New(retry.DefaultPolicy())
//	if err != nil {
//	    return err
//	}
//	msg, err := retry.Call(ctx, caller, func(ctx context.Context) (*schema.Message, error) {
//	    return agent.Generate(ctx, input)
//	}, func(attempt int, err error, delay time.Duration) {
//	    notify(fmt.Sprintf("Rate limit exceeded. Retrying in %.2f seconds...", delay.Seconds()))
//	})
//
// Policy:
//
//	policy := retry.Policy{
//	    MaxRetries: 3,               // retries after the initial attempt
//	    BaseDelay:  time.Second,     // delay = BaseDelay * Multiplier^retry + jitter
//	    MaxJitter:  time.Second,     // jitter is uniform in [0, MaxJitter)
//	    Multiplier: 2,
//	}
//
// Telling failures apart:
//
//	switch {
//	case errors.Is(err, retry.ErrRetriesExhausted):
//	    // gave up on a rate-limited API
//	case err != nil:
//	    // the underlying call failed for an unrelated reason
//	}
package retry
