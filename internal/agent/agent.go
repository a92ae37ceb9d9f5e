// Package agent holds what the dashboard agents share: progress notices and
// the mapping of retried-call failures onto error kinds.
package agent

import (
	"errors"
	"fmt"
	"time"

	"agenthub/internal/shared"
	"agenthub/pkg/retry"
)

// Names used for metric labels, cache keys and logs.
const (
	Financial = "financial"
	PDF       = "pdf"
	Video     = "video"
)

// Notifier receives progress notices shown to the user while a call runs.
type Notifier func(msg string)

// Notify calls n when it is set.
func (n Notifier) Notify(msg string) {
	if n != nil {
		n(msg)
	}
}

// RetryNotice is the text shown before waiting on a rate-limited call.
func RetryNotice(delay time.Duration) string {
	return fmt.Sprintf("Rate limit exceeded. Retrying in %.2f seconds...", delay.Seconds())
}

// OnRetry forwards every scheduled retry to n as a RetryNotice.
func OnRetry(n Notifier) retry.OnRetryFunc {
	return func(_ int, _ error, delay time.Duration) {
		n.Notify(RetryNotice(delay))
	}
}

// CallError gives a failed retried call an error kind. Exhausted retries are
// KindRateLimited, errors that already carry a kind keep it, anything else is
// a dependency failure.
func CallError(op string, err error) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", op, err)
	switch {
	case errors.Is(err, retry.ErrRetriesExhausted):
		return shared.MarkKind(wrapped, shared.KindRateLimited)
	case shared.KindOf(err) != shared.KindUnknown:
		return wrapped
	default:
		return shared.MarkKind(wrapped, shared.KindDependencyFailure)
	}
}
