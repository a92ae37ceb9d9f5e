package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"
)

// ErrRetriesExhausted is matched by every RetriesExhaustedError.
var ErrRetriesExhausted = errors.New("retry: max retries exceeded")

// maxDelay is the largest wait Backoff and the jitter can add up to.
const maxDelay = time.Duration(math.MaxInt64)

// Policy defines retry configuration. It is copied into a Caller and never
// changes afterwards.
type Policy struct {
	// MaxRetries is the number of retries after the initial attempt
	MaxRetries int
	// BaseDelay is multiplied by Multiplier^retry to get the deterministic delay
	BaseDelay time.Duration
	// MaxJitter bounds the uniform jitter added to each delay (0 disables jitter)
	MaxJitter time.Duration
	// Multiplier is the exponential backoff multiplier
	Multiplier float64
}

// DefaultPolicy returns five retries starting at one second with up to one
// second of jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 5,
		BaseDelay:  time.Second,
		MaxJitter:  time.Second,
		Multiplier: 2.0,
	}
}

// Validate checks the policy invariants.
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return errors.New("retry: MaxRetries cannot be negative")
	}
	if p.BaseDelay <= 0 {
		return errors.New("retry: BaseDelay must be positive")
	}
	if p.MaxJitter < 0 {
		return errors.New("retry: MaxJitter cannot be negative")
	}
	if p.Multiplier <= 1.0 {
		return errors.New("retry: Multiplier must be greater than 1")
	}
	return nil
}

// Backoff returns the deterministic part of the delay before the given retry.
func (p Policy) Backoff(retry int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(retry))
	if d >= math.MaxInt64 || math.IsNaN(d) {
		return maxDelay
	}
	return time.Duration(d)
}

// Attempt records one invocation of the wrapped operation.
type Attempt struct {
	// Index is 1 for the initial attempt
	Index int
	// Delay is how long the caller waited before this attempt
	Delay time.Duration
	// Outcome is the classification of the attempt result
	Outcome Outcome
	// Err is the error returned by the operation, if any
	Err error
}

// RetriesExhaustedError is returned when every allowed retry was rate limited.
type RetriesExhaustedError struct {
	Attempts  []Attempt
	LastError error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", ErrRetriesExhausted.Error(), len(e.Attempts), e.LastError)
}

// Unwrap exposes only the sentinel. The last rate-limit error stays in
// LastError so the exhausted call is never classified as that error again.
func (e *RetriesExhaustedError) Unwrap() error {
	return ErrRetriesExhausted
}

// OnRetryFunc is called before the caller blocks for delay. attempt is the
// 1-based retry number.
type OnRetryFunc func(attempt int, err error, delay time.Duration)

// Observer receives call-level events, typically to feed metrics.
type Observer interface {
	ObserveRetry(attempt int, delay time.Duration)
	ObserveResult(outcome Outcome, attempts int)
}

// Caller invokes operations under a fixed Policy.
type Caller struct {
	policy   Policy
	classify ClassifyFunc
	log      *slog.Logger
	observer Observer
	sleep    func(ctx context.Context, d time.Duration) error

	randMu sync.Mutex
	rand   *rand.Rand
}

// Option configures Caller.
type Option func(*Caller)

// WithClassifier overrides the default rate-limit classifier.
func WithClassifier(f ClassifyFunc) Option {
	return func(c *Caller) {
		if f != nil {
			c.classify = f
		}
	}
}

// WithLogger sets logger used for retry events.
func WithLogger(l *slog.Logger) Option {
	return func(c *Caller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithObserver sets a call observer.
func WithObserver(o Observer) Option {
	return func(c *Caller) { c.observer = o }
}

// WithRand sets the jitter source.
func WithRand(r *rand.Rand) Option {
	return func(c *Caller) {
		if r != nil {
			c.rand = r
		}
	}
}

// WithSleep replaces the blocking wait (for testing).
func WithSleep(f func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Caller) {
		if f != nil {
			c.sleep = f
		}
	}
}

// New validates policy and creates a Caller.
func New(policy Policy, opts ...Option) (*Caller, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	c := &Caller{
		policy:   policy,
		classify: Classify,
		log:      slog.Default(),
		sleep:    sleepContext,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Policy returns the caller's policy.
func (c *Caller) Policy() Policy { return c.policy }

// Do runs an operation that only returns an error.
func (c *Caller) Do(ctx context.Context, op func(ctx context.Context) error, onRetry OnRetryFunc) error {
	_, err := Call(ctx, c, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, onRetry)
	return err
}

// state of a single Call.
type state int

const (
	stateAttempting state = iota
	stateWaiting
	stateTerminal
)

// Call invokes op until it succeeds, fails fatally or the retry budget is
// spent. onRetry may be nil.
func Call[T any](ctx context.Context, c *Caller, op func(ctx context.Context) (T, error), onRetry OnRetryFunc) (T, error) {
	var (
		zero     T
		result   T
		err      error
		retries  int
		delay    time.Duration
		history  []Attempt
		final    Outcome
		finalErr error
	)

	st := stateAttempting
	for st != stateTerminal {
		switch st {
		case stateAttempting:
			result, err = op(ctx)
			outcome := c.classify(err)
			history = append(history, Attempt{Index: len(history) + 1, Delay: delay, Outcome: outcome, Err: err})

			switch outcome {
			case OutcomeSuccess:
				final, finalErr = OutcomeSuccess, nil
				st = stateTerminal
			case OutcomeRetryable:
				if retries+1 > c.policy.MaxRetries {
					final = OutcomeExhausted
					finalErr = &RetriesExhaustedError{Attempts: history, LastError: err}
					c.log.Warn("retries exhausted", slog.Int("attempts", len(history)), slog.Any("error", err))
					st = stateTerminal
					break
				}
				retries++
				delay = c.delay(retries)
				c.log.Warn("retrying",
					slog.String("outcome", outcome.String()),
					slog.Int("attempt", len(history)),
					slog.Int("retry", retries),
					slog.Int("retries_left", c.policy.MaxRetries-retries),
					slog.Duration("wait", delay),
					slog.Any("error", err))
				if c.observer != nil {
					c.observer.ObserveRetry(retries, delay)
				}
				if onRetry != nil {
					onRetry(retries, err, delay)
				}
				st = stateWaiting
			default:
				final, finalErr = OutcomeFatal, err
				st = stateTerminal
			}

		case stateWaiting:
			if serr := c.sleep(ctx, delay); serr != nil {
				final, finalErr = OutcomeFatal, serr
				st = stateTerminal
				break
			}
			st = stateAttempting
		}
	}

	if c.observer != nil {
		c.observer.ObserveResult(final, len(history))
	}
	if finalErr != nil {
		return zero, finalErr
	}
	return result, nil
}

// delay returns Backoff(retry) plus uniform jitter in [0, MaxJitter),
// saturating at maxDelay.
func (c *Caller) delay(retry int) time.Duration {
	d := c.policy.Backoff(retry)
	if c.policy.MaxJitter > 0 {
		c.randMu.Lock()
		j := time.Duration(c.rand.Int63n(int64(c.policy.MaxJitter)))
		c.randMu.Unlock()
		if d > maxDelay-j {
			return maxDelay
		}
		d += j
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
