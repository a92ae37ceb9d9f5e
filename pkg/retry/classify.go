package retry

import (
	"errors"
	"strings"
)

// Outcome classifies the result of a single attempt or of a whole call.
type Outcome int

const (
	// OutcomeSuccess means the operation returned without error.
	OutcomeSuccess Outcome = iota
	// OutcomeRetryable means the operation was rate limited and may be retried.
	OutcomeRetryable
	// OutcomeFatal means the operation failed for a reason retrying will not fix.
	OutcomeFatal
	// OutcomeExhausted means the retry budget ran out.
	OutcomeExhausted
)

// String returns the lower-case name used in logs and metric labels.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeFatal:
		return "fatal"
	case OutcomeExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// ClassifyFunc maps an attempt error to an Outcome.
type ClassifyFunc func(err error) Outcome

// rateLimitTokens are matched against the lower-cased error message.
var rateLimitTokens = []string{"rate_limit_exceeded", "429"}

// rateLimiter is implemented by transport errors that know their own status.
type rateLimiter interface {
	RateLimited() bool
}

// IsRateLimited reports whether err signals rate limiting.
// A RateLimited() method anywhere in the chain takes precedence over the
// message tokens. An exhausted call is terminal and never rate limited.
func IsRateLimited(err error) bool {
	if err == nil || errors.Is(err, ErrRetriesExhausted) {
		return false
	}
	var rl rateLimiter
	if errors.As(err, &rl) {
		return rl.RateLimited()
	}
	msg := strings.ToLower(err.Error())
	for _, tok := range rateLimitTokens {
		if strings.Contains(msg, tok) {
			return true
		}
	}
	return false
}

// Classify is the default ClassifyFunc.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrRetriesExhausted):
		return OutcomeFatal
	case IsRateLimited(err):
		return OutcomeRetryable
	default:
		return OutcomeFatal
	}
}
