package shared_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agenthub/internal/shared"
)

type netTimeout struct{}

func (netTimeout) Error() string   { return "i/o timeout" }
func (netTimeout) Timeout() bool   { return true }
func (netTimeout) Temporary() bool { return true }

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want shared.Kind
	}{
		{"nil", nil, shared.KindUnknown},
		{"plain", errors.New("boom"), shared.KindUnknown},
		{"canceled", context.Canceled, shared.KindCanceled},
		{"deadline", context.DeadlineExceeded, shared.KindTimeout},
		{"net timeout", fmt.Errorf("dial: %w", netTimeout{}), shared.KindTimeout},
		{"validation", shared.Validation("please enter a stock ticker"), shared.KindValidation},
		{"not found", fmt.Errorf("run 42: %w", shared.ErrNotFound), shared.KindNotFound},
		{"forbidden", shared.ErrForbidden, shared.KindForbidden},
		{"unavailable", shared.MarkKind(errors.New("no api key"), shared.KindUnavailable), shared.KindUnavailable},
		{"rate limited", shared.MarkKind(errors.New("429"), shared.KindRateLimited), shared.KindRateLimited},
		{"dependency", shared.Wrap(shared.ErrDependencyFailure, "gemini"), shared.KindDependencyFailure},
		{"internal", shared.ErrInternal, shared.KindInternal},
		{"canceled beats timeout", errors.Join(context.DeadlineExceeded, context.Canceled), shared.KindCanceled},
		{"rate limited beats dependency", errors.Join(shared.ErrDependencyFailure, shared.ErrRateLimited), shared.KindRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shared.KindOf(tt.err))
			assert.True(t, shared.HasKind(tt.err, tt.want))
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "RateLimited", shared.KindRateLimited.String())
	assert.Equal(t, "Unavailable", shared.KindUnavailable.String())
	assert.Equal(t, "Unknown", shared.Kind(99).String())
}

func TestMarkKind(t *testing.T) {
	base := errors.New("quota")

	marked := shared.MarkKind(base, shared.KindRateLimited)
	require.ErrorIs(t, marked, base)
	require.ErrorIs(t, marked, shared.ErrRateLimited)

	assert.Same(t, marked, shared.MarkKind(marked, shared.KindRateLimited))
	assert.Equal(t, base, shared.MarkKind(base, shared.KindUnknown))
	assert.Equal(t, base, shared.MarkKind(base, shared.KindCanceled))
	assert.Equal(t, shared.ErrNotFound, shared.MarkKind(nil, shared.KindNotFound))
	assert.Nil(t, shared.MarkKind(nil, shared.KindCanceled))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, shared.Wrap(nil, "ctx"))
	assert.Nil(t, shared.Wrapf(nil, "ctx %d", 1))

	base := errors.New("boom")
	assert.Equal(t, base, shared.Wrap(base, ""))
	assert.EqualError(t, shared.Wrap(base, "load"), "load: boom")
	assert.EqualError(t, shared.Wrapf(base, "load %s", "doc"), "load doc: boom")
	assert.ErrorIs(t, shared.Wrapf(base, "load %s", "doc"), base)
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "", shared.Message(nil))
	assert.Equal(t, "please upload a PDF first", shared.Message(shared.Validation("please upload a PDF first")))
	assert.Equal(t, "wrapped: validation failed: x", shared.Message(shared.Wrap(shared.Validation("x"), "wrapped")))
	assert.Equal(t, "boom", shared.Message(errors.New("boom")))
}

func ExampleKindOf() {
	err := shared.Wrap(shared.Validation("please enter a stock ticker"), "summarize")
	fmt.Println(shared.KindOf(err))
	// Output: Validation
}

func ExampleMarkKind() {
	err := shared.MarkKind(errors.New("retries exhausted"), shared.KindRateLimited)
	fmt.Println(shared.IsRateLimited(err))
	fmt.Println(err)
	// Output:
	// true
	// rate limited: retries exhausted
}
