package web

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"agenthub/internal/shared"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{shared.Validation("x"), http.StatusBadRequest},
		{shared.ErrNotFound, http.StatusNotFound},
		{shared.MarkKind(errors.New("x"), shared.KindRateLimited), http.StatusTooManyRequests},
		{shared.MarkKind(errors.New("x"), shared.KindDependencyFailure), http.StatusBadGateway},
		{shared.ErrUnavailable, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{&http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{errors.New("x"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusOf(tt.err), tt.err.Error())
	}
}

func TestSafeRedirect(t *testing.T) {
	assert.Equal(t, "/pdf", safeRedirect("/pdf"))
	assert.Equal(t, "/", safeRedirect("//evil.example"))
	assert.Equal(t, "/", safeRedirect(""))
}
