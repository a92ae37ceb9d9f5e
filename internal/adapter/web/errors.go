package web

import (
	"errors"
	"net/http"

	"agenthub/internal/shared"
)

// statusOf maps an error kind to an HTTP status.
func statusOf(err error) int {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return http.StatusRequestEntityTooLarge
	}
	switch shared.KindOf(err) {
	case shared.KindValidation:
		return http.StatusBadRequest
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindRateLimited:
		return http.StatusTooManyRequests
	case shared.KindDependencyFailure:
		return http.StatusBadGateway
	case shared.KindUnavailable:
		return http.StatusServiceUnavailable
	case shared.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// userMessage is the text shown for err.
func userMessage(err error) string {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return "the upload is too large"
	}
	switch shared.KindOf(err) {
	case shared.KindValidation:
		return shared.Message(err)
	case shared.KindRateLimited:
		return "Max retries exceeded. API rate limit."
	case shared.KindUnavailable:
		return "this agent is not configured"
	case shared.KindTimeout, shared.KindCanceled:
		return "the request took too long, please try again"
	case shared.KindInternal, shared.KindUnknown:
		return "something went wrong, please try again"
	default:
		return err.Error()
	}
}
