// Package shared contains common error types and utilities for error handling
// across the application without domain-specific logic.
//
// # Error Types and Classification
//
//   - ErrNotFound: Resource not found
//   - ErrValidation: Input validation failed (empty ticker, missing upload)
//   - ErrForbidden: Access denied
//   - ErrInternal: Internal server error
//   - ErrTimeout: Operation timed out
//   - ErrDependencyFailure: External dependency failed
//   - ErrRateLimited: An external API stayed rate limited after all retries
//   - ErrUnavailable: Agent not configured (missing API key)
//
// Use KindOf() to classify errors into categories:
//
//	switch shared.KindOf(err) {
//	case shared.KindValidation:
//	    // show a warning
//	case shared.KindRateLimited:
//	    // show "try again later"
//	default:
//	    // show the error
//	}
//
// # Kind Priority Table
//
//	Priority | Kind                  | Description
//	---------|-----------------------|--------------------
//	1        | KindCanceled          | Context cancellation (highest)
//	2        | KindTimeout           | Timeout/deadline errors
//	3        | KindValidation        | Input validation failures
//	4        | KindNotFound          | Resource not found
//	5        | KindForbidden         | Access denied
//	6        | KindUnavailable       | Feature not configured
//	7        | KindRateLimited       | Retries exhausted on a rate-limited API
//	8        | KindDependencyFailure | External service failures
//	9        | KindInternal          | Internal errors (lowest)
//
// # Adapter Integration
//
// Map error kinds to transport-specific codes in adapter layers, not here:
//
//	switch shared.KindOf(err) {
//	case shared.KindValidation:
//	    return http.StatusBadRequest
//	case shared.KindRateLimited:
//	    return http.StatusTooManyRequests
//	case shared.KindDependencyFailure:
//	    return http.StatusBadGateway
//	}
//
// # Error Message Style Guide
//
// - Use lowercase messages: "ticker not found" not "Ticker not found"
// - Avoid punctuation so messages compose when wrapped
package shared
