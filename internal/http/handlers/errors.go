// Package handlers defines HTTP-layer error codes used across all API
// endpoints.
//
// These symbolic constants are mapped to HTTP responses via the fail()
// helper in this package and give clients a stable, machine-readable error
// taxonomy that supplements human-readable messages. Generic codes mirror
// common HTTP status semantics; invalid_transition is the one domain code a
// status alone cannot convey (an attempted stage regression).
package handlers

const (
	ErrCodeBadRequest        = "bad_request"
	ErrCodeInvalidArgument   = "invalid_argument"
	ErrCodeForbidden         = "forbidden"
	ErrCodeNotFound          = "not_found"
	ErrCodeConflict          = "conflict"
	ErrCodeInvalidTransition = "invalid_transition"
	ErrCodeRateLimited       = "too_many_requests"
	ErrCodeInternal          = "internal_error"
	ErrCodeMethodNotAllowed  = "method_not_allowed"
)
