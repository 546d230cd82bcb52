// Package core provides shared types and the error taxonomy for the catalog sync service.
package core

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a failure so callers can react without string matching
type ErrorKind string

const (
	// KindPermissionDenied indicates the caller lacks the required capability
	KindPermissionDenied ErrorKind = "permission_denied"
	// KindInvalidInput indicates missing or malformed caller input
	KindInvalidInput ErrorKind = "invalid_input"
	// KindNotFound indicates a missing local or remote entity
	KindNotFound ErrorKind = "not_found"
	// KindUpstreamTransport indicates a network failure after retries were exhausted
	KindUpstreamTransport ErrorKind = "upstream_transport"
	// KindUpstreamRateLimited indicates the Discogs quota is exhausted or a 429 without a safe retry
	KindUpstreamRateLimited ErrorKind = "upstream_rate_limited"
	// KindUpstreamDecode indicates a malformed upstream response body
	KindUpstreamDecode ErrorKind = "upstream_decode"
	// KindUpstreamStatus indicates an unexpected upstream HTTP status
	KindUpstreamStatus ErrorKind = "upstream_status"
)

// Error is the base error type for all service errors
type Error struct {
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code,omitempty"`
	// RetryAfter suggests how long to wait before retrying, in seconds.
	// Only set for rate-limit errors when the reset time is known.
	RetryAfter int `json:"retry_after,omitempty"`
	// Original error for debugging (not exposed to clients)
	Err error `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the HTTP status to surface for this error
func (e *Error) HTTPStatusCode() int {
	switch e.Kind {
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstreamRateLimited:
		return http.StatusTooManyRequests
	case KindUpstreamTransport, KindUpstreamDecode, KindUpstreamStatus:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts the error to a JSON-compatible map for response bodies
func (e *Error) ToJSON() map[string]interface{} {
	body := map[string]interface{}{
		"kind":    e.Kind,
		"message": e.Message,
	}
	if e.RetryAfter > 0 {
		body["retry_after"] = e.RetryAfter
	}
	return map[string]interface{}{"error": body}
}

// KindOf returns the kind of err, or "" if err is not a *core.Error
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// NewPermissionDeniedError creates a permission error for a gated action
func NewPermissionDeniedError(action string) *Error {
	return &Error{
		Kind:    KindPermissionDenied,
		Message: fmt.Sprintf("missing capability for %s", action),
	}
}

// NewInvalidInputError creates an input validation error
func NewInvalidInputError(message string) *Error {
	return &Error{
		Kind:    KindInvalidInput,
		Message: message,
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(message string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: message,
	}
}

// NewTransportError creates a transport error after retries were exhausted
func NewTransportError(message string, err error) *Error {
	return &Error{
		Kind:    KindUpstreamTransport,
		Message: message,
		Err:     err,
	}
}

// NewRateLimitedError creates a rate-limit error. retryAfter is in seconds
// and may be zero when no reset hint is available.
func NewRateLimitedError(message string, retryAfter int) *Error {
	return &Error{
		Kind:       KindUpstreamRateLimited,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
		RetryAfter: retryAfter,
	}
}

// NewDecodeError creates a decode error for a malformed upstream body
func NewDecodeError(message string, err error) *Error {
	return &Error{
		Kind:    KindUpstreamDecode,
		Message: message,
		Err:     err,
	}
}

// NewUpstreamStatusError creates an error carrying an unexpected upstream status code
func NewUpstreamStatusError(statusCode int, message string) *Error {
	return &Error{
		Kind:       KindUpstreamStatus,
		Message:    message,
		StatusCode: statusCode,
	}
}
