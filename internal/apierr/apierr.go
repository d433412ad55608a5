// Package apierr defines the error taxonomy shared by the Kakao client and
// the book API facade.
package apierr

import (
	"errors"
	"fmt"
)

// Kind classifies an API failure.
type Kind string

const (
	// KindInvalidParams is returned for requests rejected before any I/O,
	// such as an empty search query.
	KindInvalidParams Kind = "INVALID_PARAMS"
	// KindInvalidISBN is returned for identifiers that are not 10 or 13
	// digits after separator stripping.
	KindInvalidISBN Kind = "INVALID_ISBN"
	// KindBadRequest maps HTTP 400 from the upstream API.
	KindBadRequest Kind = "BAD_REQUEST"
	// KindUnauthorized maps HTTP 401 (bad or missing API key).
	KindUnauthorized Kind = "UNAUTHORIZED"
	// KindForbidden maps HTTP 403.
	KindForbidden Kind = "FORBIDDEN"
	// KindRateLimited maps HTTP 429 from the upstream API.
	KindRateLimited Kind = "RATE_LIMIT_EXCEEDED"
	// KindServerError maps upstream 5xx responses.
	KindServerError Kind = "SERVER_ERROR"
	// KindTimeout is returned when a request attempt exceeds its deadline.
	KindTimeout Kind = "TIMEOUT"
	// KindNetworkError covers transient transport failures.
	KindNetworkError Kind = "NETWORK_ERROR"
	// KindInvalidResponse is returned when the upstream body does not match
	// the documented shape. Indicates a contract change, never retried.
	KindInvalidResponse Kind = "INVALID_RESPONSE"
	// KindQuotaExceeded is the local daily-quota guard; no network call was
	// made.
	KindQuotaExceeded Kind = "QUOTA_EXCEEDED"
	// KindUnexpected is the catch-all for unclassified failures.
	KindUnexpected Kind = "UNEXPECTED_ERROR"
)

// Error is a classified API error. Code carries the HTTP status when the
// error originates from an upstream response.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Code    int    `json:"code,omitempty"`
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New creates an Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithCode creates an Error carrying an HTTP status code.
func WithCode(kind Kind, code int, message string) *Error {
	return &Error{Kind: kind, Message: message, Code: code}
}

// Retryable reports whether the kind represents a transient failure worth
// retrying: upstream throttling, server faults, timeouts and network errors.
func (k Kind) Retryable() bool {
	switch k {
	case KindRateLimited, KindServerError, KindTimeout, KindNetworkError:
		return true
	}
	return false
}

// KindOf extracts the Kind from err, unwrapping as needed.
// Unclassified errors report KindUnexpected.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnexpected
}

// As unwraps err into an *Error, or wraps it as KindUnexpected so callers
// always have a classified error to report.
func As(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &Error{Kind: KindUnexpected, Message: err.Error()}
}

// IsQuotaExceeded reports whether err is the local quota guard (even when
// wrapped).
func IsQuotaExceeded(err error) bool {
	return KindOf(err) == KindQuotaExceeded
}
