package books

import (
	"github.com/lepinkainen/bookfetch/internal/apierr"
)

// Result is the tagged success/failure shape every facade operation
// returns. Collaborators never see raw errors for expected failure modes;
// they switch on Success and the error kind.
type Result[T any] struct {
	Success bool          `json:"success"`
	Data    T             `json:"data,omitempty"`
	Error   *apierr.Error `json:"error,omitempty"`
}

// OK wraps data in a successful result.
func OK[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: data}
}

// Fail wraps err in a failed result, classifying it if needed.
func Fail[T any](err error) Result[T] {
	return Result[T]{Success: false, Error: apierr.As(err)}
}

// ErrorKind returns the failure kind, or empty for successes.
func (r Result[T]) ErrorKind() apierr.Kind {
	if r.Error == nil {
		return ""
	}
	return r.Error.Kind
}
