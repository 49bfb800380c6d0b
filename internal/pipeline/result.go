package pipeline

import (
	"context"
	"errors"
	"strings"
)

// Result is the outcome of a pipeline stage: either a typed payload or a failure message.
type Result[T any] struct {
	data    T
	err     string
	message string
	failed  bool
}

// Ok wraps a successful stage payload.
func Ok[T any](data T) Result[T] {
	return Result[T]{data: data}
}

// Fail builds a failed result carrying a flat, caller-safe error string.
func Fail[T any](err string) Result[T] {
	err = strings.TrimSpace(err)
	if err == "" {
		err = "unknown error"
	}
	return Result[T]{err: err, failed: true}
}

// FailAs re-types a failed result so it can be returned by a stage with a different payload.
// Calling it with a successful result is a programming error and yields a generic failure.
func FailAs[U, T any](r Result[T]) Result[U] {
	if !r.failed {
		return Fail[U]("unexpected success propagated as failure")
	}
	return Result[U]{err: r.err, message: r.message, failed: true}
}

// FromError flattens an internal error into a failed result. Deadline and cancellation
// errors are reported as a distinguished "<stage> timed out" / "<stage> cancelled" message.
func FromError[T any](stage string, err error) Result[T] {
	switch {
	case err == nil:
		return Fail[T](stage + " failed")
	case errors.Is(err, context.DeadlineExceeded):
		return Fail[T](stage + " timed out")
	case errors.Is(err, context.Canceled):
		return Fail[T](stage + " cancelled")
	default:
		return Fail[T](err.Error())
	}
}

// WithMessage attaches an optional human readable message to either variant.
func (r Result[T]) WithMessage(message string) Result[T] {
	r.message = message
	return r
}

// IsSuccess reports whether the result holds data.
func (r Result[T]) IsSuccess() bool {
	return !r.failed
}

// IsFailure reports whether the result holds an error.
func (r Result[T]) IsFailure() bool {
	return r.failed
}

// Data returns the payload. It is the zero value for failures.
func (r Result[T]) Data() T {
	return r.data
}

// Err returns the failure message, empty for successes.
func (r Result[T]) Err() string {
	return r.err
}

// Message returns the optional message.
func (r Result[T]) Message() string {
	return r.message
}
