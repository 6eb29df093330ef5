// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Result carries either a value or a row-level failure produced by a stage.
// Failures are data: they are stored alongside successful rows instead of
// aborting the run.
type Result[T any] struct {
	Value T
	Err   string
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Failed wraps a row-level failure. The partial value is kept so that
// foreign keys and provenance survive.
func Failed[T any](v T, reason string) Result[T] {
	if reason == "" {
		reason = "unknown error"
	}
	return Result[T]{Value: v, Err: reason}
}

// IsOk reports whether the result holds no failure.
func (r Result[T]) IsOk() bool {
	return r.Err == ""
}
