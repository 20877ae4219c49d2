// Package pipeline: standard stages for common pipeline patterns. All of them borrow.

package pipeline

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Identity returns a stage that passes the input through unchanged.
// Useful as a no-op, as an observer boundary, or as a placeholder.
func Identity() Stage {
	return Borrow("identity", func(ctx context.Context, input interface{}) (interface{}, error) {
		return input, nil
	})
}

// Tap returns a stage that calls fn(ctx, input) then passes input through unchanged.
// Use for logging, metrics, or side effects without changing the value.
func Tap(fn func(context.Context, interface{})) Stage {
	return Borrow("tap", func(ctx context.Context, input interface{}) (interface{}, error) {
		fn(ctx, input)
		return input, nil
	})
}

// Validate returns a stage that passes input through only if predicate(v) is true.
// Otherwise it returns an error (errMsg, or "validation failed" when empty).
// Input must be of type T; type assertion failure returns an error.
func Validate[T any](predicate func(T) bool, errMsg string) Stage {
	return Borrow("validate", func(ctx context.Context, input interface{}) (interface{}, error) {
		v, ok := input.(T)
		if !ok {
			var zero T
			return nil, errors.Newf("validate: expected %T, got %T", zero, input)
		}
		if !predicate(v) {
			if errMsg == "" {
				return nil, errors.New("validation failed")
			}
			return nil, errors.New(errMsg)
		}
		return input, nil
	})
}
