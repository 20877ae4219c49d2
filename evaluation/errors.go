package evaluation

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// EvaluationError reports that the data to evaluate could not be produced.
// Cause is the original failure, often a lifecycle error raised while an
// upstream stage re-read an image; errors.Is and errors.As see through it.
type EvaluationError struct {
	Cause error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation failed: %v", e.Cause)
}

func (e *EvaluationError) Unwrap() error { return e.Cause }

// IsEvaluationError reports whether err is, or wraps, an *EvaluationError.
func IsEvaluationError(err error) bool {
	var ee *EvaluationError
	return errors.As(err, &ee)
}
