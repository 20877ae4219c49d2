package resource

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrUseAfterDispose is returned by every read of a Disposed handle.
	ErrUseAfterDispose = errors.New("object is disposed")

	// ErrDoubleDispose is returned when a handle is disposed or released twice.
	ErrDoubleDispose = errors.New("object is already disposed")

	// ErrNotOwner is returned when a borrowed view is asked to dispose the image.
	ErrNotOwner = errors.New("borrowed image has no disposal rights")
)

// LifecycleError attributes a lifecycle violation to a specific image.
type LifecycleError struct {
	ID  string // image ID, shared by the owner handle and its views
	Op  string // operation that failed (width, pixels, dispose, ...)
	Err error  // one of the sentinel errors above
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("image %s: %s: %v", e.ID, e.Op, e.Err)
}

func (e *LifecycleError) Unwrap() error { return e.Err }

// IsUseAfterDispose reports whether err is, or wraps, ErrUseAfterDispose.
func IsUseAfterDispose(err error) bool { return errors.Is(err, ErrUseAfterDispose) }

// IsDoubleDispose reports whether err is, or wraps, ErrDoubleDispose.
func IsDoubleDispose(err error) bool { return errors.Is(err, ErrDoubleDispose) }

// IsLifecycle reports whether err carries any image lifecycle violation.
func IsLifecycle(err error) bool {
	return errors.Is(err, ErrUseAfterDispose) || errors.Is(err, ErrDoubleDispose) || errors.Is(err, ErrNotOwner)
}
