// Package resource models disposable image buffers with an explicit lifecycle.
//
// An Image is a handle onto a shared Rgba32 pixel buffer. Handles come in two
// kinds:
//
//   - owner handles (New, FromImage, Clone, Tracker.Create) may Dispose the image;
//   - borrowed views (Borrow) can read the pixels but have no disposal rights.
//
// Every handle is Live until it is disposed or released; the transition is
// one-way. Reading a Disposed handle fails with ErrUseAfterDispose, disposing it
// again fails with ErrDoubleDispose, and disposing a view fails with ErrNotOwner.
// The pixel buffer itself is freed when the last handle (owner or view) lets go:
// the buffer keeps an atomic reference count, so a view taken before the owner
// is disposed stays readable until it is released.
//
// Values that carry images through a pipeline implement Carrier so the
// pipeline executor can lend, clone and release the images they hold without
// knowing their concrete type.
package resource
