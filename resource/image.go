package resource

import (
	"image"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"golang.org/x/image/draw"
)

// BytesPerPixel is the size of one Rgba32 pixel.
const BytesPerPixel = 4

// State is the lifecycle state of an image handle.
type State int32

const (
	Live State = iota
	Disposed
)

func (s State) String() string {
	switch s {
	case Live:
		return "live"
	case Disposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// buffer is the pixel storage shared by an owner handle and its views.
type buffer struct {
	mu     sync.RWMutex
	width  int
	height int
	pix    []byte
	refs   atomic.Int32
}

// retain adds a reference unless the buffer has already been freed.
func (b *buffer) retain() bool {
	for {
		n := b.refs.Load()
		if n <= 0 {
			return false
		}
		if b.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (b *buffer) release() {
	if b.refs.Add(-1) == 0 {
		b.mu.Lock()
		b.pix = nil
		b.mu.Unlock()
	}
}

// Image is a handle onto an Rgba32 pixel buffer. The zero value is not usable;
// create images with New, FromImage or Tracker.Create.
type Image struct {
	id       string
	buf      *buffer
	borrowed bool
	state    atomic.Int32
}

// New returns a Live owner handle over a copy of pix, which must hold
// width*height Rgba32 pixels.
func New(width, height int, pix []byte) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Newf("image %dx%d: dimensions must be positive", width, height)
	}
	if want := width * height * BytesPerPixel; len(pix) != want {
		return nil, errors.Newf("image %dx%d: want %d pixel bytes, got %d", width, height, want, len(pix))
	}
	cp := make([]byte, len(pix))
	copy(cp, pix)
	return newOwner(width, height, cp), nil
}

// FromImage converts any image.Image into a Live owner handle.
func FromImage(src image.Image) (*Image, error) {
	b := src.Bounds()
	if b.Empty() {
		return nil, errors.Newf("image %dx%d: dimensions must be positive", b.Dx(), b.Dy())
	}
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return newOwner(b.Dx(), b.Dy(), dst.Pix), nil
}

func newOwner(width, height int, pix []byte) *Image {
	b := &buffer{width: width, height: height, pix: pix}
	b.refs.Store(1)
	return &Image{id: uuid.NewString(), buf: b}
}

// ID identifies the underlying image. Views report their owner's ID.
func (i *Image) ID() string { return i.id }

// State returns the handle's lifecycle state.
func (i *Image) State() State { return State(i.state.Load()) }

// Borrowed reports whether the handle is a view without disposal rights.
func (i *Image) Borrowed() bool { return i.borrowed }

func (i *Image) check(op string) error {
	if i.State() == Disposed {
		return &LifecycleError{ID: i.id, Op: op, Err: ErrUseAfterDispose}
	}
	return nil
}

// Width returns the image width in pixels.
func (i *Image) Width() (int, error) {
	if err := i.check("width"); err != nil {
		return 0, err
	}
	return i.buf.width, nil
}

// Height returns the image height in pixels.
func (i *Image) Height() (int, error) {
	if err := i.check("height"); err != nil {
		return 0, err
	}
	return i.buf.height, nil
}

// Size returns width and height.
func (i *Image) Size() (int, int, error) {
	if err := i.check("size"); err != nil {
		return 0, 0, err
	}
	return i.buf.width, i.buf.height, nil
}

// Pixels returns a copy of the Rgba32 payload.
func (i *Image) Pixels() ([]byte, error) {
	if err := i.check("pixels"); err != nil {
		return nil, err
	}
	i.buf.mu.RLock()
	defer i.buf.mu.RUnlock()
	out := make([]byte, len(i.buf.pix))
	copy(out, i.buf.pix)
	return out, nil
}

// RGBA returns a copy of the image as *image.RGBA.
func (i *Image) RGBA() (*image.RGBA, error) {
	pix, err := i.Pixels()
	if err != nil {
		return nil, err
	}
	return &image.RGBA{
		Pix:    pix,
		Stride: i.buf.width * BytesPerPixel,
		Rect:   image.Rect(0, 0, i.buf.width, i.buf.height),
	}, nil
}

// Borrow returns a read-only view sharing this image's pixels. The buffer
// stays allocated until the view is released, even if the owner is disposed
// first.
func (i *Image) Borrow() (*Image, error) {
	if err := i.check("borrow"); err != nil {
		return nil, err
	}
	if !i.buf.retain() {
		return nil, &LifecycleError{ID: i.id, Op: "borrow", Err: ErrUseAfterDispose}
	}
	return &Image{id: i.id, buf: i.buf, borrowed: true}, nil
}

// Clone returns an independent owner handle with a copy of the pixels.
func (i *Image) Clone() (*Image, error) {
	pix, err := i.Pixels()
	if err != nil {
		return nil, err
	}
	return newOwner(i.buf.width, i.buf.height, pix), nil
}

// Dispose ends the owner's lifetime. Views cannot dispose.
func (i *Image) Dispose() error {
	if i.borrowed {
		return &LifecycleError{ID: i.id, Op: "dispose", Err: ErrNotOwner}
	}
	return i.end("dispose")
}

// Release lets go of the handle: an owner is disposed, a view drops its
// reference to the shared buffer.
func (i *Image) Release() error {
	return i.end("release")
}

func (i *Image) end(op string) error {
	if !i.state.CompareAndSwap(int32(Live), int32(Disposed)) {
		return &LifecycleError{ID: i.id, Op: op, Err: ErrDoubleDispose}
	}
	i.buf.release()
	return nil
}
