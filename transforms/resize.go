package transforms

import (
	"context"
	"image"

	"github.com/cockroachdb/errors"
	"github.com/nfnt/resize"
	"golang.org/x/image/draw"

	"github.com/dcshock/imgpipe/dataset"
	"github.com/dcshock/imgpipe/pipeline"
	"github.com/dcshock/imgpipe/resource"
)

// Sampler selects the resampling kernel.
type Sampler string

const (
	Nearest    Sampler = "nearest"
	Bilinear   Sampler = "bilinear"
	CatmullRom Sampler = "catmullrom"
	Lanczos3   Sampler = "lanczos3"
)

// SameSizeMode decides what ResizeImages emits for an image that already has
// the target dimensions.
type SameSizeMode string

const (
	// SameSizeCopy emits an independent copy.
	SameSizeCopy SameSizeMode = "copy"
	// SameSizeView emits a borrowed view of the input; the buffer stays
	// allocated until the view is released.
	SameSizeView SameSizeMode = "view"
	// SameSizeAlias emits the input handle itself. Whoever releases the
	// output column then ends the input's lifetime too. Kept only to
	// reproduce frameworks that shortcut equal-size resizes this way.
	SameSizeAlias SameSizeMode = "alias"
)

// ResizeImages resizes every image of Input to Width x Height into Output.
type ResizeImages struct {
	Input    string
	Output   string
	Width    int
	Height   int
	Sampler  Sampler      // default Bilinear
	SameSize SameSizeMode // default SameSizeCopy
}

func (r ResizeImages) Name() string { return "resize_images" }

func (r ResizeImages) validate() error {
	if r.Input == "" || r.Output == "" {
		return errors.New("resize_images: input and output columns are required")
	}
	if r.Width <= 0 || r.Height <= 0 {
		return errors.Newf("resize_images: target %dx%d must be positive", r.Width, r.Height)
	}
	switch r.sampler() {
	case Nearest, Bilinear, CatmullRom, Lanczos3:
	default:
		return errors.Newf("resize_images: unknown sampler %q", r.Sampler)
	}
	switch r.sameSize() {
	case SameSizeCopy, SameSizeView, SameSizeAlias:
	default:
		return errors.Newf("resize_images: unknown same-size mode %q", r.SameSize)
	}
	return nil
}

func (r ResizeImages) sampler() Sampler {
	if r.Sampler == "" {
		return Bilinear
	}
	return r.Sampler
}

func (r ResizeImages) sameSize() SameSizeMode {
	if r.SameSize == "" {
		return SameSizeCopy
	}
	return r.SameSize
}

func (r ResizeImages) Schema(in dataset.Schema) (dataset.Schema, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	if _, err := in.Require(r.Input, dataset.KindImage); err != nil {
		return nil, errors.Wrap(err, "resize_images")
	}
	return in.With(r.Output, dataset.ColumnType{Kind: dataset.KindImage}), nil
}

// Fit needs no training data.
func (r ResizeImages) Fit(ctx context.Context, f *dataset.Frame) (pipeline.Stage, error) {
	if err := r.validate(); err != nil {
		return pipeline.Stage{}, err
	}
	return pipeline.Borrow(r.Name(), pipeline.Transform(r.apply)), nil
}

func (r ResizeImages) apply(ctx context.Context, f *dataset.Frame) (*dataset.Frame, error) {
	src, err := f.ImageColumn(r.Input)
	if err != nil {
		return nil, err
	}
	out := make(dataset.ImageColumn, len(src))
	for i, img := range src {
		if out[i], err = r.resizeOne(img); err != nil {
			return nil, errors.Wrapf(err, "row %d", i)
		}
	}
	return f.With(r.Output, out)
}

func (r ResizeImages) resizeOne(img *resource.Image) (*resource.Image, error) {
	w, h, err := img.Size()
	if err != nil {
		return nil, err
	}
	if w == r.Width && h == r.Height {
		switch r.sameSize() {
		case SameSizeAlias:
			return img, nil
		case SameSizeView:
			return img.Borrow()
		default:
			return img.Clone()
		}
	}
	src, err := img.RGBA()
	if err != nil {
		return nil, err
	}
	if r.sampler() == Lanczos3 {
		return resource.FromImage(resize.Resize(uint(r.Width), uint(r.Height), src, resize.Lanczos3))
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	interpolator(r.sampler()).Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return resource.New(r.Width, r.Height, dst.Pix)
}

func interpolator(s Sampler) draw.Interpolator {
	switch s {
	case Nearest:
		return draw.NearestNeighbor
	case CatmullRom:
		return draw.CatmullRom
	default:
		return draw.BiLinear
	}
}
