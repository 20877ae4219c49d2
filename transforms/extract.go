package transforms

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/dcshock/imgpipe/dataset"
	"github.com/dcshock/imgpipe/pipeline"
	"github.com/dcshock/imgpipe/resource"
)

// ExtractPixels turns every image of Input into a float vector in Output.
// Each channel value v becomes (v - Offset) * Scale. Channels are R, G, B
// (and A when Alpha is set), laid out plane by plane unless Interleave is set.
//
// With ReleaseSource the stage consumes its input: it releases the images of
// Input once their pixels are extracted and drops the column.
type ExtractPixels struct {
	Input         string
	Output        string
	Interleave    bool
	Alpha         bool
	Offset        float64
	Scale         float64 // 0 means 1
	ReleaseSource bool
}

func (e ExtractPixels) Name() string { return "extract_pixels" }

func (e ExtractPixels) channels() int {
	if e.Alpha {
		return 4
	}
	return 3
}

func (e ExtractPixels) scale() float64 {
	if e.Scale == 0 {
		return 1
	}
	return e.Scale
}

func (e ExtractPixels) Schema(in dataset.Schema) (dataset.Schema, error) {
	if e.Input == "" || e.Output == "" {
		return nil, errors.New("extract_pixels: input and output columns are required")
	}
	if _, err := in.Require(e.Input, dataset.KindImage); err != nil {
		return nil, errors.Wrap(err, "extract_pixels")
	}
	out := in.With(e.Output, dataset.ColumnType{Kind: dataset.KindVector})
	if e.ReleaseSource {
		out = out.Without(e.Input)
	}
	return out, nil
}

// Fit needs no training data.
func (e ExtractPixels) Fit(ctx context.Context, f *dataset.Frame) (pipeline.Stage, error) {
	if e.Input == "" || e.Output == "" {
		return pipeline.Stage{}, errors.New("extract_pixels: input and output columns are required")
	}
	if e.ReleaseSource {
		return pipeline.Consume(e.Name(), pipeline.Transform(e.apply)), nil
	}
	return pipeline.Borrow(e.Name(), pipeline.Transform(e.apply)), nil
}

func (e ExtractPixels) apply(ctx context.Context, f *dataset.Frame) (*dataset.Frame, error) {
	src, err := f.ImageColumn(e.Input)
	if err != nil {
		return nil, err
	}
	vec := dataset.VectorColumn{Values: make([][]float64, len(src))}
	for i, img := range src {
		v, err := e.extract(img)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", i)
		}
		if i == 0 {
			vec.Size = len(v)
		} else if len(v) != vec.Size {
			return nil, errors.Newf("row %d: %d values, earlier rows have %d; resize images first", i, len(v), vec.Size)
		}
		vec.Values[i] = v
	}
	out, err := f.With(e.Output, vec)
	if err != nil {
		return nil, err
	}
	if !e.ReleaseSource {
		return out, nil
	}
	if err := releaseColumn(src); err != nil {
		return nil, errors.Wrapf(err, "release %q", e.Input)
	}
	return out.Without(e.Input), nil
}

func (e ExtractPixels) extract(img *resource.Image) ([]float64, error) {
	w, h, err := img.Size()
	if err != nil {
		return nil, err
	}
	pix, err := img.Pixels()
	if err != nil {
		return nil, err
	}
	n, ch := w*h, e.channels()
	off, scale := e.Offset, e.scale()
	out := make([]float64, n*ch)
	for p := 0; p < n; p++ {
		for c := 0; c < ch; c++ {
			v := (float64(pix[p*resource.BytesPerPixel+c]) - off) * scale
			if e.Interleave {
				out[p*ch+c] = v
			} else {
				out[c*n+p] = v
			}
		}
	}
	return out, nil
}

// releaseColumn releases each distinct handle of the column once.
func releaseColumn(col dataset.ImageColumn) error {
	seen := make(map[*resource.Image]struct{}, len(col))
	var errs error
	for _, img := range col {
		if _, ok := seen[img]; ok {
			continue
		}
		seen[img] = struct{}{}
		errs = errors.CombineErrors(errs, img.Release())
	}
	return errs
}
