// Package repro reproduces the premature disposal of caller images by an
// equal-size resize, and shows that the ownership-tracking executor or a
// copying resize prevents it.
//
// A scenario fits a small image classifier on random images, transforms a
// second set of random images with it, reads the outputs, reads the first
// input image again and finally evaluates the predictions. With an aliasing
// resize, an unguarded executor and images that already have the target
// size, reading the input afterwards fails with resource.ErrUseAfterDispose
// and the evaluation fails with an *evaluation.EvaluationError wrapping it.
package repro

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/dcshock/imgpipe/dataset"
	"github.com/dcshock/imgpipe/evaluation"
	"github.com/dcshock/imgpipe/model"
	"github.com/dcshock/imgpipe/pipeline"
	"github.com/dcshock/imgpipe/resource"
	"github.com/dcshock/imgpipe/trainers"
	"github.com/dcshock/imgpipe/transforms"
)

// Column names of the default chain.
const (
	ResizedImageColumn        = "ResizedImage"
	ExtractedPixelsColumn     = "ExtractedPixels"
	LabelKeyColumn            = "LabelKey"
	PredictedLabelValueColumn = "PredictedLabelValue"
)

// PixelOffset is subtracted from every channel value before training.
const PixelOffset = 177

// Scenario describes one reproduction run.
type Scenario struct {
	Name      string
	Images    int // per data set; 0 means 2
	ImageSize int // width and height of the random images
	ResizeTo  int // width and height the chain resizes to
	SameSize  transforms.SameSizeMode
	Unguarded bool
	Seed      uint64 // 0 means 1
}

// ScenarioA resizes 2x2 images to 2x2 with the legacy aliasing resize and no
// ownership tracking. It reproduces the defect.
func ScenarioA() Scenario {
	return Scenario{Name: "A", Images: 2, ImageSize: 2, ResizeTo: 2, SameSize: transforms.SameSizeAlias, Unguarded: true, Seed: 1}
}

// ScenarioB is ScenarioA with 3x3 images, so the resize always allocates.
func ScenarioB() Scenario {
	s := ScenarioA()
	s.Name, s.ImageSize = "B", 3
	return s
}

func (s Scenario) withDefaults() Scenario {
	if s.Images == 0 {
		s.Images = 2
	}
	if s.Seed == 0 {
		s.Seed = 1
	}
	if s.Name == "" {
		s.Name = "custom"
	}
	return s
}

func (s Scenario) validate() error {
	if s.Images < 0 {
		return errors.Newf("scenario %s: image count must not be negative", s.Name)
	}
	if s.ImageSize <= 0 || s.ResizeTo <= 0 {
		return errors.Newf("scenario %s: image size %d and resize target %d must be positive", s.Name, s.ImageSize, s.ResizeTo)
	}
	return nil
}

// DefaultChain is resize, extract interleaved pixels with PixelOffset, map
// the label to a key, train a maximum entropy classifier, map the predicted
// key back to its label and cache.
func DefaultChain(resizeTo int, sameSize transforms.SameSizeMode) *model.Chain {
	return model.NewChain("image-classifier",
		transforms.ResizeImages{
			Input: dataset.SourceImageColumn, Output: ResizedImageColumn,
			Width: resizeTo, Height: resizeTo, SameSize: sameSize,
		},
		transforms.ExtractPixels{Input: ResizedImageColumn, Output: ExtractedPixelsColumn, Interleave: true, Offset: PixelOffset},
		transforms.MapValueToKey{Input: dataset.LabelValueColumn, Output: LabelKeyColumn},
		trainers.LbfgsMaximumEntropy{Label: LabelKeyColumn, Features: ExtractedPixelsColumn},
		transforms.MapKeyToValue{Input: trainers.PredictedLabelColumn, Output: PredictedLabelValueColumn},
		transforms.CacheCheckpoint{},
	)
}

// Options is optional.
type Options struct {
	Logger   *zap.Logger
	Observer pipeline.Observer
	// Chain replaces DefaultChain. Its output must have the columns
	// evaluated by Run.
	Chain *model.Chain
}

// Report is the outcome of one scenario. The lifecycle failures it is about
// are recorded, not returned.
type Report struct {
	Scenario Scenario

	HeightBefore int
	HeightAfter  int
	HeightErr    error // reading the first test image after collecting outputs

	Outputs    []dataset.OutputRecord
	CollectErr error

	Metrics     *evaluation.Metrics
	EvaluateErr error

	// Disposed lists the test images whose state changed during the run.
	Disposed []string
}

// Reproduced reports whether the run showed the defect: the caller's image
// was disposed behind its back and evaluation failed with a wrapped
// use-after-dispose.
func (r *Report) Reproduced() bool {
	return resource.IsUseAfterDispose(r.HeightErr) &&
		evaluation.IsEvaluationError(r.EvaluateErr) &&
		resource.IsUseAfterDispose(r.EvaluateErr)
}

// Run executes the scenario. Errors are returned only when the scenario
// cannot be set up (bad parameters, data generation or fitting).
func Run(ctx context.Context, s Scenario, opts *Options) (*Report, error) {
	s = s.withDefaults()
	if err := s.validate(); err != nil {
		return nil, err
	}
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Chain == nil {
		o.Chain = DefaultChain(s.ResizeTo, s.SameSize)
	}
	log := o.Logger.With(zap.String("scenario", s.Name))

	train, err := dataset.RandomRecords(s.Images, s.ImageSize, s.Seed, nil)
	if err != nil {
		return nil, errors.Wrap(err, "training data")
	}
	m, err := o.Chain.Fit(ctx, dataset.FromRecords(train), &model.FitOptions{Logger: log, Observer: o.Observer})
	if err != nil {
		return nil, errors.Wrap(err, "fit")
	}

	tracker := resource.NewTracker()
	test, err := dataset.RandomRecords(s.Images, s.ImageSize, s.Seed, tracker)
	if err != nil {
		return nil, errors.Wrap(err, "test data")
	}
	if len(test) == 0 {
		return nil, errors.Newf("scenario %s: no test images", s.Name)
	}
	before := tracker.Snapshot()
	view := m.Transform(dataset.FromRecords(test), &pipeline.RunOptions{
		Unguarded: s.Unguarded,
		Logger:    log,
		Observer:  o.Observer,
	})

	r := &Report{Scenario: s}
	if r.HeightBefore, err = test[0].Image.Height(); err != nil {
		return nil, errors.Wrap(err, "read test image")
	}
	r.Outputs, r.CollectErr = dataset.Collect(ctx, view, PredictedLabelValueColumn, trainers.ScoreColumn)
	r.HeightAfter, r.HeightErr = test[0].Image.Height()
	r.Metrics, r.EvaluateErr = evaluation.Multiclass(ctx, view, LabelKeyColumn, trainers.PredictedLabelColumn, &evaluation.Options{Logger: log})
	r.Disposed = tracker.Changed(before)

	log.Info("scenario finished",
		zap.Bool("reproduced", r.Reproduced()),
		zap.Int("outputs", len(r.Outputs)),
		zap.Strings("disposed", r.Disposed),
		zap.NamedError("height_error", r.HeightErr),
		zap.NamedError("evaluate_error", r.EvaluateErr))
	return r, nil
}
