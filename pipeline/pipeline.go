package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dcshock/imgpipe/resource"
)

// Ownership declares what a stage may do with the resources in its input.
type Ownership int

const (
	// Borrows stages read their input and never dispose it.
	Borrows Ownership = iota
	// Consumes stages own their input and may release it after producing output.
	Consumes
)

func (o Ownership) String() string {
	switch o {
	case Borrows:
		return "borrows"
	case Consumes:
		return "consumes"
	default:
		return fmt.Sprintf("ownership(%d)", int(o))
	}
}

// StageFunc is the body of a stage. It receives the output of the previous
// stage (or the source) and returns the input for the next stage.
type StageFunc func(ctx context.Context, input interface{}) (interface{}, error)

// Stage is a single named step in a pipeline with an explicit ownership policy.
type Stage struct {
	Name   string
	Policy Ownership
	Run    StageFunc
}

// Borrow returns a stage that only reads its input.
func Borrow(name string, fn StageFunc) Stage {
	return Stage{Name: name, Policy: Borrows, Run: fn}
}

// Consume returns a stage that takes ownership of its input.
func Consume(name string, fn StageFunc) Stage {
	return Stage{Name: name, Policy: Consumes, Run: fn}
}

// Info describes the stage for observers.
func (s Stage) Info() StageInfo {
	return StageInfo{Name: s.Name, Policy: s.Policy}
}

// StageInfo is the observable description of a stage.
type StageInfo struct {
	Name   string
	Policy Ownership
}

// ConvertFunc converts value of type A to type B. Used by Transform to build a stage body.
type ConvertFunc[A, B any] func(ctx context.Context, a A) (B, error)

// Transform returns a stage body that converts the previous stage's output (type A)
// to type B. A mismatch between consecutive stages surfaces as a type error at run time.
func Transform[A, B any](convert ConvertFunc[A, B]) StageFunc {
	return func(ctx context.Context, input interface{}) (interface{}, error) {
		a, ok := input.(A)
		if !ok {
			var zero A
			return nil, errors.Newf("transform: expected %T, got %T", zero, input)
		}
		return convert(ctx, a)
	}
}

// ErrOwnershipViolation is returned when a caller image changed state during a
// run in which the caller did not transfer ownership.
var ErrOwnershipViolation = errors.New("caller image changed state inside the pipeline")

// Observer provides pre/post hooks for pipeline and stage execution so runs can
// be logged, measured or persisted. BeforePipeline is called before any stage
// runs, BeforeStage/AfterStage around each stage, AfterPipeline when the
// pipeline finishes (success or error).
type Observer interface {
	BeforePipeline(ctx context.Context, runID, name string, payload interface{}) error
	AfterPipeline(ctx context.Context, runID string, result interface{}, err error) error
	BeforeStage(ctx context.Context, runID string, stageIndex int, stage StageInfo, input interface{}) error
	AfterStage(ctx context.Context, runID string, stageIndex int, stage StageInfo, input, output interface{}, stageErr error, duration time.Duration) error
}

// RunOptions is optional. If RunID is empty a new UUID is generated for the run.
type RunOptions struct {
	Observer Observer
	RunID    string
	Logger   *zap.Logger

	// TransferOwnership hands caller images to Consumes stages as-is. Without
	// it a Consumes stage receives owned clones of the caller's images.
	TransferOwnership bool

	// Unguarded turns off ownership tracking: stages see the caller's handles,
	// and every image a stage emits is released when the run ends, aliases of
	// caller images included. This is how frameworks without ownership
	// bookkeeping behave; use it only to reproduce their lifetime defects.
	Unguarded bool
}

func (o *RunOptions) logger() *zap.Logger {
	if o == nil || o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Pipeline runs a linear chain of stages (stage1 | stage2 | ...). Optionally
// Source can be set for standalone Run.
type Pipeline struct {
	Name   string
	Source func(ctx context.Context) (interface{}, error) // optional; used only by Run
	Stages []Stage
}

// Run executes the pipeline: runs the source (if non-nil), then runs each stage in order.
func (p *Pipeline) Run(ctx context.Context, opts *RunOptions) (interface{}, error) {
	var out interface{}
	var err error
	if p.Source != nil {
		out, err = p.Source(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "source")
		}
	}
	return p.RunWithInput(ctx, out, opts)
}

// RunWithInput runs the pipeline's stages starting with the given input. Each
// stage's output is the next stage's input. Returns the last stage's output or
// the first error.
//
// When the input carries images (resource.Carrier) the run tracks ownership:
// Borrows stages get borrowed views, Consumes stages get owned clones (or the
// caller's handles with TransferOwnership), images emitted by stages are
// released when the run ends, and the caller's images must leave the run in
// the state they entered it. The returned value is stripped of image slots, so
// it never aliases a disposable resource.
func (p *Pipeline) RunWithInput(ctx context.Context, input interface{}, opts *RunOptions) (interface{}, error) {
	if opts == nil {
		opts = &RunOptions{}
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	log := opts.logger().With(zap.String("pipeline", p.Name), zap.String("run_id", runID))
	obs := opts.Observer
	if obs != nil {
		if err := obs.BeforePipeline(ctx, runID, p.Name, input); err != nil {
			return nil, errors.Wrap(err, "before pipeline")
		}
	}

	l := newLedger(input, opts, log)
	result, err := p.runStages(ctx, input, l, obs, runID)
	if relErr := l.releaseAll(); relErr != nil && err == nil {
		err = errors.Wrap(relErr, "release stage outputs")
	}
	if err == nil {
		err = l.verify()
	}
	if err != nil {
		result = nil
	} else if c, ok := result.(resource.Carrier); ok {
		result = c.Strip()
	}

	if obs != nil {
		if postErr := obs.AfterPipeline(ctx, runID, result, err); postErr != nil {
			// Don't mask pipeline error
			if err == nil {
				err = errors.Wrap(postErr, "after pipeline")
			}
		}
	}
	return result, err
}

func (p *Pipeline) runStages(ctx context.Context, input interface{}, l *ledger, obs Observer, runID string) (interface{}, error) {
	out := input
	for i, stage := range p.Stages {
		info := stage.Info()
		if obs != nil {
			if err := obs.BeforeStage(ctx, runID, i, info, out); err != nil {
				return nil, errors.Wrapf(err, "before stage %d", i)
			}
		}
		start := time.Now()
		var next interface{}
		in, stageErr := l.prepare(stage, out)
		if stageErr == nil {
			if stage.Run == nil {
				stageErr = errors.New("stage has no body")
			} else {
				next, stageErr = stage.Run(ctx, in)
			}
		}
		if stageErr == nil {
			l.produced(in, next)
		}
		duration := time.Since(start)
		if obs != nil {
			if postErr := obs.AfterStage(ctx, runID, i, info, in, next, stageErr, duration); postErr != nil {
				if stageErr == nil {
					stageErr = errors.Wrap(postErr, "after stage")
				}
			}
		}
		if stageErr != nil {
			return nil, errors.Wrapf(stageErr, "stage %d (%s)", i, stage.Name)
		}
		out = next
	}
	return out, nil
}

// MultiObserver fans every hook out to each observer in order. All observers
// are called; their errors are combined.
func MultiObserver(observers ...Observer) Observer {
	return multiObserver(observers)
}

type multiObserver []Observer

func (m multiObserver) BeforePipeline(ctx context.Context, runID, name string, payload interface{}) error {
	var errs error
	for _, o := range m {
		errs = errors.CombineErrors(errs, o.BeforePipeline(ctx, runID, name, payload))
	}
	return errs
}

func (m multiObserver) AfterPipeline(ctx context.Context, runID string, result interface{}, err error) error {
	var errs error
	for _, o := range m {
		errs = errors.CombineErrors(errs, o.AfterPipeline(ctx, runID, result, err))
	}
	return errs
}

func (m multiObserver) BeforeStage(ctx context.Context, runID string, stageIndex int, stage StageInfo, input interface{}) error {
	var errs error
	for _, o := range m {
		errs = errors.CombineErrors(errs, o.BeforeStage(ctx, runID, stageIndex, stage, input))
	}
	return errs
}

func (m multiObserver) AfterStage(ctx context.Context, runID string, stageIndex int, stage StageInfo, input, output interface{}, stageErr error, duration time.Duration) error {
	var errs error
	for _, o := range m {
		errs = errors.CombineErrors(errs, o.AfterStage(ctx, runID, stageIndex, stage, input, output, stageErr, duration))
	}
	return errs
}
