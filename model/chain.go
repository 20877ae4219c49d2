// Package model composes estimators into a chain, fits the chain to training
// data and applies the fitted pipeline lazily to new data.
package model

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/dcshock/imgpipe/dataset"
	"github.com/dcshock/imgpipe/pipeline"
)

// Estimator is a not-yet-fitted step of a chain. Schema reports the columns
// the fitted stage will produce for an input schema, or why the estimator
// cannot be composed there. Fit learns from a materialized frame.
type Estimator interface {
	Name() string
	Schema(in dataset.Schema) (dataset.Schema, error)
	Fit(ctx context.Context, f *dataset.Frame) (pipeline.Stage, error)
}

// checkpointer is implemented by estimators after which Fit materializes
// the training data once.
type checkpointer interface {
	Checkpoint() bool
}

// Chain is an ordered list of estimators. Chains are immutable; Append
// returns a new chain.
type Chain struct {
	name       string
	estimators []Estimator
}

// NewChain returns a chain of the given estimators.
func NewChain(name string, estimators ...Estimator) *Chain {
	return &Chain{name: name, estimators: append([]Estimator(nil), estimators...)}
}

// Name returns the chain name.
func (c *Chain) Name() string { return c.name }

// Append returns a chain with e added at the end.
func (c *Chain) Append(e Estimator) *Chain {
	return &Chain{name: c.name, estimators: append(append([]Estimator(nil), c.estimators...), e)}
}

// Estimators returns the chain's estimators in order.
func (c *Chain) Estimators() []Estimator {
	return append([]Estimator(nil), c.estimators...)
}

// Schema folds in through every estimator and returns the output schema.
func (c *Chain) Schema(in dataset.Schema) (dataset.Schema, error) {
	s := in
	for i, e := range c.estimators {
		next, err := e.Schema(s)
		if err != nil {
			return nil, errors.Wrapf(err, "estimator %d (%s)", i, e.Name())
		}
		s = next
	}
	return s, nil
}

// FitOptions is optional.
type FitOptions struct {
	Logger   *zap.Logger
	Observer pipeline.Observer
}

func (o *FitOptions) logger() *zap.Logger {
	if o == nil || o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

func (o *FitOptions) observer() pipeline.Observer {
	if o == nil {
		return nil
	}
	return o.Observer
}

// Fit checks that the chain composes over the training schema, then fits the
// estimators in order. Each estimator sees the training data run through the
// stages fitted before it; image columns are stripped from what it sees.
// Without a checkpoint the fitted prefix is re-run for every estimator, a
// CacheCheckpoint materializes it once and later estimators start from there.
//
// Fitting always runs the executor guarded: training images are never
// released by the chain.
func (c *Chain) Fit(ctx context.Context, training dataset.View, opts *FitOptions) (*Model, error) {
	if len(c.estimators) == 0 {
		return nil, errors.Newf("chain %q has no estimators", c.name)
	}
	out, err := c.Schema(training.Schema())
	if err != nil {
		return nil, errors.Wrapf(err, "chain %q", c.name)
	}
	log := opts.logger().With(zap.String("chain", c.name))

	base, err := training.Frame(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "materialize training data")
	}
	var stages []pipeline.Stage
	from := 0
	for i, e := range c.estimators {
		prefix := &pipeline.Pipeline{Name: fmt.Sprintf("%s/fit/%d", c.name, i), Stages: stages[from:]}
		res, err := prefix.RunWithInput(ctx, base, &pipeline.RunOptions{Observer: opts.observer(), Logger: log})
		if err != nil {
			return nil, errors.Wrapf(err, "fit estimator %d (%s)", i, e.Name())
		}
		in, ok := res.(*dataset.Frame)
		if !ok {
			return nil, errors.Newf("fit estimator %d (%s): prefix produced %T", i, e.Name(), res)
		}
		stage, err := e.Fit(ctx, in)
		if err != nil {
			return nil, errors.Wrapf(err, "fit estimator %d (%s)", i, e.Name())
		}
		stages = append(stages, stage)
		log.Debug("fitted estimator", zap.Int("index", i), zap.String("estimator", e.Name()), zap.Int("rows", in.Rows()))

		if cp, ok := e.(checkpointer); ok && cp.Checkpoint() {
			base, from = in, len(stages)
			log.Debug("cached training data", zap.Int("index", i), zap.Strings("columns", in.Names()))
		}
	}
	log.Info("fitted chain", zap.Int("stages", len(stages)))

	return &Model{name: c.name, stages: stages, schema: withoutImages(out)}, nil
}

func withoutImages(s dataset.Schema) dataset.Schema {
	out := make(dataset.Schema, 0, len(s))
	for _, f := range s {
		if f.Type.Kind != dataset.KindImage {
			out = append(out, f)
		}
	}
	return out
}
