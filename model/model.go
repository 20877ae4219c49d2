package model

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/dcshock/imgpipe/dataset"
	"github.com/dcshock/imgpipe/pipeline"
)

// Model is a fitted chain.
type Model struct {
	name   string
	stages []pipeline.Stage
	schema dataset.Schema
}

// Name returns the name of the chain the model was fitted from.
func (m *Model) Name() string { return m.name }

// Stages returns the fitted stages in order.
func (m *Model) Stages() []pipeline.Stage {
	return append([]pipeline.Stage(nil), m.stages...)
}

// Pipeline returns the fitted stages as a pipeline.
func (m *Model) Pipeline() *pipeline.Pipeline {
	return &pipeline.Pipeline{Name: m.name, Stages: m.Stages()}
}

// Transform returns a lazy view of source run through the model. Nothing
// runs until the view is materialized, and every materialization runs the
// whole pipeline again with its own run ID. opts may be nil.
func (m *Model) Transform(source dataset.View, opts *pipeline.RunOptions) dataset.View {
	var o pipeline.RunOptions
	if opts != nil {
		o = *opts
	}
	return &transformed{model: m, source: source, opts: o}
}

type transformed struct {
	model  *Model
	source dataset.View
	opts   pipeline.RunOptions
	runs   atomic.Int64
}

func (v *transformed) Schema() dataset.Schema {
	return append(dataset.Schema(nil), v.model.schema...)
}

func (v *transformed) Frame(ctx context.Context) (*dataset.Frame, error) {
	src, err := v.source.Frame(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "materialize source")
	}
	n := v.runs.Add(1)
	opts := v.opts
	if opts.RunID != "" {
		opts.RunID = fmt.Sprintf("%s-%d", opts.RunID, n)
	}
	out, err := v.model.Pipeline().RunWithInput(ctx, src, &opts)
	if err != nil {
		return nil, errors.Wrapf(err, "transform %q", v.model.name)
	}
	f, ok := out.(*dataset.Frame)
	if !ok {
		return nil, errors.Newf("transform %q: pipeline produced %T", v.model.name, out)
	}
	return f, nil
}

// Materializations reports how many times view has been run, for views
// returned by Transform.
func Materializations(view dataset.View) int64 {
	if t, ok := view.(*transformed); ok {
		return t.runs.Load()
	}
	return 0
}
