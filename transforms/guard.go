package transforms

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/dcshock/imgpipe/dataset"
	"github.com/dcshock/imgpipe/pipeline"
)

// RequireRows fails a run whose frame has fewer than Min rows. Fitting on
// too few rows fails the same way.
type RequireRows struct {
	Min int
}

func (r RequireRows) Name() string { return "require_rows" }

func (r RequireRows) Schema(in dataset.Schema) (dataset.Schema, error) {
	if r.Min < 0 {
		return nil, errors.Newf("require_rows: min %d must not be negative", r.Min)
	}
	return in, nil
}

func (r RequireRows) Fit(ctx context.Context, f *dataset.Frame) (pipeline.Stage, error) {
	if f.Rows() < r.Min {
		return pipeline.Stage{}, errors.Newf("require_rows: fitting frame has %d rows, need %d", f.Rows(), r.Min)
	}
	s := pipeline.Validate(func(f *dataset.Frame) bool { return f.Rows() >= r.Min },
		fmt.Sprintf("require_rows: fewer than %d rows", r.Min))
	s.Name = r.Name()
	return s, nil
}
