package transforms

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/dcshock/imgpipe/dataset"
	"github.com/dcshock/imgpipe/pipeline"
)

// MapValueToKey maps the text values of Input to 1-based keys in Output. The
// vocabulary is built at fit time in order of first occurrence; values unseen
// during fitting map to the missing key 0.
type MapValueToKey struct {
	Input  string
	Output string
}

func (m MapValueToKey) Name() string { return "map_value_to_key" }

func (m MapValueToKey) Schema(in dataset.Schema) (dataset.Schema, error) {
	if m.Input == "" || m.Output == "" {
		return nil, errors.New("map_value_to_key: input and output columns are required")
	}
	if _, err := in.Require(m.Input, dataset.KindText); err != nil {
		return nil, errors.Wrap(err, "map_value_to_key")
	}
	return in.With(m.Output, dataset.ColumnType{Kind: dataset.KindKey}), nil
}

func (m MapValueToKey) Fit(ctx context.Context, f *dataset.Frame) (pipeline.Stage, error) {
	values, err := f.TextColumn(m.Input)
	if err != nil {
		return pipeline.Stage{}, errors.Wrap(err, "map_value_to_key")
	}
	index := make(map[string]uint32)
	var vocab []string
	for _, v := range values {
		if _, ok := index[v]; ok {
			continue
		}
		vocab = append(vocab, v)
		index[v] = uint32(len(vocab))
	}
	if len(vocab) == 0 {
		return pipeline.Stage{}, errors.Newf("map_value_to_key: column %q has no values to learn", m.Input)
	}
	return pipeline.Borrow(m.Name(), pipeline.Transform(func(ctx context.Context, f *dataset.Frame) (*dataset.Frame, error) {
		values, err := f.TextColumn(m.Input)
		if err != nil {
			return nil, err
		}
		keys := make([]uint32, len(values))
		for i, v := range values {
			keys[i] = index[v]
		}
		return f.With(m.Output, dataset.KeyColumn{Keys: keys, Vocabulary: vocab})
	})), nil
}

// MapKeyToValue maps the keys of Input back to their vocabulary values in
// Output. Missing keys become the empty string.
type MapKeyToValue struct {
	Input  string
	Output string
}

func (m MapKeyToValue) Name() string { return "map_key_to_value" }

func (m MapKeyToValue) Schema(in dataset.Schema) (dataset.Schema, error) {
	if m.Input == "" || m.Output == "" {
		return nil, errors.New("map_key_to_value: input and output columns are required")
	}
	if _, err := in.Require(m.Input, dataset.KindKey); err != nil {
		return nil, errors.Wrap(err, "map_key_to_value")
	}
	return in.With(m.Output, dataset.ColumnType{Kind: dataset.KindText}), nil
}

func (m MapKeyToValue) Fit(ctx context.Context, f *dataset.Frame) (pipeline.Stage, error) {
	return pipeline.Borrow(m.Name(), pipeline.Transform(func(ctx context.Context, f *dataset.Frame) (*dataset.Frame, error) {
		keys, err := f.KeyColumn(m.Input)
		if err != nil {
			return nil, err
		}
		values := make(dataset.TextColumn, keys.Len())
		for i := range values {
			values[i], _ = keys.Value(i)
		}
		return f.With(m.Output, values)
	})), nil
}

// CacheCheckpoint marks the point of a chain whose output is materialized
// once while fitting, instead of re-running the prefix for every later
// estimator. At transform time it passes frames through unchanged.
type CacheCheckpoint struct{}

func (CacheCheckpoint) Name() string { return "cache_checkpoint" }

func (CacheCheckpoint) Schema(in dataset.Schema) (dataset.Schema, error) { return in, nil }

func (c CacheCheckpoint) Fit(ctx context.Context, f *dataset.Frame) (pipeline.Stage, error) {
	return pipeline.Borrow(c.Name(), func(ctx context.Context, in interface{}) (interface{}, error) {
		return in, nil
	}), nil
}

// Checkpoint marks the estimator for model.Chain.
func (CacheCheckpoint) Checkpoint() bool { return true }
