package config

import (
	"github.com/dcshock/imgpipe/model"
	"github.com/dcshock/imgpipe/trainers"
	"github.com/dcshock/imgpipe/transforms"
)

// DefaultRegistry returns a registry with every built-in estimator kind.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("resize_images", func(ref StageRef) (model.Estimator, error) {
		return transforms.ResizeImages{
			Input: ref.Input, Output: ref.Output,
			Width: ref.Width, Height: ref.Height,
			Sampler:  transforms.Sampler(ref.Sampler),
			SameSize: transforms.SameSizeMode(ref.SameSize),
		}, nil
	})
	r.Register("extract_pixels", func(ref StageRef) (model.Estimator, error) {
		return transforms.ExtractPixels{
			Input: ref.Input, Output: ref.Output,
			Interleave: ref.Interleave, Alpha: ref.Alpha,
			Offset: ref.Offset, Scale: ref.Scale,
			ReleaseSource: ref.ReleaseSource,
		}, nil
	})
	r.Register("map_value_to_key", func(ref StageRef) (model.Estimator, error) {
		return transforms.MapValueToKey{Input: ref.Input, Output: ref.Output}, nil
	})
	r.Register("map_key_to_value", func(ref StageRef) (model.Estimator, error) {
		return transforms.MapKeyToValue{Input: ref.Input, Output: ref.Output}, nil
	})
	r.Register("lbfgs_maximum_entropy", func(ref StageRef) (model.Estimator, error) {
		return trainers.LbfgsMaximumEntropy{
			Label: ref.Label, Features: ref.Features,
			L2: ref.L2, MaxIterations: ref.MaxIterations,
			Tolerance: ref.Tolerance, History: ref.History,
			PredictedLabel: ref.Output,
		}, nil
	})
	r.Register("require_rows", func(ref StageRef) (model.Estimator, error) {
		return transforms.RequireRows{Min: ref.MinRows}, nil
	})
	r.Register("cache_checkpoint", func(ref StageRef) (model.Estimator, error) {
		return transforms.CacheCheckpoint{}, nil
	})
	return r
}
