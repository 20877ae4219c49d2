package config

import (
	"github.com/cockroachdb/errors"

	"github.com/dcshock/imgpipe/model"
	"github.com/dcshock/imgpipe/pipeline"
)

// BuildOptions configures how observers named in a chain config are resolved.
type BuildOptions struct {
	// ObserverRegistry is used when ChainConfig.Observers is set.
	ObserverRegistry *ObserverRegistry
}

// BuildChain builds a model.Chain from config and registry. Stage kinds in
// config must be registered. The chain's schema is checked when it is fitted.
func BuildChain(reg *Registry, cfg *ChainConfig) (*model.Chain, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if reg == nil {
		return nil, errors.New("registry is nil")
	}
	estimators := make([]model.Estimator, 0, len(cfg.Stages))
	for i, ref := range cfg.Stages {
		if ref.Name == "" {
			return nil, errors.Newf("stage %d: name required", i)
		}
		factory, ok := reg.Get(ref.Name)
		if !ok {
			return nil, errors.Newf("stage %d: %q not in registry", i, ref.Name)
		}
		est, err := factory(ref)
		if err != nil {
			return nil, errors.Wrapf(err, "stage %d (%q)", i, ref.Name)
		}
		estimators = append(estimators, est)
	}
	return model.NewChain(cfg.Name, estimators...), nil
}

// BuildObserver returns a pipeline.Observer for the config's Observers list by
// looking up each name in BuildOptions.ObserverRegistry and combining them
// with pipeline.MultiObserver. If cfg.Observers is empty or
// opts.ObserverRegistry is nil, returns (nil, nil); the caller can pass their
// own observer. If any observer name is not registered, returns an error.
func BuildObserver(cfg *ChainConfig, opts *BuildOptions) (pipeline.Observer, error) {
	if cfg == nil || len(cfg.Observers) == 0 || opts == nil || opts.ObserverRegistry == nil {
		return nil, nil
	}
	list := make([]pipeline.Observer, 0, len(cfg.Observers))
	for i, name := range cfg.Observers {
		obs, ok := opts.ObserverRegistry.Get(name)
		if !ok {
			return nil, errors.Newf("observer %d: %q not in registry", i, name)
		}
		list = append(list, obs)
	}
	return pipeline.MultiObserver(list...), nil
}

// BuildAllChains builds a model.Chain for each entry in multi. Keys are chain
// names. If a chain config's Name is empty, the map key is used.
func BuildAllChains(reg *Registry, multi *MultiChainConfig) (map[string]*model.Chain, error) {
	if multi == nil {
		return nil, errors.New("MultiChainConfig is nil")
	}
	out := make(map[string]*model.Chain, len(multi.Chains))
	for name, cfg := range multi.Chains {
		if cfg.Name == "" {
			cfg.Name = name
		}
		c, err := BuildChain(reg, &cfg)
		if err != nil {
			return nil, errors.Wrapf(err, "chain %q", name)
		}
		out[name] = c
	}
	return out, nil
}
