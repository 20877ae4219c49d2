package config

import (
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// ChainConfig is the root structure for an estimator chain definition (e.g.
// from YAML).
type ChainConfig struct {
	Name      string     `yaml:"name"`
	Stages    []StageRef `yaml:"stages"`
	Observers []string   `yaml:"observers"` // optional: names registered in BuildOptions.ObserverRegistry
	Unguarded bool       `yaml:"unguarded"` // transform without ownership tracking
	Data      DataConfig `yaml:"data"`
}

// DataConfig describes the random image data a chain is run on.
type DataConfig struct {
	Images int    `yaml:"images"`
	Size   int    `yaml:"size"`
	Seed   uint64 `yaml:"seed"`
}

// StageRef is a single chain entry: either a plain estimator kind or kind +
// options. In YAML, a stage can be written as:
//   - cache_checkpoint
//   - name: resize_images
//     input: SourceImage
//     output: ResizedImage
//     width: 2
//     height: 2
//
// Options that do not apply to the kind are ignored.
type StageRef struct {
	Name string `yaml:"name"`

	Input  string `yaml:"input"`
	Output string `yaml:"output"`

	// resize_images
	Width    int    `yaml:"width"`
	Height   int    `yaml:"height"`
	Sampler  string `yaml:"sampler"`
	SameSize string `yaml:"same_size"`

	// extract_pixels
	Interleave    bool    `yaml:"interleave"`
	Alpha         bool    `yaml:"alpha"`
	Offset        float64 `yaml:"offset"`
	Scale         float64 `yaml:"scale"`
	ReleaseSource bool    `yaml:"release_source"`

	// require_rows
	MinRows int `yaml:"min_rows"`

	// lbfgs_maximum_entropy
	Label         string  `yaml:"label"`
	Features      string  `yaml:"features"`
	L2            float64 `yaml:"l2"`
	MaxIterations int     `yaml:"max_iterations"`
	Tolerance     float64 `yaml:"tolerance"`
	History       int     `yaml:"history"`
}

// UnmarshalYAML allows a stage to be a string (kind only) or a struct.
func (s *StageRef) UnmarshalYAML(value *yaml.Node) error {
	var nameOnly string
	if err := value.Decode(&nameOnly); err == nil {
		s.Name = nameOnly
		return nil
	}
	type raw StageRef
	return value.Decode((*raw)(s))
}

// ParseChainConfig parses YAML bytes into a single ChainConfig.
func ParseChainConfig(data []byte) (*ChainConfig, error) {
	var cfg ChainConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse chain config")
	}
	return &cfg, nil
}

// MultiChainConfig is the root structure for a file that defines multiple
// chains. Top-level key is "chains"; each value is a chain.
type MultiChainConfig struct {
	Chains map[string]ChainConfig `yaml:"chains"`
}

// ParseMultiChainConfig parses YAML bytes that contain a "chains" map from
// name to chain config.
// Example YAML:
//
//	chains:
//	  classify:
//	    stages:
//	      - name: resize_images
//	        input: SourceImage
//	        output: ResizedImage
//	        width: 2
//	        height: 2
//	      - cache_checkpoint
func ParseMultiChainConfig(data []byte) (*MultiChainConfig, error) {
	var cfg MultiChainConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse chain config")
	}
	return &cfg, nil
}
