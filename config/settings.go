package config

import (
	"github.com/cockroachdb/errors"
	"github.com/kelseyhightower/envconfig"
)

// Settings are the process-wide settings read from IMGPIPE_* environment
// variables.
type Settings struct {
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogDevelopment bool   `envconfig:"LOG_DEV" default:"false"`

	// RunDB is the sqlite database file run history is recorded in; empty
	// disables recording.
	RunDB string `envconfig:"RUN_DB"`

	// Unguarded runs transforms without ownership tracking.
	Unguarded bool `envconfig:"UNGUARDED" default:"false"`
}

// LoadSettings reads Settings from the environment.
func LoadSettings() (*Settings, error) {
	var s Settings
	if err := envconfig.Process("imgpipe", &s); err != nil {
		return nil, errors.Wrap(err, "load settings")
	}
	return &s, nil
}
