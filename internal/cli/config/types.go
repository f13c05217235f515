// Package config provides configuration management for the pawseed CLI.
package config

import "github.com/leapstack-labs/pawseed/pkg/core"

// Config holds all CLI configuration options.
type Config struct {
	Backend      BackendConfig `koanf:"backend"`
	Symprec      float64       `koanf:"symprec"`
	TimeReversal bool          `koanf:"time_reversal"`
	StatePath    string        `koanf:"state_path"`
	OutputFormat string        `koanf:"output"`
	Verbose      bool          `koanf:"verbose"`
	Workers      int           `koanf:"workers"`
	Metrics      MetricsConfig `koanf:"metrics"`

	// ProjectRoot is the directory that relative paths resolve against.
	ProjectRoot string `koanf:"-"`
}

// BackendConfig selects the numerical backend.
type BackendConfig struct {
	Type    string            `koanf:"type"`
	Options map[string]string `koanf:"options"`
}

// Core converts to the backend registry's configuration type.
func (b BackendConfig) Core() core.BackendConfig {
	return core.BackendConfig{Type: b.Type, Options: b.Options}
}

// MetricsConfig controls phase-timing metrics.
type MetricsConfig struct {
	// Enabled records phase timings in Prometheus histograms and writes
	// them to Textfile in the text exposition format after a run.
	Enabled  bool   `koanf:"enabled"`
	Textfile string `koanf:"textfile"`
}

// Default configuration values.
const (
	DefaultBackend   = "reference"
	DefaultSymprec   = 1e-3
	DefaultStateFile = ".pawseed/state.db"
	DefaultOutput    = "auto" // TTY=text, non-TTY=markdown
	DefaultWorkers   = 1
	DefaultTextfile  = "pawseed.prom"
)

// ConfigFileNames are searched in order in the project root.
var ConfigFileNames = []string{"pawseed.yaml", "pawseed.yml"}
