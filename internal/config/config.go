// Package config handles loading of the remeshing tunables.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/soypat/hrtfgrade/grading"
	"github.com/soypat/hrtfgrade/remesh"
	"gopkg.in/yaml.v3"
)

// Config holds the settings that are not exposed as command line flags.
type Config struct {
	Remesh      RemeshConfig      `yaml:"remesh"`
	Field       FieldConfig       `yaml:"field"`
	Logging     LoggingConfig     `yaml:"logging"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
}

// RemeshConfig holds the remeshing loop settings.
type RemeshConfig struct {
	Iterations     int     `yaml:"iterations"`
	Convergence    float64 `yaml:"convergence"`
	SplitFactor    float64 `yaml:"split_factor"`
	CollapseFactor float64 `yaml:"collapse_factor"`
	Workers        int     `yaml:"workers"` // 0 uses all CPUs
}

// FieldConfig holds the edge length field settings.
type FieldConfig struct {
	FalloffRadius   float64 `yaml:"falloff_radius"` // 0 reaches the midline
	CurvatureWeight float64 `yaml:"curvature_weight"`
	MidlineBand     float64 `yaml:"midline_band"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// DiagnosticsConfig names optional image outputs written after grading.
type DiagnosticsConfig struct {
	PreviewPNG   string `yaml:"preview_png"`
	HistogramPNG string `yaml:"histogram_png"`
}

// Default returns a Config with the values used when no file is given.
func Default() *Config {
	ro := remesh.DefaultOptions()
	return &Config{
		Remesh: RemeshConfig{
			Iterations:     ro.Iterations,
			Convergence:    ro.Convergence,
			SplitFactor:    ro.SplitFactor,
			CollapseFactor: ro.CollapseFactor,
			Workers:        ro.Workers,
		},
		Field: FieldConfig{
			CurvatureWeight: grading.DefaultCurvatureWeight,
			MidlineBand:     grading.DefaultMidlineBand,
		},
		Logging: LoggingConfig{
			Level: "warn",
		},
	}
}

// Load returns the defaults merged with the YAML file at path.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// loadFromFile loads config from a YAML file, merging with existing values.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	r := c.Remesh
	switch {
	case r.Iterations <= 0:
		return errors.New("remesh.iterations must be positive")
	case r.Convergence < 0:
		return errors.New("remesh.convergence must not be negative")
	case !(r.CollapseFactor > 0) || r.CollapseFactor >= r.SplitFactor:
		return errors.New("remesh.collapse_factor must be positive and below remesh.split_factor")
	case r.Workers < 0:
		return errors.New("remesh.workers must not be negative")
	case c.Field.FalloffRadius < 0 || c.Field.CurvatureWeight < 0:
		return errors.New("field settings must not be negative")
	case !(c.Field.MidlineBand > 0) || c.Field.MidlineBand > 0.5:
		return errors.New("field.midline_band must be in (0, 0.5]")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logging.level %q", c.Logging.Level)
	}
	return nil
}
