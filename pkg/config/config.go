// Package config provides configuration loading and management for fsqc.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Surface names one surface file to contour and the color to draw it with
type Surface struct {
	// Name labels the surface in logs and summaries
	Name string `yaml:"name"`

	// Path is the FreeSurfer or STL surface file
	Path string `yaml:"path"`

	// Color is a hex color such as "#ff0000" or "ff0000"
	Color string `yaml:"color"`
}

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many CPU cores to use for parallel processing
		NumCores int `yaml:"numCores"`
	} `yaml:"processing"`

	// Contour extraction parameters
	Contour struct {
		// Tolerance is the distance under which two contour points are merged
		Tolerance float64 `yaml:"tolerance"`

		// Epsilon is the smallest scalar difference interpolated across an edge
		Epsilon float64 `yaml:"epsilon"`
	} `yaml:"contour"`

	// Screenshot parameters
	Screenshots struct {
		// Views lists the axes perpendicular to the rendered slices
		Views []string `yaml:"views"`

		// SlicesPerView is the number of cut planes rendered for each view
		SlicesPerView int `yaml:"slicesPerView"`

		// Margin is the fraction of the surfaces' extent skipped at each end
		Margin float64 `yaml:"margin"`

		// LineWidth is the contour stroke width in output pixels
		LineWidth float64 `yaml:"lineWidth"`

		// Scale is the number of output pixels per voxel
		Scale float64 `yaml:"scale"`
	} `yaml:"screenshots"`

	// Surfaces to draw over the volume
	Surfaces []Surface `yaml:"surfaces"`

	// Output parameters
	Output struct {
		// Dir is the directory screenshots are written to
		Dir string `yaml:"dir"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumCores = runtime.NumCPU()

	cfg.Contour.Tolerance = 1e-16
	cfg.Contour.Epsilon = 1e-12

	cfg.Screenshots.Views = []string{"x", "y", "z"}
	cfg.Screenshots.SlicesPerView = 5
	cfg.Screenshots.Margin = 0.1
	cfg.Screenshots.LineWidth = 1.5
	cfg.Screenshots.Scale = 2

	cfg.Output.Dir = "screenshots"
	cfg.Output.Verbose = true

	return cfg
}

// Validate checks the configuration for values the pipeline cannot use
func (c *Config) Validate() error {
	if c.Processing.NumCores < 1 {
		return fmt.Errorf("numCores must be at least 1, got %d", c.Processing.NumCores)
	}
	if c.Contour.Tolerance < 0 {
		return fmt.Errorf("contour tolerance must be non-negative, got %g", c.Contour.Tolerance)
	}
	if len(c.Screenshots.Views) == 0 {
		return fmt.Errorf("at least one view is required")
	}
	if c.Screenshots.SlicesPerView < 1 {
		return fmt.Errorf("slicesPerView must be at least 1, got %d", c.Screenshots.SlicesPerView)
	}
	if c.Screenshots.Margin < 0 || c.Screenshots.Margin >= 0.5 {
		return fmt.Errorf("margin must be in [0, 0.5), got %g", c.Screenshots.Margin)
	}
	if c.Screenshots.Scale <= 0 {
		return fmt.Errorf("scale must be positive, got %g", c.Screenshots.Scale)
	}
	for i, s := range c.Surfaces {
		if s.Path == "" {
			return fmt.Errorf("surface %d (%s) has no path", i, s.Name)
		}
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
