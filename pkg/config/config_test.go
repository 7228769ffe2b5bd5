package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestDefaultConfig verifies the defaults are usable as-is
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config failed validation: %v", err)
	}

	if len(cfg.Screenshots.Views) != 3 {
		t.Errorf("Expected 3 default views, got %d", len(cfg.Screenshots.Views))
	}

	if cfg.Contour.Tolerance != 1e-16 {
		t.Errorf("Expected default tolerance 1e-16, got %g", cfg.Contour.Tolerance)
	}
}

// TestLoadMissingConfig verifies that a missing file yields the defaults
func TestLoadMissingConfig(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Expected no error for missing config, got %v", err)
	}

	if cfg.Screenshots.SlicesPerView != DefaultConfig().Screenshots.SlicesPerView {
		t.Errorf("Expected default slicesPerView, got %d", cfg.Screenshots.SlicesPerView)
	}
}

// TestLoadConfigOverrides verifies that YAML values override defaults and
// that unspecified values keep their defaults
func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fsqc.yaml")
	yamlData := `
screenshots:
  views: [z]
  slicesPerView: 9
surfaces:
  - name: lh.white
    path: surf/lh.white
    color: "#ffff00"
  - name: lh.pial
    path: surf/lh.pial
    color: ff0000
`
	if err := os.WriteFile(path, []byte(yamlData), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if len(cfg.Screenshots.Views) != 1 || cfg.Screenshots.Views[0] != "z" {
		t.Errorf("Expected views [z], got %v", cfg.Screenshots.Views)
	}
	if cfg.Screenshots.SlicesPerView != 9 {
		t.Errorf("Expected slicesPerView 9, got %d", cfg.Screenshots.SlicesPerView)
	}
	if cfg.Screenshots.Margin != 0.1 {
		t.Errorf("Expected default margin 0.1, got %g", cfg.Screenshots.Margin)
	}
	if len(cfg.Surfaces) != 2 {
		t.Fatalf("Expected 2 surfaces, got %d", len(cfg.Surfaces))
	}
	if cfg.Surfaces[1].Color != "ff0000" {
		t.Errorf("Expected color ff0000, got %s", cfg.Surfaces[1].Color)
	}
}

// TestLoadInvalidConfig verifies that malformed YAML is reported
func TestLoadInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("screenshots: [unclosed"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected an error for malformed YAML")
	}
}

// TestSaveAndLoadConfig verifies a saved default config loads back
func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "fsqc.yaml")
	if err := CreateDefaultConfigFile(path); err != nil {
		t.Fatalf("Failed to create default config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Saved config failed validation: %v", err)
	}
}

// TestValidate verifies that bad values are rejected
func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no cores", func(c *Config) { c.Processing.NumCores = 0 }},
		{"no views", func(c *Config) { c.Screenshots.Views = nil }},
		{"no slices", func(c *Config) { c.Screenshots.SlicesPerView = 0 }},
		{"margin too large", func(c *Config) { c.Screenshots.Margin = 0.5 }},
		{"zero scale", func(c *Config) { c.Screenshots.Scale = 0 }},
		{"negative tolerance", func(c *Config) { c.Contour.Tolerance = -1 }},
		{"surface without path", func(c *Config) { c.Surfaces = []Surface{{Name: "lh.white"}} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Expected validation error for %s", tt.name)
			}
		})
	}
}
