package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Load loads configuration with priority: defaults < file < flags.
func Load() (*Config, error) {
	// Start with defaults
	cfg := Default()

	// Try to load from file (explicit path takes priority)
	configPath := ConfigPath()
	if configPath == "" {
		configPath = findConfigFile()
	}

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", configPath, err)
		}
	}

	// Apply CLI flags (highest priority)
	applyFlags(cfg)

	return cfg, nil
}

// findConfigFile looks for config in standard locations.
func findConfigFile() string {
	candidates := []string{
		"./facerig.yaml",
		filepath.Join(ConfigDir(), "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ConfigDir returns the OS-appropriate config directory.
func ConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "Facerig")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "Facerig")
	default: // Linux and others
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "facerig")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "facerig")
	}
}

// loadFromFile loads config from a YAML file, merging with existing values.
// Unknown keys are rejected so typos do not silently fall back to defaults.
func loadFromFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return cfg.Validate()
}

// Validate rejects settings the evaluator or previewer cannot use.
func (c *Config) Validate() error {
	if c.Evaluate.Workers < 0 {
		return fmt.Errorf("evaluate.workers must be >= 0, got %d", c.Evaluate.Workers)
	}
	if c.Evaluate.ChunkSize < 0 {
		return fmt.Errorf("evaluate.chunk_size must be >= 0, got %d", c.Evaluate.ChunkSize)
	}
	if c.Preview.Width <= 0 || c.Preview.Height <= 0 {
		return fmt.Errorf("preview size must be positive, got %dx%d", c.Preview.Width, c.Preview.Height)
	}
	if c.Preview.FovY <= 0 || c.Preview.FovY >= 180 {
		return fmt.Errorf("preview.fov_y must be in (0, 180), got %g", c.Preview.FovY)
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must be >= 0, got %v", c.Watch.Debounce)
	}
	return nil
}
