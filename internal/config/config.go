// Package config handles rigtool configuration loading and management.
package config

import "time"

// Config holds all rigtool settings.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Evaluate EvaluateConfig `yaml:"evaluate"`
	Paths    PathsConfig    `yaml:"paths"`
	Preview  PreviewConfig  `yaml:"preview"`
	Watch    WatchConfig    `yaml:"watch"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
	JSON    bool   `yaml:"json"`
}

// EvaluateConfig tunes the composite evaluator.
type EvaluateConfig struct {
	Workers         int  `yaml:"workers"`    // 0 = GOMAXPROCS
	ChunkSize       int  `yaml:"chunk_size"` // vertices per task
	SkipZeroWeights bool `yaml:"skip_zero_weights"`
}

// PathsConfig holds default input and output locations.
type PathsConfig struct {
	Rig    string `yaml:"rig"`    // rig definition YAML
	Basis  string `yaml:"basis"`  // OBJ/STL/PLY basis mesh; empty uses the rig's own
	Output string `yaml:"output"` // directory for generated files
}

// PreviewConfig holds PNG preview settings.
type PreviewConfig struct {
	Width       int     `yaml:"width"`
	Height      int     `yaml:"height"`
	FovY        float64 `yaml:"fov_y"`
	Supersample int     `yaml:"supersample"`
}

// WatchConfig holds file watching settings.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
		Evaluate: EvaluateConfig{
			Workers:         0,
			ChunkSize:       4096,
			SkipZeroWeights: true,
		},
		Paths: PathsConfig{
			Rig:    "rig.yaml",
			Output: "out",
		},
		Preview: PreviewConfig{
			Width:       512,
			Height:      512,
			FovY:        30,
			Supersample: 2,
		},
		Watch: WatchConfig{
			Debounce: 200 * time.Millisecond,
		},
	}
}
