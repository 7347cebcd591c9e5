package sched

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	yaml "github.com/goccy/go-yaml"
)

// Config mirrors config.yml
type Config struct {
	SkipFramesBudgetMS int    `yaml:"skip_frames_budget_ms"` // 8 (by default)
	FrameMS            int    `yaml:"frame_ms"`              // 16 (by default)
	FixedStepMS        int    `yaml:"fixed_step_ms"`         // 20 (by default)
	PoolPrealloc       int    `yaml:"pool_prealloc"`         // 64 (by default)
	LogLevel           string `yaml:"log_level"`             // info (by default)
	LogFormat          string `yaml:"log_format"`            // console (by default)
	StatusCSV          string `yaml:"status_csv"`            // empty = disabled
}

// If the config file is not found, we use default values
func DefaultConfig() Config {
	return Config{
		SkipFramesBudgetMS: 8,
		FrameMS:            16,
		FixedStepMS:        20,
		PoolPrealloc:       64,
		LogLevel:           "info",
		LogFormat:          "console",
	}
}

func (c Config) SkipFramesBudget() time.Duration {
	return time.Duration(c.SkipFramesBudgetMS) * time.Millisecond
}

func (c Config) Frame() time.Duration { return time.Duration(c.FrameMS) * time.Millisecond }

func (c Config) FixedStep() time.Duration { return time.Duration(c.FixedStepMS) * time.Millisecond }

// Load reads YAML and overrides defaults; empty path or missing file = defaults only.
func Load(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return DefaultConfig(), fmt.Errorf("config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and clamps nonsense values.
func Parse(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), err
	}

	// sanity clamps
	if cfg.SkipFramesBudgetMS < 0 {
		cfg.SkipFramesBudgetMS = 0
	}
	if cfg.FrameMS <= 0 {
		cfg.FrameMS = 16
	}
	if cfg.FixedStepMS <= 0 {
		cfg.FixedStepMS = 20
	}
	if cfg.PoolPrealloc < 0 {
		cfg.PoolPrealloc = 0
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "console"
	}
	return cfg, nil
}
