// Package config loads the tunable knobs for the reliability and
// framing layers from a YAML file, the way nishisan-dev-n-backup
// loads its own top-level settings struct.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the operator-tunable knobs for retry and sweep timing.
// The defaults returned by Default() match the reliability package's
// own constants; a YAML file only needs to set what it wants to
// override.
type Config struct {
	MaxRetries    int           `yaml:"max_retries"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	MaxFrameLen   uint32        `yaml:"max_frame_len"`
}

// Default returns the baseline defaults: 3 retries at 1s intervals, a
// 500ms sweep cadence, and a 10MiB frame ceiling.
func Default() Config {
	return Config{
		MaxRetries:    3,
		RetryInterval: time.Second,
		SweepInterval: 500 * time.Millisecond,
		MaxFrameLen:   10 * 1024 * 1024,
	}
}

// Load reads a YAML config file and overlays it onto Default().
// Fields absent from the file keep their default value.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.SweepInterval > cfg.RetryInterval {
		return cfg, fmt.Errorf("config: sweep_interval (%s) must not exceed retry_interval (%s)", cfg.SweepInterval, cfg.RetryInterval)
	}
	return cfg, nil
}
