package config

import (
	"fmt"
	"time"
)

// Validate checks invariants that defaults cannot repair. It must be called
// after applyDefaults (Load does both).
func (c *Config) Validate() error {
	if c.Engine.Binary == "" {
		return fmt.Errorf("engine.binary must not be empty")
	}

	for field, value := range map[string]string{
		"build.timeout":        c.Build.Timeout,
		"build.sweep_interval": c.Build.SweepInterval,
		"build.sweep_max_age":  c.Build.SweepMaxAge,
		"server.read_timeout":  c.Server.ReadTimeout,
		"server.write_timeout": c.Server.WriteTimeout,
		"git.timeout":          c.Git.Timeout,
		"watch.debounce":       c.Watch.Debounce,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s: duration must be positive, got %q", field, value)
		}
	}

	if c.Build.MaxPasses < 1 {
		return fmt.Errorf("build.max_passes must be at least 1, got %d", c.Build.MaxPasses)
	}
	if c.Build.Workers < 1 {
		return fmt.Errorf("build.workers must be at least 1, got %d", c.Build.Workers)
	}
	if c.Build.QueueSize < 0 {
		return fmt.Errorf("build.queue_size must not be negative, got %d", c.Build.QueueSize)
	}
	if c.Build.MaxSourceBytes < 1 {
		return fmt.Errorf("build.max_source_bytes must be positive, got %d", c.Build.MaxSourceBytes)
	}
	return nil
}
