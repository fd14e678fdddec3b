package config

import (
	"os"
	"path/filepath"
	"time"
)

// Default values for the orchestration core. The pass cap and total timeout
// match the behavior of the tool this service replaces.
const (
	DefaultMaxPasses      = 3
	DefaultTimeout        = 60 * time.Second
	DefaultWorkers        = 2
	DefaultQueueSize      = 32
	DefaultMaxSourceBytes = 10 << 20 // 10 MiB
	DefaultSweepInterval  = 10 * time.Minute
	DefaultSweepMaxAge    = time.Hour
	DefaultEngineBinary   = "pdflatex"
	DefaultProbeMarker    = "pdfTeX"
	DefaultServerAddr     = ":8080"
	DefaultMaxConns       = 256
	DefaultReadTimeout    = 30 * time.Second
	DefaultWriteTimeout   = 2 * time.Minute
	DefaultGitDepth       = 1
	DefaultGitTimeout     = 60 * time.Second
	DefaultWatchDebounce  = 500 * time.Millisecond
	DefaultNATSSubject    = "texbuild.jobs"
)

func (c *Config) applyDefaults() {
	if c.Engine.Binary == "" {
		c.Engine.Binary = DefaultEngineBinary
	}
	if c.Engine.ProbeMarker == "" {
		c.Engine.ProbeMarker = DefaultProbeMarker
	}

	if c.Build.MaxPasses <= 0 {
		c.Build.MaxPasses = DefaultMaxPasses
	}
	if c.Build.Timeout == "" {
		c.Build.Timeout = DefaultTimeout.String()
	}
	if c.Build.Workers <= 0 {
		c.Build.Workers = DefaultWorkers
	}
	if c.Build.QueueSize <= 0 {
		c.Build.QueueSize = DefaultQueueSize
	}
	if c.Build.MaxSourceBytes <= 0 {
		c.Build.MaxSourceBytes = DefaultMaxSourceBytes
	}
	if c.Build.Workdir == "" {
		c.Build.Workdir = filepath.Join(os.TempDir(), "texbuild")
	}
	if c.Build.SweepInterval == "" {
		c.Build.SweepInterval = DefaultSweepInterval.String()
	}
	if c.Build.SweepMaxAge == "" {
		c.Build.SweepMaxAge = DefaultSweepMaxAge.String()
	}

	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Server.MaxConns <= 0 {
		c.Server.MaxConns = DefaultMaxConns
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = DefaultReadTimeout.String()
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = DefaultWriteTimeout.String()
	}

	if c.Events.NATSSubject == "" {
		c.Events.NATSSubject = DefaultNATSSubject
	}

	if c.Git.Depth == 0 {
		c.Git.Depth = DefaultGitDepth
	}
	if c.Git.Timeout == "" {
		c.Git.Timeout = DefaultGitTimeout.String()
	}

	if c.Watch.Debounce == "" {
		c.Watch.Debounce = DefaultWatchDebounce.String()
	}
}

// Duration getters parse the already-validated string fields. Validate
// guarantees parseability, so errors are ignored at call sites.

func (b BuildConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(b.Timeout)
	return d
}

func (b BuildConfig) SweepIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(b.SweepInterval)
	return d
}

func (b BuildConfig) SweepMaxAgeDuration() time.Duration {
	d, _ := time.ParseDuration(b.SweepMaxAge)
	return d
}

func (s ServerConfig) ReadTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(s.ReadTimeout)
	return d
}

func (s ServerConfig) WriteTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(s.WriteTimeout)
	return d
}

func (g GitConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(g.Timeout)
	return d
}

func (w WatchConfig) DebounceDuration() time.Duration {
	d, _ := time.ParseDuration(w.Debounce)
	return d
}
