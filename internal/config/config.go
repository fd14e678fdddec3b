// Package config loads and validates the texbuild configuration. The file is
// YAML with environment variable expansion; a .env/.env.local file is loaded
// first so ${VAR} references resolve in local setups.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Engine EngineConfig `yaml:"engine"`
	Build  BuildConfig  `yaml:"build"`
	Server ServerConfig `yaml:"server"`
	Events EventsConfig `yaml:"events"`
	Git    GitConfig    `yaml:"git"`
	Watch  WatchConfig  `yaml:"watch"`
}

// EngineConfig describes the external TeX engine.
type EngineConfig struct {
	// Binary is the engine executable; resolved via PATH when not absolute.
	Binary string `yaml:"binary"`
	// Args are extra arguments appended after the fixed invocation set.
	Args []string `yaml:"args,omitempty"`
	// ProbeMarker must appear in `binary --version` output for the engine
	// to be considered usable.
	ProbeMarker string `yaml:"probe_marker,omitempty"`
}

// BuildConfig tunes the compile orchestration core.
type BuildConfig struct {
	MaxPasses      int    `yaml:"max_passes"`
	Timeout        string `yaml:"timeout"`    // total per job, from first pass
	Workers        int    `yaml:"workers"`    // worker pool size
	QueueSize      int    `yaml:"queue_size"` // pending jobs beyond active workers
	MaxSourceBytes int64  `yaml:"max_source_bytes"`
	Workdir        string `yaml:"workdir"`        // workspace root, default $TMPDIR/texbuild
	SweepInterval  string `yaml:"sweep_interval"` // stale workspace sweep cadence
	SweepMaxAge    string `yaml:"sweep_max_age"`  // age before a leftover workspace is removed
}

// ServerConfig tunes the HTTP surface.
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	MaxConns     int    `yaml:"max_conns"`
	ReadTimeout  string `yaml:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout"`
}

// EventsConfig wires the optional job event sinks. Both sinks are disabled
// when their endpoint is empty.
type EventsConfig struct {
	StorePath   string `yaml:"store_path,omitempty"`   // sqlite file, ":memory:" allowed
	NATSURL     string `yaml:"nats_url,omitempty"`     // e.g. nats://localhost:4222
	NATSSubject string `yaml:"nats_subject,omitempty"` // subject prefix for job events
}

// GitConfig tunes compile-from-repository fetching.
type GitConfig struct {
	Depth   int    `yaml:"depth"`   // shallow clone depth; negative clones full history
	Timeout string `yaml:"timeout"` // clone budget
}

// WatchConfig tunes the filesystem watch command.
type WatchConfig struct {
	Debounce string `yaml:"debounce"`
}

// Load reads, expands, parses, defaults, and validates the configuration
// file at configPath.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content.
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Init creates a new configuration file with example content.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := Default()
	example.Events.StorePath = "./texbuild-events.db"

	data, err := yaml.Marshal(example)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// loadEnvFiles loads .env then .env.local without overriding existing
// process environment variables. Missing files are not an error.
func loadEnvFiles() {
	for _, p := range []string{".env", ".env.local"} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}
