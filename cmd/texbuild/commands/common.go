package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/texbuild/texbuild/internal/config"
	"github.com/texbuild/texbuild/internal/engine"
	"github.com/texbuild/texbuild/internal/texlog"
)

// Global context passed to subcommands if we need to share global state later.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"config.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Compile CompileCmd `cmd:"" help:"Compile a single document to PDF"`
	Serve   ServeCmd   `cmd:"" help:"Run the compile service with the HTTP API"`
	Watch   WatchCmd   `cmd:"" help:"Watch a directory and recompile documents on change"`
	Engines EnginesCmd `cmd:"" help:"Probe the configured TeX engine and print its banner"`
	Init    InitCmd    `cmd:"" help:"Initialize a new configuration file"`
}

// AfterApply runs after flag parsing; setup logging once.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

// LoadConfig resolves the effective configuration. A missing file at the
// default path falls back to built-in defaults so the CLI works out of the
// box; an explicitly named missing file is an error.
func LoadConfig(root *CLI) (*config.Config, error) {
	if root.Config == "config.yaml" {
		if _, err := os.Stat(root.Config); os.IsNotExist(err) {
			return config.Default(), nil
		}
	}
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newEngine builds the TeX engine from its config section.
func newEngine(cfg *config.Config) *engine.Engine {
	return engine.New(cfg.Engine.Binary, cfg.Engine.Args, cfg.Engine.ProbeMarker)
}

// PrintEntries writes classified diagnostics in a compact human format.
func PrintEntries(w io.Writer, entries []texlog.Entry) {
	for _, e := range entries {
		if e.Line > 0 {
			fmt.Fprintf(w, "%-7s line %d: %s\n", e.Severity, e.Line, e.Message)
		} else {
			fmt.Fprintf(w, "%-7s %s\n", e.Severity, e.Message)
		}
	}
}
