package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/texbuild/texbuild/internal/compiler"
	"github.com/texbuild/texbuild/internal/metrics"
	"github.com/texbuild/texbuild/internal/source"
	"github.com/texbuild/texbuild/internal/workspace"
)

// CompileCmd implements the 'compile' command: one document to one PDF, with
// the exit code identifying the failure kind.
type CompileCmd struct {
	File    string        `arg:"" help:"Document to compile (.tex, .txt, or .md)" type:"existingfile"`
	Output  string        `short:"o" help:"Output PDF path (defaults to the input name with .pdf)"`
	Passes  int           `help:"Override the configured pass cap"`
	Timeout time.Duration `help:"Override the configured total compile budget"`
}

func (c *CompileCmd) Run(_ *Global, root *CLI) error {
	cfg, err := LoadConfig(root)
	if err != nil {
		return err
	}
	ctx := context.Background()

	eng := newEngine(cfg)
	if _, err := eng.Validate(ctx); err != nil {
		return err
	}

	raw, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("read %s: %w", c.File, err)
	}
	doc, err := source.Prepare(filepath.Base(c.File), raw, cfg.Build.MaxSourceBytes)
	if err != nil {
		return err
	}

	comp := compiler.New(
		workspace.NewManager(cfg.Build.Workdir),
		eng,
		cfg.Build.MaxPasses,
		cfg.Build.TimeoutDuration(),
		metrics.NoopRecorder{},
	)

	out := comp.Compile(ctx, compiler.Request{
		JobID:     uuid.NewString(),
		Filename:  doc.Filename,
		TeX:       doc.TeX,
		MaxPasses: c.Passes,
		Timeout:   c.Timeout,
	})

	PrintEntries(os.Stderr, out.Entries)
	if out.Status != compiler.StatusSucceeded {
		return out.Err
	}

	target := c.Output
	if target == "" {
		target = strings.TrimSuffix(c.File, filepath.Ext(c.File)) + ".pdf"
	}
	if err := os.WriteFile(target, out.Artifact, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}

	fmt.Printf("%s (%d passes, %s)\n", target, out.Passes, out.Elapsed.Round(time.Millisecond))
	return nil
}
