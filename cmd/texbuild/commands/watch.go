package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/texbuild/texbuild/internal/compiler"
	"github.com/texbuild/texbuild/internal/config"
	"github.com/texbuild/texbuild/internal/logfields"
	"github.com/texbuild/texbuild/internal/metrics"
	"github.com/texbuild/texbuild/internal/source"
	"github.com/texbuild/texbuild/internal/watch"
	"github.com/texbuild/texbuild/internal/workspace"
)

// WatchCmd implements the 'watch' command: recompile documents in a directory
// tree whenever they change. The PDF lands next to its source file.
type WatchCmd struct {
	Dir      string        `arg:"" help:"Directory tree to watch" type:"existingdir" default:"."`
	Debounce time.Duration `help:"Override the configured debounce window"`
}

func (w *WatchCmd) Run(_ *Global, root *CLI) error {
	cfg, err := LoadConfig(root)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	eng := newEngine(cfg)
	banner, err := eng.Validate(ctx)
	if err != nil {
		return err
	}
	slog.Info("Engine validated", slog.String("banner", banner))

	comp := compiler.New(
		workspace.NewManager(cfg.Build.Workdir),
		eng,
		cfg.Build.MaxPasses,
		cfg.Build.TimeoutDuration(),
		metrics.NoopRecorder{},
	)

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = cfg.Watch.DebounceDuration()
	}

	watcher, err := watch.New(w.Dir, debounce, func(ctx context.Context, path string) {
		compileChanged(ctx, comp, cfg, path)
	})
	if err != nil {
		return err
	}

	fmt.Printf("Watching %s (debounce %s, Ctrl-C to stop)\n", w.Dir, debounce)
	return watcher.Run(ctx)
}

// compileChanged compiles one changed file and drops the PDF beside it.
// Failures are logged, never fatal: the next save gets a fresh attempt.
func compileChanged(ctx context.Context, comp *compiler.Compiler, cfg *config.Config, path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		slog.Error("Failed to read changed file", logfields.Path(path), logfields.Error(err))
		return
	}

	doc, err := source.Prepare(filepath.Base(path), raw, cfg.Build.MaxSourceBytes)
	if err != nil {
		slog.Error("Rejected changed file", logfields.Path(path), logfields.Error(err))
		return
	}

	out := comp.Compile(ctx, compiler.Request{
		JobID:    uuid.NewString(),
		Filename: doc.Filename,
		TeX:      doc.TeX,
	})

	PrintEntries(os.Stderr, out.Entries)
	if out.Status != compiler.StatusSucceeded {
		slog.Error("Compile failed", logfields.Path(path), logfields.Error(out.Err))
		return
	}

	target := strings.TrimSuffix(path, filepath.Ext(path)) + ".pdf"
	if err := os.WriteFile(target, out.Artifact, 0o644); err != nil {
		slog.Error("Failed to write artifact", logfields.Path(target), logfields.Error(err))
		return
	}
	slog.Info("Compiled", logfields.Path(path), slog.String("output", target), logfields.Pass(out.Passes))
}
