package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/texbuild/texbuild/internal/compiler"
	"github.com/texbuild/texbuild/internal/config"
	"github.com/texbuild/texbuild/internal/events"
	"github.com/texbuild/texbuild/internal/eventstore"
	"github.com/texbuild/texbuild/internal/gitsource"
	"github.com/texbuild/texbuild/internal/logfields"
	"github.com/texbuild/texbuild/internal/metrics"
	"github.com/texbuild/texbuild/internal/queue"
	"github.com/texbuild/texbuild/internal/server"
	"github.com/texbuild/texbuild/internal/workspace"
)

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	Addr string `help:"Override the configured listen address"`
}

func (s *ServeCmd) Run(_ *Global, root *CLI) error {
	cfg, err := LoadConfig(root)
	if err != nil {
		return err
	}
	if s.Addr != "" {
		cfg.Server.Addr = s.Addr
	}
	return RunServe(cfg)
}

// RunServe wires the full service and blocks until a shutdown signal.
func RunServe(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Probe the engine before anything else: a service that cannot compile
	// should fail at startup, not on the first request.
	eng := newEngine(cfg)
	banner, err := eng.Validate(ctx)
	if err != nil {
		return err
	}
	slog.Info("Engine validated", logfields.Engine(cfg.Engine.Binary), slog.String("banner", banner))

	manager := workspace.NewManager(cfg.Build.Workdir)
	if n, err := manager.Sweep(cfg.Build.SweepMaxAgeDuration()); err != nil {
		slog.Warn("Startup workspace sweep failed", logfields.Error(err))
	} else if n > 0 {
		slog.Info("Removed stale workspaces from previous runs", slog.Int("count", n))
	}

	rec := metrics.NewPrometheusRecorder(nil)
	comp := compiler.New(manager, eng, cfg.Build.MaxPasses, cfg.Build.TimeoutDuration(), rec)

	disp := queue.New(cfg.Build.QueueSize, cfg.Build.Workers, comp)
	disp.SetRecorder(rec)

	var store *eventstore.SQLiteStore
	if cfg.Events.StorePath != "" {
		store, err = eventstore.NewSQLiteStore(cfg.Events.StorePath)
		if err != nil {
			return fmt.Errorf("open event store: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				slog.Warn("Event store close failed", logfields.Error(err))
			}
		}()
		disp.AddSink(eventstore.NewSink(store))
		slog.Info("Event store enabled", logfields.Path(cfg.Events.StorePath))
	}

	if cfg.Events.NATSURL != "" {
		pub, err := events.NewPublisher(cfg.Events.NATSURL, cfg.Events.NATSSubject)
		if err != nil {
			return fmt.Errorf("connect event publisher: %w", err)
		}
		defer func() {
			if err := pub.Close(); err != nil {
				slog.Warn("Event publisher close failed", logfields.Error(err))
			}
		}()
		disp.AddSink(pub)
	}

	disp.Start(ctx)

	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create sweep scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(cfg.Build.SweepIntervalDuration()),
		gocron.NewTask(func() {
			n, err := manager.Sweep(cfg.Build.SweepMaxAgeDuration())
			if err != nil {
				slog.Warn("Workspace sweep failed", logfields.Error(err))
				return
			}
			if n > 0 {
				slog.Info("Swept stale workspaces", slog.Int("count", n))
			}
		}),
		gocron.WithName("workspace-sweep"),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule workspace sweep: %w", err)
	}
	sched.Start()

	var history server.HistoryStore
	if store != nil {
		history = store
	}
	srv := server.New(cfg, server.Options{
		Dispatcher: disp,
		Git:        gitsource.New(cfg.Git),
		History:    history,
		Metrics:    rec.HTTPHandler(),
		EngineInfo: banner,
	})
	if err := srv.Start(ctx); err != nil {
		return err
	}

	slog.Info("texbuild service ready",
		slog.String("addr", srv.Addr()),
		slog.Int("workers", disp.Workers()),
		slog.Int("queue_capacity", disp.Capacity()))

	<-ctx.Done()
	slog.Info("Shutdown signal received, stopping...")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()

	if err := srv.Stop(stopCtx); err != nil {
		slog.Warn("HTTP shutdown failed", logfields.Error(err))
	}
	if err := sched.Shutdown(); err != nil {
		slog.Warn("Scheduler shutdown failed", logfields.Error(err))
	}
	disp.Stop(stopCtx)

	slog.Info("Service stopped")
	return nil
}
