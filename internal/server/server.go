package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/netutil"

	"github.com/texbuild/texbuild/internal/config"
	texerrors "github.com/texbuild/texbuild/internal/errors"
	"github.com/texbuild/texbuild/internal/eventstore"
	"github.com/texbuild/texbuild/internal/gitsource"
	"github.com/texbuild/texbuild/internal/logfields"
	"github.com/texbuild/texbuild/internal/queue"
	"github.com/texbuild/texbuild/internal/source"
)

// Dispatcher is the queue surface the handlers drive.
type Dispatcher interface {
	Submit(ctx context.Context, doc *source.Document, opts queue.Options) (*queue.Handle, error)
	ActiveJobs() []queue.Job
	RecentJobs() []queue.Job
	JobSnapshot(id string) (queue.Job, bool)
	Length() int
	Workers() int
	Capacity() int
}

// GitFetcher retrieves a single file from a remote repository.
type GitFetcher interface {
	Fetch(ctx context.Context, req gitsource.Request) ([]byte, error)
}

// HistoryStore looks up job events that outlived the dispatcher's in-memory
// history ring.
type HistoryStore interface {
	GetByJobID(ctx context.Context, jobID string) ([]eventstore.Event, error)
}

// Options wires the server's collaborators. Dispatcher is required; the rest
// degrade gracefully when absent.
type Options struct {
	Dispatcher Dispatcher
	Git        GitFetcher   // nil disables /api/v1/compile/git
	History    HistoryStore // nil limits job lookups to the in-memory ring
	Metrics    http.Handler // nil disables /metrics
	EngineInfo string       // validated engine banner for the status surface
}

// Server serves the texbuild HTTP API on a single listener.
type Server struct {
	cfg          *config.Config
	opts         Options
	errorAdapter *texerrors.HTTPAdapter
	mchain       func(http.Handler) http.Handler

	httpServer *http.Server
	listener   net.Listener
	startTime  time.Time
}

// New constructs the server wiring. Start binds the listener.
func New(cfg *config.Config, opts Options) *Server {
	if opts.Dispatcher == nil {
		panic("server.New: dispatcher is required")
	}
	return &Server{
		cfg:          cfg,
		opts:         opts,
		errorAdapter: texerrors.NewHTTPAdapter(slog.Default()),
		mchain:       chain(slog.Default()),
		startTime:    time.Now(),
	}
}

// routes builds the endpoint table. Method-scoped patterns let the mux answer
// 405s itself.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/compile", s.handleCompile)
	mux.HandleFunc("POST /api/v1/compile/git", s.handleCompileGit)
	mux.HandleFunc("GET /api/v1/jobs", s.handleJobs)
	mux.HandleFunc("GET /api/v1/jobs/{id}", s.handleJob)
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if s.opts.Metrics != nil {
		mux.Handle("GET /metrics", s.opts.Metrics)
	}

	return mux
}

// Start binds the configured address and begins serving. The listener is
// pre-bound so an occupied port fails here, not asynchronously in the serve
// goroutine; it is capped with a connection limit so a flood of clients
// cannot exhaust file descriptors before the queue's own backpressure kicks
// in.
func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("http startup failed: %w", err)
	}
	if s.cfg.Server.MaxConns > 0 {
		ln = netutil.LimitListener(ln, s.cfg.Server.MaxConns)
	}
	s.listener = ln

	s.httpServer = &http.Server{
		Handler:      s.mchain(s.routes()),
		ReadTimeout:  s.cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: s.cfg.Server.WriteTimeoutDuration(),
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", logfields.Error(err))
		}
	}()

	slog.Info("HTTP server started",
		slog.String("addr", ln.Addr().String()),
		slog.Int("max_conns", s.cfg.Server.MaxConns))
	return nil
}

// Addr returns the bound address, which differs from the configured one when
// the config asked for an ephemeral port.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.cfg.Server.Addr
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts the server down, letting in-flight compiles finish
// until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	slog.Info("HTTP server stopped")
	return nil
}
