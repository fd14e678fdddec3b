package compiler

import (
	"context"
	"log/slog"
	"time"

	"github.com/texbuild/texbuild/internal/engine"
	texerrors "github.com/texbuild/texbuild/internal/errors"
	"github.com/texbuild/texbuild/internal/logfields"
	"github.com/texbuild/texbuild/internal/metrics"
	"github.com/texbuild/texbuild/internal/texlog"
	"github.com/texbuild/texbuild/internal/workspace"
)

// Status is the terminal state of a compile job.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
)

// Request is one job's input after the source boundary: TeX always holds
// LaTeX. Zero MaxPasses or Timeout fall back to the compiler defaults.
type Request struct {
	JobID     string
	Filename  string
	TeX       []byte
	MaxPasses int
	Timeout   time.Duration
}

// Outcome is the immutable result of a finished job. Artifact is non-nil
// exactly when Status is succeeded; Err carries the taxonomy error otherwise.
type Outcome struct {
	Status      Status
	Artifact    []byte
	ContentType string
	Entries     []texlog.Entry
	Passes      int
	Elapsed     time.Duration
	Err         error
}

// Compiler drives the full pass sequence for single jobs. It is stateless
// across jobs and safe for concurrent use.
type Compiler struct {
	workspaces *workspace.Manager
	engine     *engine.Engine
	maxPasses  int
	timeout    time.Duration
	recorder   metrics.Recorder
}

// New returns a compiler with the given per-job defaults.
func New(ws *workspace.Manager, eng *engine.Engine, maxPasses int, timeout time.Duration, rec metrics.Recorder) *Compiler {
	if maxPasses < 1 {
		maxPasses = 1
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Compiler{workspaces: ws, engine: eng, maxPasses: maxPasses, timeout: timeout, recorder: rec}
}

// Compile runs the job to a terminal state. The total wall-clock budget is
// measured from the start of the first pass and covers all reruns.
func (c *Compiler) Compile(ctx context.Context, req Request) Outcome {
	maxPasses := req.MaxPasses
	if maxPasses < 1 {
		maxPasses = c.maxPasses
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}

	start := time.Now()

	ws, err := c.workspaces.Create(req.JobID, req.Filename, req.TeX)
	if err != nil {
		return c.finish(req.JobID, assembleFailure(err, nil, 0, time.Since(start)))
	}
	defer func() {
		if derr := ws.Destroy(); derr != nil {
			slog.Warn("Workspace teardown failed", logfields.JobID(req.JobID), logfields.Error(derr))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var entries []texlog.Entry
	passes := 0
	for {
		if ctx.Err() != nil {
			// Budget spent between passes; do not spawn a doomed process.
			return c.finish(req.JobID, assembleFailure(timeoutError(timeout), entries, passes, time.Since(start)))
		}
		passes++

		res, err := c.engine.Run(ctx, ws)
		if err != nil {
			return c.finish(req.JobID, assembleFailure(err, entries, passes, time.Since(start)))
		}
		c.recorder.ObservePassDuration(res.Elapsed)

		rep := texlog.Classify(res.Log)
		entries = append(entries, rep.Entries...)

		slog.Debug("Pass classified",
			logfields.JobID(req.JobID),
			logfields.Pass(passes),
			logfields.MaxPasses(maxPasses),
			slog.Bool("fatal", rep.Fatal),
			slog.Bool("needs_rerun", rep.NeedsRerun),
			slog.Bool("artifact", res.ArtifactPresent))

		switch {
		case res.TimedOut:
			return c.finish(req.JobID, assembleFailure(timeoutError(timeout), entries, passes, time.Since(start)))

		case rep.Fatal:
			// Fatal beats rerun: no further pass regardless of hints.
			return c.finish(req.JobID, assembleFailure(sourceErrorFromEntries(entries), entries, passes, time.Since(start)))

		case rep.NeedsRerun && passes < maxPasses:
			continue

		case rep.NeedsRerun:
			// Pass cap reached. With an artifact the document is accepted as
			// is and the hints downgrade to warnings; without one this is an
			// ordinary failure.
			if res.ArtifactPresent {
				for _, hint := range rep.RerunHints {
					entries = append(entries, texlog.Entry{Severity: texlog.SeverityWarning, Message: hint})
				}
				return c.finish(req.JobID, assembleSuccess(ws, entries, passes, time.Since(start)))
			}
			return c.finish(req.JobID, assembleFailure(
				texerrors.SourceError("compilation did not converge and produced no output"),
				entries, passes, time.Since(start)))

		case res.ArtifactPresent:
			return c.finish(req.JobID, assembleSuccess(ws, entries, passes, time.Since(start)))

		default:
			// Clean exit, nothing produced. Returning an empty result would
			// be worse than failing.
			return c.finish(req.JobID, assembleFailure(
				texerrors.SourceError("compilation produced no output document"),
				entries, passes, time.Since(start)))
		}
	}
}

// finish records metrics and the terminal log line for an outcome.
func (c *Compiler) finish(jobID string, out Outcome) Outcome {
	c.recorder.ObserveJobDuration(out.Elapsed)
	c.recorder.ObservePassCount(out.Passes)
	c.recorder.IncJobOutcome(outcomeMetric(out))

	slog.Info("Compile job finished",
		logfields.JobID(jobID),
		logfields.JobStatus(string(out.Status)),
		logfields.Pass(out.Passes),
		logfields.DurationMS(float64(out.Elapsed)/float64(time.Millisecond)),
		logfields.Error(out.Err))
	return out
}

func outcomeMetric(out Outcome) metrics.Outcome {
	switch out.Status {
	case StatusSucceeded:
		for _, e := range out.Entries {
			if e.Severity == texlog.SeverityWarning {
				return metrics.OutcomeWarning
			}
		}
		return metrics.OutcomeSucceeded
	case StatusTimedOut:
		return metrics.OutcomeTimedOut
	default:
		return metrics.OutcomeFailed
	}
}
