package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/texbuild/texbuild/internal/compiler"
	texerrors "github.com/texbuild/texbuild/internal/errors"
	"github.com/texbuild/texbuild/internal/logfields"
	"github.com/texbuild/texbuild/internal/metrics"
	"github.com/texbuild/texbuild/internal/source"
	"github.com/texbuild/texbuild/internal/texlog"
)

// JobStatus is the dispatcher-level view of a job's life.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusTimedOut  JobStatus = "timed_out"
)

// Job is the dispatcher's record of one compile request. Artifact bytes are
// never stored here; they live only on the handle until the caller takes
// them.
type Job struct {
	ID          string        `json:"id"`
	Filename    string        `json:"filename"`
	Kind        string        `json:"kind"`
	Status      JobStatus     `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Passes      int           `json:"passes,omitempty"`
	Warnings    int           `json:"warnings,omitempty"`
	Error       string        `json:"error,omitempty"`

	req    compiler.Request
	handle *Handle
	cancel context.CancelFunc
}

// Handle is the caller's future for a submitted job. Outcome is valid once
// Done is closed.
type Handle struct {
	JobID string

	done chan struct{}
	out  compiler.Outcome
}

// Done is closed when the job reaches a terminal state.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Outcome returns the terminal result. Callers must wait on Done first.
func (h *Handle) Outcome() compiler.Outcome {
	return h.out
}

// Wait blocks until the job finishes or ctx is done.
func (h *Handle) Wait(ctx context.Context) (compiler.Outcome, error) {
	select {
	case <-h.done:
		return h.out, nil
	case <-ctx.Done():
		return compiler.Outcome{}, ctx.Err()
	}
}

// Options are the per-job overrides accepted at submission.
type Options struct {
	MaxPasses int
	Timeout   time.Duration
}

// Compiler executes one job's full pass sequence.
type Compiler interface {
	Compile(ctx context.Context, req compiler.Request) compiler.Outcome
}

// EventSink receives job lifecycle events. Sink failures are logged, never
// propagated: persistence problems must not fail compiles.
type EventSink interface {
	JobQueued(ctx context.Context, job Job) error
	JobStarted(ctx context.Context, job Job, workerID string) error
	JobFinished(ctx context.Context, job Job) error
}

// Dispatcher owns the bounded job buffer, the worker pool, the active job
// table, and the history ring.
type Dispatcher struct {
	jobs        chan *Job
	workers     int
	maxSize     int
	mu          sync.RWMutex
	active      map[string]*Job
	history     []*Job
	historySize int
	stopChan    chan struct{}
	wg          sync.WaitGroup
	compiler    Compiler
	recorder    metrics.Recorder
	sinks       []EventSink
}

// New creates a dispatcher over comp with the given buffer size and worker
// count.
func New(maxSize, workers int, comp Compiler) *Dispatcher {
	if maxSize <= 0 {
		maxSize = 32
	}
	if workers <= 0 {
		workers = 2
	}
	if comp == nil {
		panic("queue.New: compiler is required")
	}

	return &Dispatcher{
		jobs:        make(chan *Job, maxSize),
		workers:     workers,
		maxSize:     maxSize,
		active:      make(map[string]*Job),
		history:     make([]*Job, 0),
		historySize: 50,
		stopChan:    make(chan struct{}),
		compiler:    comp,
		recorder:    metrics.NoopRecorder{},
	}
}

// SetRecorder injects a metrics recorder (optional).
func (d *Dispatcher) SetRecorder(r metrics.Recorder) {
	if r == nil {
		r = metrics.NoopRecorder{}
	}
	d.recorder = r
}

// AddSink registers a lifecycle event sink. Not safe to call after Start.
func (d *Dispatcher) AddSink(s EventSink) {
	if s != nil {
		d.sinks = append(d.sinks, s)
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start(ctx context.Context) {
	slog.Info("Starting dispatcher", "workers", d.workers, "queue_size", d.maxSize)
	for i := range d.workers {
		d.wg.Add(1)
		go d.worker(ctx, fmt.Sprintf("worker-%d", i))
	}
}

// Stop shuts the pool down: no new jobs start, active jobs are canceled, and
// still-queued jobs are resolved as rejected so no caller waits forever.
func (d *Dispatcher) Stop(_ context.Context) {
	close(d.stopChan)

	d.mu.Lock()
	for _, job := range d.active {
		if job.cancel != nil {
			job.cancel()
		}
	}
	d.mu.Unlock()

	d.wg.Wait()
	d.drainPending()
}

// Submit validates capacity and enqueues the prepared document. A full buffer
// fails immediately with an OverloadError.
func (d *Dispatcher) Submit(ctx context.Context, doc *source.Document, opts Options) (*Handle, error) {
	if doc == nil {
		return nil, texerrors.Internal(nil, "nil document submitted")
	}

	job := &Job{
		ID:        uuid.NewString(),
		Filename:  doc.Filename,
		Kind:      string(doc.Kind),
		Status:    JobStatusPending,
		CreatedAt: time.Now(),
	}
	job.req = compiler.Request{
		JobID:     job.ID,
		Filename:  doc.Filename,
		TeX:       doc.TeX,
		MaxPasses: opts.MaxPasses,
		Timeout:   opts.Timeout,
	}
	job.handle = &Handle{JobID: job.ID, done: make(chan struct{})}

	// Register before the buffer send: a worker may pick the job up
	// immediately and must find it in the table.
	d.mu.Lock()
	d.active[job.ID] = job
	d.mu.Unlock()

	select {
	case d.jobs <- job:
	default:
		d.mu.Lock()
		delete(d.active, job.ID)
		d.mu.Unlock()
		d.recorder.IncJobOutcome(metrics.OutcomeRejected)
		return nil, texerrors.OverloadError("compile queue is full")
	}

	d.recorder.IncSourceKind(job.Kind)
	d.recorder.SetQueueDepth(len(d.jobs))
	d.emitQueued(ctx, job)

	slog.Debug("Job queued", logfields.JobID(job.ID), logfields.Filename(job.Filename), logfields.Kind(job.Kind))
	return job.handle, nil
}

// Length returns the number of jobs waiting in the buffer.
func (d *Dispatcher) Length() int {
	return len(d.jobs)
}

// Workers returns the pool size.
func (d *Dispatcher) Workers() int {
	return d.workers
}

// Capacity returns the job buffer size.
func (d *Dispatcher) Capacity() int {
	return d.maxSize
}

// ActiveJobs returns copies of all pending and running jobs.
func (d *Dispatcher) ActiveJobs() []Job {
	d.mu.RLock()
	defer d.mu.RUnlock()

	jobs := make([]Job, 0, len(d.active))
	for _, job := range d.active {
		jobs = append(jobs, *job)
	}
	return jobs
}

// RecentJobs returns copies of the finished-job history, oldest first.
func (d *Dispatcher) RecentJobs() []Job {
	d.mu.RLock()
	defer d.mu.RUnlock()

	jobs := make([]Job, 0, len(d.history))
	for _, job := range d.history {
		jobs = append(jobs, *job)
	}
	return jobs
}

// JobSnapshot returns a copy of a job, checking active jobs before history.
func (d *Dispatcher) JobSnapshot(id string) (Job, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if job, ok := d.active[id]; ok {
		return *job, true
	}
	for _, job := range d.history {
		if job.ID == id {
			return *job, true
		}
	}
	return Job{}, false
}

func (d *Dispatcher) worker(ctx context.Context, workerID string) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopChan:
			return
		case job := <-d.jobs:
			if job != nil {
				d.processJob(ctx, job, workerID)
			}
		}
	}
}

func (d *Dispatcher) processJob(ctx context.Context, job *Job, workerID string) {
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	started := time.Now()
	d.mu.Lock()
	job.cancel = cancel
	job.StartedAt = &started
	job.Status = JobStatusRunning
	running := d.countRunningLocked()
	d.mu.Unlock()

	d.recorder.SetQueueDepth(len(d.jobs))
	d.recorder.SetActiveJobs(running)
	d.emitStarted(ctx, job, workerID)

	out := d.compiler.Compile(jobCtx, job.req)

	d.finishJob(job, out)
	d.emitFinished(ctx, job)

	d.mu.RLock()
	running = d.countRunningLocked()
	d.mu.RUnlock()
	d.recorder.SetActiveJobs(running)

	// Resolve the handle only after the job table is consistent.
	job.handle.out = out
	close(job.handle.done)
}

// finishJob moves the job from the active table to the history ring and seals
// its public fields.
func (d *Dispatcher) finishJob(job *Job, out compiler.Outcome) {
	completed := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	job.CompletedAt = &completed
	if job.StartedAt != nil {
		job.Duration = completed.Sub(*job.StartedAt)
	}
	job.Status = jobStatusFor(out.Status)
	job.Passes = out.Passes
	job.Warnings = countWarnings(out.Entries)
	if out.Err != nil {
		job.Error = out.Err.Error()
	}

	delete(d.active, job.ID)
	d.addToHistoryLocked(job)
}

// drainPending resolves jobs that were accepted but never started, so their
// waiters are released after Stop.
func (d *Dispatcher) drainPending() {
	for {
		select {
		case job := <-d.jobs:
			if job == nil {
				continue
			}
			out := compiler.Outcome{
				Status: compiler.StatusFailed,
				Err:    texerrors.OverloadError("dispatcher stopped before the job started"),
			}
			d.finishJob(job, out)
			job.handle.out = out
			close(job.handle.done)
		default:
			return
		}
	}
}

func (d *Dispatcher) addToHistoryLocked(job *Job) {
	d.history = append(d.history, job)
	if len(d.history) > d.historySize {
		copy(d.history, d.history[len(d.history)-d.historySize:])
		d.history = d.history[:d.historySize]
	}
}

func (d *Dispatcher) countRunningLocked() int {
	n := 0
	for _, job := range d.active {
		if job.Status == JobStatusRunning {
			n++
		}
	}
	return n
}

func (d *Dispatcher) emitQueued(ctx context.Context, job *Job) {
	for _, sink := range d.sinks {
		if err := sink.JobQueued(ctx, *job); err != nil {
			slog.Warn("Failed to emit JobQueued event", logfields.JobID(job.ID), logfields.Error(err))
		}
	}
}

func (d *Dispatcher) emitStarted(ctx context.Context, job *Job, workerID string) {
	d.mu.RLock()
	snapshot := *job
	d.mu.RUnlock()
	for _, sink := range d.sinks {
		if err := sink.JobStarted(ctx, snapshot, workerID); err != nil {
			slog.Warn("Failed to emit JobStarted event", logfields.JobID(job.ID), logfields.Error(err))
		}
	}
}

func (d *Dispatcher) emitFinished(ctx context.Context, job *Job) {
	d.mu.RLock()
	snapshot := *job
	d.mu.RUnlock()
	for _, sink := range d.sinks {
		if err := sink.JobFinished(ctx, snapshot); err != nil {
			slog.Warn("Failed to emit JobFinished event", logfields.JobID(job.ID), logfields.Error(err))
		}
	}
}

func jobStatusFor(s compiler.Status) JobStatus {
	switch s {
	case compiler.StatusSucceeded:
		return JobStatusSucceeded
	case compiler.StatusTimedOut:
		return JobStatusTimedOut
	default:
		return JobStatusFailed
	}
}

func countWarnings(entries []texlog.Entry) int {
	n := 0
	for _, e := range entries {
		if e.Severity == texlog.SeverityWarning {
			n++
		}
	}
	return n
}
