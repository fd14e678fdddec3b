// Package metrics defines the observability hooks of the compile pipeline.
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics stay optional without nil checks at call sites.
package metrics

import "time"

// Outcome enumerates terminal job results for counters.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeWarning   Outcome = "warning" // succeeded with unresolved-reference warning
	OutcomeFailed    Outcome = "failed"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeRejected  Outcome = "rejected" // never dispatched (overload)
)

// Recorder defines observability hooks for job and pass metrics.
// Implementations may forward to Prometheus, OpenTelemetry, etc.
type Recorder interface {
	ObservePassDuration(d time.Duration)
	ObserveJobDuration(d time.Duration)
	ObservePassCount(passes int)
	IncJobOutcome(outcome Outcome)
	IncSourceKind(kind string) // tex|txt|markdown
	SetQueueDepth(n int)
	SetActiveJobs(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not
// configured).
type NoopRecorder struct{}

func (NoopRecorder) ObservePassDuration(time.Duration) {}
func (NoopRecorder) ObserveJobDuration(time.Duration)  {}
func (NoopRecorder) ObservePassCount(int)              {}
func (NoopRecorder) IncJobOutcome(Outcome)             {}
func (NoopRecorder) IncSourceKind(string)              {}
func (NoopRecorder) SetQueueDepth(int)                 {}
func (NoopRecorder) SetActiveJobs(int)                 {}
