// Package eventstore persists job lifecycle events in SQLite. The log is
// append-only and holds job metadata snapshots; artifact bytes and source
// text never enter it. A small projection rebuilds per-job summaries for
// lookups that outlive the dispatcher's in-memory history ring.
package eventstore

import (
	"context"
	"time"
)

// Event type names written by the dispatcher sink.
const (
	EventJobQueued   = "job.queued"
	EventJobStarted  = "job.started"
	EventJobFinished = "job.finished"
)

// Event is one row of the job event log.
type Event struct {
	ID        int64
	JobID     string
	Type      string
	Timestamp time.Time
	Payload   []byte
	Metadata  map[string]string
}

// Store persists and retrieves job events.
type Store interface {
	// Append adds a new event to the log.
	Append(ctx context.Context, jobID, eventType string, payload []byte, metadata map[string]string) error

	// GetByJobID retrieves all events for one job in append order.
	GetByJobID(ctx context.Context, jobID string) ([]Event, error)

	// GetRange retrieves events within a time range in append order.
	GetRange(ctx context.Context, start, end time.Time) ([]Event, error)

	// Close releases the underlying resources.
	Close() error
}
