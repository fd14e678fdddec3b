package eventstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/texbuild/texbuild/internal/queue"
)

// Sink adapts a Store to the dispatcher's lifecycle interface. Each event's
// payload is the job snapshot at that moment, so the latest event per job is
// also its most complete record.
type Sink struct {
	store Store
}

// NewSink wraps store as a dispatcher event sink.
func NewSink(store Store) *Sink {
	return &Sink{store: store}
}

func (s *Sink) JobQueued(ctx context.Context, job queue.Job) error {
	return s.append(ctx, job, EventJobQueued, nil)
}

func (s *Sink) JobStarted(ctx context.Context, job queue.Job, workerID string) error {
	return s.append(ctx, job, EventJobStarted, map[string]string{"worker_id": workerID})
}

func (s *Sink) JobFinished(ctx context.Context, job queue.Job) error {
	return s.append(ctx, job, EventJobFinished, nil)
}

func (s *Sink) append(ctx context.Context, job queue.Job, eventType string, metadata map[string]string) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job snapshot: %w", err)
	}
	return s.store.Append(ctx, job.ID, eventType, payload, metadata)
}
