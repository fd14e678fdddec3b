// Package events publishes job lifecycle events to NATS for external
// consumers (dashboards, notification bots). Publishing is fire and forget:
// a slow or absent broker never affects compiles, the dispatcher only logs
// sink failures.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/texbuild/texbuild/internal/queue"
)

// Publisher forwards dispatcher events to a NATS subject hierarchy:
// <subject>.queued, <subject>.started, <subject>.finished.
type Publisher struct {
	conn    *nats.Conn
	subject string
}

// envelope is the wire shape of one job event.
type envelope struct {
	Type     string    `json:"type"`
	WorkerID string    `json:"worker_id,omitempty"`
	Job      queue.Job `json:"job"`
}

// NewPublisher connects to the broker. An empty subject falls back to
// "texbuild.jobs".
func NewPublisher(url, subject string) (*Publisher, error) {
	if subject == "" {
		subject = "texbuild.jobs"
	}

	conn, err := nats.Connect(url, nats.Name("texbuild"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	slog.Info("NATS publisher initialized", "url", url, "subject", subject)
	return &Publisher{conn: conn, subject: subject}, nil
}

func (p *Publisher) JobQueued(_ context.Context, job queue.Job) error {
	return p.publish("queued", job, "")
}

func (p *Publisher) JobStarted(_ context.Context, job queue.Job, workerID string) error {
	return p.publish("started", job, workerID)
}

func (p *Publisher) JobFinished(_ context.Context, job queue.Job) error {
	return p.publish("finished", job, "")
}

func (p *Publisher) publish(kind string, job queue.Job, workerID string) error {
	data, err := json.Marshal(envelope{Type: kind, WorkerID: workerID, Job: job})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.conn.Publish(p.subject+"."+kind, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close drains buffered messages and closes the connection.
func (p *Publisher) Close() error {
	if p.conn == nil {
		return nil
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
	return nil
}
