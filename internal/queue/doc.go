// Package queue dispatches compile jobs onto a fixed worker pool over a
// bounded buffer. A full buffer rejects immediately instead of building
// backlog, which makes the pool size the single backpressure control. The
// dispatcher also keeps the active job table and a small history ring for the
// status surfaces.
package queue
