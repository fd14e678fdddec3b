// Package server exposes the compile pipeline over HTTP: synchronous compile
// endpoints, job status lookups, health, and metrics. Handlers depend on
// narrow interfaces so the queue, the git fetcher, and the event store can be
// swapped out in tests. Failure responses carry the structured report shape
// (kind, message, entries, passes); raw errors never reach a response body.
package server
