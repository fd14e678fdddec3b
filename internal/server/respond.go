package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	texerrors "github.com/texbuild/texbuild/internal/errors"
	"github.com/texbuild/texbuild/internal/logfields"
	"github.com/texbuild/texbuild/internal/queue"
	"github.com/texbuild/texbuild/internal/texlog"
)

// failureReport is the structured body returned for every failed compile:
// the failure kind, one human-readable message, the ordered diagnostics, and
// how many passes were attempted before giving up.
type failureReport struct {
	Kind    texerrors.Kind `json:"kind"`
	Message string         `json:"message"`
	Passes  int            `json:"passes"`
	Entries []texlog.Entry `json:"entries,omitempty"`
}

// jobsResponse lists the dispatcher's active and recently finished jobs.
type jobsResponse struct {
	Active []queue.Job `json:"active"`
	Recent []queue.Job `json:"recent"`
}

// statusResponse summarizes the service for operators.
type statusResponse struct {
	Status        string    `json:"status"`
	Version       string    `json:"version"`
	Engine        string    `json:"engine"`
	Workers       int       `json:"workers"`
	QueueDepth    int       `json:"queue_depth"`
	QueueCapacity int       `json:"queue_capacity"`
	ActiveJobs    int       `json:"active_jobs"`
	Uptime        float64   `json:"uptime_seconds"`
	StartTime     time.Time `json:"start_time"`
	Timestamp     time.Time `json:"timestamp"`
}

// healthResponse is the liveness body.
type healthResponse struct {
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version"`
	Uptime     float64   `json:"uptime"`
	ActiveJobs int       `json:"active_jobs"`
}

// notFoundBody is the 404 shape for job lookups.
type notFoundBody struct {
	Message string `json:"message"`
}

// writeJSON encodes v into a buffer first so a marshal failure never leaves a
// half-written response on the wire.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(true)
	if err := enc.Encode(v); err != nil {
		slog.Error("Failed to encode JSON response", logfields.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Error("Failed to write JSON response body", logfields.Error(err))
	}
}

// writeFailureReport translates a compile failure into its HTTP shape. The
// status code identifies the failure kind 1:1 with the CLI exit codes.
func (s *Server) writeFailureReport(w http.ResponseWriter, r *http.Request, err error, passes int, entries []texlog.Entry) {
	kind := texerrors.KindOf(err)
	msg := "compilation failed"
	var tbe *texerrors.TexBuildError
	if texerrors.As(err, &tbe) {
		msg = tbe.Message
	}

	slog.Info("Compile request failed",
		logfields.Kind(string(kind)),
		logfields.Method(r.Method),
		logfields.Path(r.URL.Path),
		logfields.Pass(passes),
		logfields.Error(err))

	writeJSON(w, texerrors.HTTPStatus(kind), failureReport{
		Kind:    kind,
		Message: msg,
		Passes:  passes,
		Entries: entries,
	})
}
