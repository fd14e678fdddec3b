package server

import (
	"net/http"
	"time"

	"github.com/texbuild/texbuild/internal/version"
)

// handleStatus reports the operator view: engine banner, pool shape, queue
// pressure, and uptime.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	d := s.opts.Dispatcher
	writeJSON(w, http.StatusOK, statusResponse{
		Status:        "running",
		Version:       version.Version,
		Engine:        s.opts.EngineInfo,
		Workers:       d.Workers(),
		QueueDepth:    d.Length(),
		QueueCapacity: d.Capacity(),
		ActiveJobs:    len(d.ActiveJobs()),
		Uptime:        time.Since(s.startTime).Seconds(),
		StartTime:     s.startTime,
		Timestamp:     time.Now(),
	})
}

// handleHealthz answers liveness probes.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:     "healthy",
		Timestamp:  time.Now(),
		Version:    version.Version,
		Uptime:     time.Since(s.startTime).Seconds(),
		ActiveJobs: len(s.opts.Dispatcher.ActiveJobs()),
	})
}
