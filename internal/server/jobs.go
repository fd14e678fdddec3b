package server

import (
	"net/http"

	texerrors "github.com/texbuild/texbuild/internal/errors"
	"github.com/texbuild/texbuild/internal/eventstore"
)

// handleJobs lists active and recently finished jobs.
func (s *Server) handleJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, jobsResponse{
		Active: s.opts.Dispatcher.ActiveJobs(),
		Recent: s.opts.Dispatcher.RecentJobs(),
	})
}

// handleJob looks a single job up, falling back to the event store when the
// job has aged out of the in-memory ring.
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if job, ok := s.opts.Dispatcher.JobSnapshot(id); ok {
		writeJSON(w, http.StatusOK, job)
		return
	}

	if s.opts.History != nil {
		events, err := s.opts.History.GetByJobID(r.Context(), id)
		if err != nil {
			s.errorAdapter.WriteError(w, r, texerrors.Internal(err, "job lookup failed"))
			return
		}
		if job, ok := eventstore.ProjectJob(events); ok {
			writeJSON(w, http.StatusOK, job)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, notFoundBody{Message: "job not found: " + id})
}
