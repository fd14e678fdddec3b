package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/texbuild/texbuild/internal/compiler"
	texerrors "github.com/texbuild/texbuild/internal/errors"
	"github.com/texbuild/texbuild/internal/gitsource"
	"github.com/texbuild/texbuild/internal/queue"
	"github.com/texbuild/texbuild/internal/source"
)

const defaultFilename = "document.tex"

// handleCompile accepts raw document bytes and answers with either the PDF or
// a failure report. The request blocks until the job reaches a terminal
// state; queue backpressure turns into an immediate 503.
func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	opts, err := jobOptions(r)
	if err != nil {
		s.writeFailureReport(w, r, err, 0, nil)
		return
	}

	maxBytes := s.cfg.Build.MaxSourceBytes
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes+1))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			s.writeFailureReport(w, r,
				texerrors.SourceError(fmt.Sprintf("source exceeds the %d byte limit", maxBytes)), 0, nil)
			return
		}
		s.writeFailureReport(w, r, texerrors.WrapSource(err, "request body could not be read"), 0, nil)
		return
	}

	filename := r.URL.Query().Get("filename")
	if filename == "" {
		filename = defaultFilename
	}

	doc, err := source.Prepare(filename, raw, maxBytes)
	if err != nil {
		s.writeFailureReport(w, r, err, 0, nil)
		return
	}

	s.compileAndRespond(w, r, doc, opts)
}

// gitCompileRequest is the body of POST /api/v1/compile/git.
type gitCompileRequest struct {
	URL  string `json:"url"`
	Path string `json:"path"`
	Ref  string `json:"ref,omitempty"`
}

// handleCompileGit fetches a file from a repository and compiles it.
func (s *Server) handleCompileGit(w http.ResponseWriter, r *http.Request) {
	if s.opts.Git == nil {
		s.writeFailureReport(w, r,
			texerrors.EnvironmentError("repository compilation is not enabled"), 0, nil)
		return
	}

	opts, err := jobOptions(r)
	if err != nil {
		s.writeFailureReport(w, r, err, 0, nil)
		return
	}

	var req gitCompileRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		s.writeFailureReport(w, r, texerrors.WrapSource(err, "request body is not valid JSON"), 0, nil)
		return
	}

	raw, err := s.opts.Git.Fetch(r.Context(), gitsource.Request{URL: req.URL, Path: req.Path, Ref: req.Ref})
	if err != nil {
		s.writeFailureReport(w, r, err, 0, nil)
		return
	}

	doc, err := source.Prepare(path.Base(req.Path), raw, s.cfg.Build.MaxSourceBytes)
	if err != nil {
		s.writeFailureReport(w, r, err, 0, nil)
		return
	}

	s.compileAndRespond(w, r, doc, opts)
}

// compileAndRespond submits the prepared document and blocks on its handle.
func (s *Server) compileAndRespond(w http.ResponseWriter, r *http.Request, doc *source.Document, opts queue.Options) {
	handle, err := s.opts.Dispatcher.Submit(r.Context(), doc, opts)
	if err != nil {
		s.writeFailureReport(w, r, err, 0, nil)
		return
	}

	out, err := handle.Wait(r.Context())
	if err != nil {
		// The client went away; the job still runs to completion and tears
		// its workspace down on its own.
		s.writeFailureReport(w, r, texerrors.Internal(err, "request canceled before the job finished"), 0, nil)
		return
	}

	if out.Status != compiler.StatusSucceeded {
		s.writeFailureReport(w, r, out.Err, out.Passes, out.Entries)
		return
	}

	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifactName(doc.Filename)))
	w.Header().Set("X-Texbuild-Passes", strconv.Itoa(out.Passes))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out.Artifact); err != nil {
		// Too late for a status change; the middleware logs the request.
		return
	}
}

// jobOptions reads the per-job overrides from the query string.
func jobOptions(r *http.Request) (queue.Options, error) {
	var opts queue.Options

	if v := r.URL.Query().Get("passes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return opts, texerrors.SourceError(fmt.Sprintf("invalid passes value %q", v))
		}
		opts.MaxPasses = n
	}
	if v := r.URL.Query().Get("timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return opts, texerrors.SourceError(fmt.Sprintf("invalid timeout value %q", v))
		}
		opts.Timeout = d
	}
	return opts, nil
}

// artifactName derives the download filename from the submitted one.
func artifactName(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == ".." {
		stem = "document"
	}
	return stem + ".pdf"
}
