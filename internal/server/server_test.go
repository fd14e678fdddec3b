package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/texbuild/texbuild/internal/compiler"
	"github.com/texbuild/texbuild/internal/config"
	texerrors "github.com/texbuild/texbuild/internal/errors"
	"github.com/texbuild/texbuild/internal/eventstore"
	"github.com/texbuild/texbuild/internal/gitsource"
	"github.com/texbuild/texbuild/internal/queue"
	"github.com/texbuild/texbuild/internal/source"
	"github.com/texbuild/texbuild/internal/texlog"
)

const validDoc = `\documentclass{article}
\begin{document}
Hello.
\end{document}
`

type stubCompiler struct {
	fn func(ctx context.Context, req compiler.Request) compiler.Outcome
}

func (s *stubCompiler) Compile(ctx context.Context, req compiler.Request) compiler.Outcome {
	return s.fn(ctx, req)
}

func pdfOutcome(passes int) compiler.Outcome {
	return compiler.Outcome{
		Status:      compiler.StatusSucceeded,
		Artifact:    []byte("%PDF-1.5 fake"),
		ContentType: "application/pdf",
		Passes:      passes,
	}
}

// newTestHandler builds a server over a running single-worker dispatcher and
// returns the full middleware-wrapped handler.
func newTestHandler(t *testing.T, cfg *config.Config, comp queue.Compiler, opts Options) http.Handler {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	d := queue.New(4, 1, comp)
	d.Start(context.Background())
	t.Cleanup(func() { d.Stop(context.Background()) })

	opts.Dispatcher = d
	srv := New(cfg, opts)
	return srv.mchain(srv.routes())
}

func decodeFailure(t *testing.T, rec *httptest.ResponseRecorder) failureReport {
	t.Helper()
	var report failureReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	return report
}

func TestCompile_ReturnsArtifact(t *testing.T) {
	comp := &stubCompiler{fn: func(context.Context, compiler.Request) compiler.Outcome {
		return pdfOutcome(2)
	}}
	h := newTestHandler(t, nil, comp, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/compile?filename=report.tex", strings.NewReader(validDoc))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	require.Equal(t, "2", rec.Header().Get("X-Texbuild-Passes"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "report.pdf")
	require.Equal(t, "%PDF-1.5 fake", rec.Body.String())
}

func TestCompile_EmptyBodyIsSourceError(t *testing.T) {
	comp := &stubCompiler{fn: func(context.Context, compiler.Request) compiler.Outcome {
		t.Error("compiler must not run for rejected input")
		return compiler.Outcome{}
	}}
	h := newTestHandler(t, nil, comp, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/compile", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	report := decodeFailure(t, rec)
	require.Equal(t, texerrors.KindSource, report.Kind)
	require.Zero(t, report.Passes)
}

func TestCompile_UnsupportedExtension(t *testing.T) {
	comp := &stubCompiler{fn: func(context.Context, compiler.Request) compiler.Outcome {
		return pdfOutcome(1)
	}}
	h := newTestHandler(t, nil, comp, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/compile?filename=notes.docx", strings.NewReader(validDoc))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	report := decodeFailure(t, rec)
	require.Equal(t, texerrors.KindSource, report.Kind)
	require.Contains(t, report.Message, "unsupported file type")
}

func TestCompile_BodyOverLimit(t *testing.T) {
	cfg := config.Default()
	cfg.Build.MaxSourceBytes = 64

	comp := &stubCompiler{fn: func(context.Context, compiler.Request) compiler.Outcome {
		return pdfOutcome(1)
	}}
	h := newTestHandler(t, cfg, comp, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/compile", strings.NewReader(strings.Repeat("x", 200)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	report := decodeFailure(t, rec)
	require.Equal(t, texerrors.KindSource, report.Kind)
	require.Contains(t, report.Message, "byte limit")
}

func TestCompile_InvalidPassesParam(t *testing.T) {
	comp := &stubCompiler{fn: func(context.Context, compiler.Request) compiler.Outcome {
		return pdfOutcome(1)
	}}
	h := newTestHandler(t, nil, comp, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/compile?passes=lots", strings.NewReader(validDoc))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, decodeFailure(t, rec).Message, "invalid passes")
}

func TestCompile_OptionsReachTheJob(t *testing.T) {
	var got compiler.Request
	comp := &stubCompiler{fn: func(_ context.Context, req compiler.Request) compiler.Outcome {
		got = req
		return pdfOutcome(1)
	}}
	h := newTestHandler(t, nil, comp, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/compile?passes=5&timeout=90s", strings.NewReader(validDoc))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 5, got.MaxPasses)
	require.Equal(t, 90*time.Second, got.Timeout)
}

func TestCompile_FailureReportCarriesDiagnostics(t *testing.T) {
	comp := &stubCompiler{fn: func(context.Context, compiler.Request) compiler.Outcome {
		return compiler.Outcome{
			Status: compiler.StatusFailed,
			Passes: 1,
			Err:    texerrors.SourceError("compilation failed with 1 error"),
			Entries: []texlog.Entry{
				{Severity: texlog.SeverityFatal, Message: "Undefined control sequence", Line: 3},
			},
		}
	}}
	h := newTestHandler(t, nil, comp, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/compile", strings.NewReader(validDoc))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	report := decodeFailure(t, rec)
	require.Equal(t, texerrors.KindSource, report.Kind)
	require.Equal(t, 1, report.Passes)
	require.Len(t, report.Entries, 1)
	require.Equal(t, "Undefined control sequence", report.Entries[0].Message)
	require.Equal(t, 3, report.Entries[0].Line)
}

func TestCompile_TimeoutMapsTo504(t *testing.T) {
	comp := &stubCompiler{fn: func(context.Context, compiler.Request) compiler.Outcome {
		return compiler.Outcome{
			Status: compiler.StatusTimedOut,
			Passes: 2,
			Err:    texerrors.TimeoutError("compilation exceeded the 60s budget"),
		}
	}}
	h := newTestHandler(t, nil, comp, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/compile", strings.NewReader(validDoc))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
	require.Equal(t, texerrors.KindTimeout, decodeFailure(t, rec).Kind)
}

func TestCompile_FullQueueRejectsWith503(t *testing.T) {
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	comp := &stubCompiler{fn: func(context.Context, compiler.Request) compiler.Outcome {
		started <- struct{}{}
		<-release
		return pdfOutcome(1)
	}}
	defer close(release)

	d := queue.New(1, 1, comp)
	d.Start(context.Background())
	t.Cleanup(func() { d.Stop(context.Background()) })

	srv := New(config.Default(), Options{Dispatcher: d})
	h := srv.mchain(srv.routes())

	// First job occupies the worker, second fills the single buffer slot.
	h1 := submitDoc(t, d)
	<-started
	submitDoc(t, d)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/compile", strings.NewReader(validDoc))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, texerrors.KindOverload, decodeFailure(t, rec).Kind)

	release <- struct{}{}
	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := h1.Wait(waitCtx)
	require.NoError(t, err)
}

func submitDoc(t *testing.T, d *queue.Dispatcher) *queue.Handle {
	t.Helper()
	doc, err := source.Prepare("document.tex", []byte(validDoc), 0)
	require.NoError(t, err)
	handle, err := d.Submit(context.Background(), doc, queue.Options{})
	require.NoError(t, err)
	return handle
}

func TestCompileGit_DisabledWithoutFetcher(t *testing.T) {
	comp := &stubCompiler{fn: func(context.Context, compiler.Request) compiler.Outcome {
		return pdfOutcome(1)
	}}
	h := newTestHandler(t, nil, comp, Options{})

	body := `{"url":"https://example.com/repo.git","path":"paper.tex"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/compile/git", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, texerrors.KindEnvironment, decodeFailure(t, rec).Kind)
}

type stubFetcher struct {
	req  gitsource.Request
	data []byte
	err  error
}

func (f *stubFetcher) Fetch(_ context.Context, req gitsource.Request) ([]byte, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func TestCompileGit_FetchesAndCompiles(t *testing.T) {
	comp := &stubCompiler{fn: func(context.Context, compiler.Request) compiler.Outcome {
		return pdfOutcome(1)
	}}
	fetcher := &stubFetcher{data: []byte(validDoc)}
	h := newTestHandler(t, nil, comp, Options{Git: fetcher})

	body := `{"url":"https://example.com/repo.git","path":"docs/paper.tex","ref":"v1.2"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/compile/git", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "paper.pdf")
	require.Equal(t, "https://example.com/repo.git", fetcher.req.URL)
	require.Equal(t, "docs/paper.tex", fetcher.req.Path)
	require.Equal(t, "v1.2", fetcher.req.Ref)
}

func TestCompileGit_FetchFailurePropagatesKind(t *testing.T) {
	comp := &stubCompiler{fn: func(context.Context, compiler.Request) compiler.Outcome {
		return pdfOutcome(1)
	}}
	fetcher := &stubFetcher{err: texerrors.SourceError("file not found in repository: missing.tex")}
	h := newTestHandler(t, nil, comp, Options{Git: fetcher})

	body := `{"url":"https://example.com/repo.git","path":"missing.tex"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/compile/git", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, decodeFailure(t, rec).Message, "not found in repository")
}

func TestJobs_ListsFinishedJob(t *testing.T) {
	comp := &stubCompiler{fn: func(context.Context, compiler.Request) compiler.Outcome {
		return pdfOutcome(1)
	}}
	h := newTestHandler(t, nil, comp, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/compile", strings.NewReader(validDoc))
	h.ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp jobsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Empty(t, resp.Active)
	require.Len(t, resp.Recent, 1)
	require.Equal(t, queue.JobStatusSucceeded, resp.Recent[0].Status)
}

func TestJob_DetailAndNotFound(t *testing.T) {
	comp := &stubCompiler{fn: func(context.Context, compiler.Request) compiler.Outcome {
		return pdfOutcome(1)
	}}
	h := newTestHandler(t, nil, comp, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/compile", strings.NewReader(validDoc))
	h.ServeHTTP(httptest.NewRecorder(), req)

	listRec := httptest.NewRecorder()
	h.ServeHTTP(listRec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil))
	var resp jobsResponse
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &resp))
	require.Len(t, resp.Recent, 1)
	id := resp.Recent[0].ID

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var job queue.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	require.Equal(t, id, job.ID)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/no-such-job", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

type historyStub struct {
	events []eventstore.Event
	err    error
}

func (h *historyStub) GetByJobID(context.Context, string) ([]eventstore.Event, error) {
	return h.events, h.err
}

func TestJob_FallsBackToEventStore(t *testing.T) {
	payload, err := json.Marshal(queue.Job{
		ID:       "archived-job",
		Filename: "thesis.tex",
		Status:   queue.JobStatusSucceeded,
	})
	require.NoError(t, err)

	comp := &stubCompiler{fn: func(context.Context, compiler.Request) compiler.Outcome {
		return pdfOutcome(1)
	}}
	history := &historyStub{events: []eventstore.Event{
		{ID: 1, JobID: "archived-job", Type: eventstore.EventJobFinished, Payload: payload},
	}}
	h := newTestHandler(t, nil, comp, Options{History: history})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/archived-job", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var job queue.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	require.Equal(t, "archived-job", job.ID)
	require.Equal(t, "thesis.tex", job.Filename)
}

func TestStatus_ReportsPoolShape(t *testing.T) {
	comp := &stubCompiler{fn: func(context.Context, compiler.Request) compiler.Outcome {
		return pdfOutcome(1)
	}}
	h := newTestHandler(t, nil, comp, Options{EngineInfo: "pdfTeX 3.141592653"})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var status statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, "running", status.Status)
	require.Equal(t, "pdfTeX 3.141592653", status.Engine)
	require.Equal(t, 1, status.Workers)
	require.Equal(t, 4, status.QueueCapacity)
}

func TestHealthz(t *testing.T) {
	comp := &stubCompiler{fn: func(context.Context, compiler.Request) compiler.Outcome {
		return pdfOutcome(1)
	}}
	h := newTestHandler(t, nil, comp, Options{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	ct := rec.Header().Get("Content-Type")
	if !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("expected application/json content type, got %q", ct)
	}
}

func TestMetricsRouteIsOptional(t *testing.T) {
	comp := &stubCompiler{fn: func(context.Context, compiler.Request) compiler.Outcome {
		return pdfOutcome(1)
	}}

	withMetrics := newTestHandler(t, nil, comp, Options{
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	})
	rec := httptest.NewRecorder()
	withMetrics.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	withoutMetrics := newTestHandler(t, nil, comp, Options{})
	rec = httptest.NewRecorder()
	withoutMetrics.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPanicRecoveryWritesStructured500(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := chain(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/anything", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body struct {
		Kind texerrors.Kind `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, texerrors.KindInternal, body.Kind)
}
