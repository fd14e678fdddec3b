package compiler

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/texbuild/texbuild/internal/engine"
	texerrors "github.com/texbuild/texbuild/internal/errors"
	"github.com/texbuild/texbuild/internal/metrics"
	"github.com/texbuild/texbuild/internal/texlog"
	"github.com/texbuild/texbuild/internal/workspace"
)

func fakeEngine(t *testing.T, script string) *engine.Engine {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake engine scripts need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fakelatex")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return engine.New(path, nil, "pdfTeX")
}

func newTestCompiler(t *testing.T, eng *engine.Engine, maxPasses int, timeout time.Duration) (*Compiler, string) {
	t.Helper()
	root := t.TempDir()
	return New(workspace.NewManager(root), eng, maxPasses, timeout, metrics.NoopRecorder{}), root
}

func testRequest(id string) Request {
	return Request{
		JobID:    id,
		Filename: "document.tex",
		TeX:      []byte(`\documentclass{article}\begin{document}x\end{document}`),
	}
}

// assertNoJobDirs verifies every exit path tore its workspace down.
func assertNoJobDirs(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), "job-"), "workspace %s survived the job", e.Name())
	}
}

func TestCompileSingleCleanPass(t *testing.T) {
	eng := fakeEngine(t, `printf 'PDF' > document.pdf
echo "Output written on document.pdf (1 page)."`)
	c, root := newTestCompiler(t, eng, 3, 10*time.Second)

	out := c.Compile(context.Background(), testRequest("clean"))

	require.NoError(t, out.Err)
	assert.Equal(t, StatusSucceeded, out.Status)
	assert.Equal(t, []byte("PDF"), out.Artifact)
	assert.Equal(t, "application/pdf", out.ContentType)
	assert.Equal(t, 1, out.Passes)
	assert.Empty(t, out.Entries)
	assertNoJobDirs(t, root)
}

func TestCompileRerunThenSuccess(t *testing.T) {
	eng := fakeEngine(t, `if [ -f ran_once ]; then
  printf 'PDF' > document.pdf
  echo "Output written on document.pdf (1 page)."
else
  touch ran_once
  echo "LaTeX Warning: Label(s) may have changed. Rerun to get cross-references right."
  printf 'PDF' > document.pdf
fi`)
	c, root := newTestCompiler(t, eng, 3, 10*time.Second)

	out := c.Compile(context.Background(), testRequest("rerun"))

	require.NoError(t, out.Err)
	assert.Equal(t, StatusSucceeded, out.Status)
	assert.Equal(t, 2, out.Passes)
	assert.Empty(t, out.Entries, "a hint resolved by a rerun leaves no trace in the report")
	assertNoJobDirs(t, root)
}

func TestCompileFatalBeatsRerun(t *testing.T) {
	eng := fakeEngine(t, `echo "! Undefined control sequence."
echo 'l.5 who'
echo "LaTeX Warning: Label(s) may have changed. Rerun to get cross-references right."
exit 1`)
	c, root := newTestCompiler(t, eng, 3, 10*time.Second)

	out := c.Compile(context.Background(), testRequest("fatal"))

	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, 1, out.Passes, "fatal wins, no further pass is attempted")
	require.Error(t, out.Err)
	assert.True(t, texerrors.IsKind(out.Err, texerrors.KindSource))
	assert.Contains(t, out.Err.Error(), "Undefined control sequence. (line 5)")
	require.NotEmpty(t, out.Entries)
	assert.Equal(t, texlog.SeverityError, out.Entries[0].Severity)
	assertNoJobDirs(t, root)
}

func TestCompileRerunAtCapWithArtifact(t *testing.T) {
	eng := fakeEngine(t, `echo "LaTeX Warning: There were undefined references."
printf 'PDF' > document.pdf`)
	c, root := newTestCompiler(t, eng, 2, 10*time.Second)

	out := c.Compile(context.Background(), testRequest("cap"))

	require.NoError(t, out.Err)
	assert.Equal(t, StatusSucceeded, out.Status)
	assert.Equal(t, 2, out.Passes)
	require.NotEmpty(t, out.Entries, "the unresolved hint is downgraded to a warning")
	assert.Equal(t, texlog.SeverityWarning, out.Entries[0].Severity)
	assert.Contains(t, out.Entries[0].Message, "undefined references")
	assertNoJobDirs(t, root)
}

func TestCompileRerunAtCapWithoutArtifact(t *testing.T) {
	eng := fakeEngine(t, `echo "LaTeX Warning: There were undefined references."`)
	c, root := newTestCompiler(t, eng, 2, 10*time.Second)

	out := c.Compile(context.Background(), testRequest("capfail"))

	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, 2, out.Passes)
	require.Error(t, out.Err)
	assert.True(t, texerrors.IsKind(out.Err, texerrors.KindSource))
	assertNoJobDirs(t, root)
}

func TestCompileCleanExitWithoutArtifactFails(t *testing.T) {
	eng := fakeEngine(t, `echo "No pages of output."`)
	c, root := newTestCompiler(t, eng, 3, 10*time.Second)

	out := c.Compile(context.Background(), testRequest("empty"))

	assert.Equal(t, StatusFailed, out.Status)
	require.Error(t, out.Err)
	assert.True(t, texerrors.IsKind(out.Err, texerrors.KindSource))
	assert.Equal(t, 1, out.Passes)
	assertNoJobDirs(t, root)
}

func TestCompileTimeout(t *testing.T) {
	eng := fakeEngine(t, `echo "pass begun"
sleep 30`)
	c, root := newTestCompiler(t, eng, 3, 300*time.Millisecond)

	start := time.Now()
	out := c.Compile(context.Background(), testRequest("slow"))

	assert.Equal(t, StatusTimedOut, out.Status)
	require.Error(t, out.Err)
	assert.True(t, texerrors.IsKind(out.Err, texerrors.KindTimeout))
	assert.Equal(t, 1, out.Passes)
	assert.Less(t, time.Since(start), 5*time.Second)
	assertNoJobDirs(t, root)
}

func TestCompileMissingEngine(t *testing.T) {
	c, root := newTestCompiler(t, engine.New("texbuild-no-such-engine", nil, "pdfTeX"), 3, 10*time.Second)

	out := c.Compile(context.Background(), testRequest("noengine"))

	assert.Equal(t, StatusFailed, out.Status)
	require.Error(t, out.Err)
	assert.True(t, texerrors.IsKind(out.Err, texerrors.KindEnvironment))
	assertNoJobDirs(t, root)
}

func TestCompileConcurrentJobsAreIsolated(t *testing.T) {
	// Each pass copies the job's own source into the artifact, so workspace
	// crosstalk would show up as swapped artifact bytes.
	eng := fakeEngine(t, `sleep 0.2
cp document.tex document.pdf`)
	c, root := newTestCompiler(t, eng, 3, 10*time.Second)

	reqA := testRequest("job-a")
	reqA.TeX = []byte(`\documentclass{article}\begin{document}alpha\end{document}`)
	reqB := testRequest("job-b")
	reqB.TeX = []byte(`\documentclass{article}\begin{document}beta\end{document}`)

	outs := make(chan Outcome, 2)
	go func() { outs <- c.Compile(context.Background(), reqA) }()
	go func() { outs <- c.Compile(context.Background(), reqB) }()

	seen := make(map[string]bool, 2)
	for range 2 {
		select {
		case out := <-outs:
			require.NoError(t, out.Err)
			assert.Equal(t, StatusSucceeded, out.Status)
			seen[string(out.Artifact)] = true
		case <-time.After(10 * time.Second):
			t.Fatal("concurrent compiles did not finish")
		}
	}

	assert.True(t, seen[string(reqA.TeX)], "first job must get its own artifact")
	assert.True(t, seen[string(reqB.TeX)], "second job must get its own artifact")
	assertNoJobDirs(t, root)
}

func TestCompileRequestOverridesPassCap(t *testing.T) {
	eng := fakeEngine(t, `echo "LaTeX Warning: There were undefined references."
printf 'PDF' > document.pdf`)
	c, root := newTestCompiler(t, eng, 3, 10*time.Second)

	req := testRequest("override")
	req.MaxPasses = 1
	out := c.Compile(context.Background(), req)

	require.NoError(t, out.Err)
	assert.Equal(t, StatusSucceeded, out.Status)
	assert.Equal(t, 1, out.Passes)
	assertNoJobDirs(t, root)
}
