package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	texerrors "github.com/texbuild/texbuild/internal/errors"
	"github.com/texbuild/texbuild/internal/logfields"
	"github.com/texbuild/texbuild/internal/workspace"
)

// baseArgs is the fixed invocation vocabulary: never prompt, stop at the
// first fatal error, and prefix messages with file:line for the classifier.
var baseArgs = []string{"-interaction=nonstopmode", "-halt-on-error", "-file-line-error"}

// Engine invokes a TeX binary such as pdflatex.
type Engine struct {
	binary      string
	extraArgs   []string
	probeMarker string
}

// New returns an engine for the given binary. Empty values fall back to
// pdflatex and its version banner.
func New(binary string, extraArgs []string, probeMarker string) *Engine {
	if binary == "" {
		binary = "pdflatex"
	}
	if probeMarker == "" {
		probeMarker = "pdfTeX"
	}
	return &Engine{binary: binary, extraArgs: extraArgs, probeMarker: probeMarker}
}

// Binary returns the configured binary name or path.
func (e *Engine) Binary() string {
	return e.binary
}

// Validate probes the binary with --version and requires the configured
// marker in its output. It returns the first line of the banner, suitable
// for status surfaces.
func (e *Engine) Validate(ctx context.Context) (string, error) {
	path, err := exec.LookPath(e.binary)
	if err != nil {
		return "", texerrors.WrapEnvironment(err, fmt.Sprintf("engine %q not found", e.binary))
	}

	cmd := exec.CommandContext(ctx, path, "--version")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", texerrors.WrapEnvironment(err, fmt.Sprintf("engine %q did not answer --version", e.binary))
	}
	if !bytes.Contains(out, []byte(e.probeMarker)) {
		return "", texerrors.EnvironmentError(fmt.Sprintf("engine %q does not look like a %s binary", e.binary, e.probeMarker))
	}

	banner, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(banner), nil
}

// PassResult captures one engine invocation. The raw log goes to the
// classifier; nothing here is user-facing on its own.
type PassResult struct {
	ExitCode        int
	Log             []byte
	Elapsed         time.Duration
	ArtifactPresent bool
	TimedOut        bool
}

// Run executes one compilation pass in the workspace. The context carries the
// job's total deadline; when it fires the whole process group is killed and
// the partial log is returned with TimedOut set. A non-zero exit is not an
// error here, the log classifier decides what it means.
func (e *Engine) Run(ctx context.Context, ws *workspace.Workspace) (PassResult, error) {
	binPath, err := exec.LookPath(e.binary)
	if err != nil {
		return PassResult{}, texerrors.WrapEnvironment(err, fmt.Sprintf("engine %q not found", e.binary))
	}

	args := make([]string, 0, len(baseArgs)+len(e.extraArgs)+1)
	args = append(args, baseArgs...)
	args = append(args, e.extraArgs...)
	args = append(args, ws.MainFile())

	var combined bytes.Buffer
	cmd := exec.Command(binPath, args...)
	cmd.Dir = ws.Path()
	cmd.Stdout = &combined
	cmd.Stderr = &combined
	// Stdin stays nil: nonstopmode never prompts, and the null device keeps
	// it that way if the engine tries anyway.
	configureProcess(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return PassResult{}, texerrors.WrapEnvironment(err, fmt.Sprintf("engine %q failed to start", e.binary))
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	timedOut := false
	var waitErr error
	select {
	case <-ctx.Done():
		timedOut = true
		killTree(cmd)
		<-waitCh
	case waitErr = <-waitCh:
	}
	elapsed := time.Since(start)

	exitCode := 0
	switch {
	case timedOut:
		exitCode = -1
	case waitErr != nil:
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return PassResult{}, texerrors.WrapEnvironment(waitErr, "engine execution failed")
		}
		exitCode = exitErr.ExitCode()
	}

	_, statErr := os.Stat(ws.ArtifactPath())
	result := PassResult{
		ExitCode:        exitCode,
		Log:             combined.Bytes(),
		Elapsed:         elapsed,
		ArtifactPresent: statErr == nil,
		TimedOut:        timedOut,
	}

	slog.Debug("Engine pass finished",
		logfields.Engine(e.binary),
		logfields.ExitCode(result.ExitCode),
		logfields.DurationMS(float64(elapsed)/float64(time.Millisecond)),
		slog.Bool("timed_out", result.TimedOut),
		slog.Bool("artifact", result.ArtifactPresent))

	return result, nil
}
