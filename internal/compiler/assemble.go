package compiler

import (
	"fmt"
	"os"
	"time"

	texerrors "github.com/texbuild/texbuild/internal/errors"
	"github.com/texbuild/texbuild/internal/texlog"
	"github.com/texbuild/texbuild/internal/workspace"
)

// pdfContentType identifies the only artifact this pipeline produces.
const pdfContentType = "application/pdf"

// assembleSuccess reads the artifact while the workspace still exists and
// seals the outcome. A read failure at this point means the artifact vanished
// under us, which is a resource problem, not a source problem.
func assembleSuccess(ws *workspace.Workspace, entries []texlog.Entry, passes int, elapsed time.Duration) Outcome {
	artifact, err := os.ReadFile(ws.ArtifactPath())
	if err != nil {
		return assembleFailure(texerrors.WrapResource(err, "artifact could not be read back"), entries, passes, elapsed)
	}
	return Outcome{
		Status:      StatusSucceeded,
		Artifact:    artifact,
		ContentType: pdfContentType,
		Entries:     entries,
		Passes:      passes,
		Elapsed:     elapsed,
	}
}

// assembleFailure builds the ordered failure report. err must already be a
// taxonomy error; raw exit codes and filesystem errors never pass through
// here undressed.
func assembleFailure(err error, entries []texlog.Entry, passes int, elapsed time.Duration) Outcome {
	status := StatusFailed
	if texerrors.IsKind(err, texerrors.KindTimeout) {
		status = StatusTimedOut
	}
	return Outcome{
		Status:  status,
		Entries: entries,
		Passes:  passes,
		Elapsed: elapsed,
		Err:     err,
	}
}

// sourceErrorFromEntries promotes the first classified error to the job's
// user-facing message, carrying the source line when the log had one.
func sourceErrorFromEntries(entries []texlog.Entry) error {
	for _, e := range entries {
		if e.Severity != texlog.SeverityError && e.Severity != texlog.SeverityFatal {
			continue
		}
		if e.Line > 0 {
			return texerrors.SourceError(fmt.Sprintf("%s (line %d)", e.Message, e.Line))
		}
		return texerrors.SourceError(e.Message)
	}
	return texerrors.SourceError("compilation failed")
}

func timeoutError(budget time.Duration) error {
	return texerrors.TimeoutError(fmt.Sprintf("compilation did not finish within %s", budget))
}
