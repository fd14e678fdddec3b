// Package errors provides the structured error type (TexBuildError) used to
// classify every failure that crosses the dispatcher boundary. Raw process
// exit statuses and filesystem errors are wrapped here before they reach a
// CLI or HTTP surface.
package errors

import (
	"errors"
	"fmt"
)

// Kind is the coarse failure taxonomy of a compile job.
type Kind string

const (
	// KindSource: the input document itself is malformed. Recoverable by
	// the caller fixing the input; never retried automatically.
	KindSource Kind = "source"
	// KindEnvironment: the external engine is missing or misconfigured.
	// Fatal, surfaced immediately, never retried.
	KindEnvironment Kind = "environment"
	// KindTimeout: the engine exceeded the job's time budget. Terminal for
	// the job; the caller may resubmit.
	KindTimeout Kind = "timeout"
	// KindOverload: dispatcher capacity exceeded. The caller should back
	// off and retry later.
	KindOverload Kind = "overload"
	// KindResource: workspace allocation failed. Fatal for the job.
	KindResource Kind = "resource"
	// KindInternal: anything that escaped classification. Should not
	// normally be user-visible.
	KindInternal Kind = "internal"
)

// Severity indicates how critical an error is.
type Severity string

const (
	SeverityFatal   Severity = "fatal"   // Stops execution
	SeverityError   Severity = "error"   // Error, but not fatal
	SeverityWarning Severity = "warning" // Continues with degraded functionality
)

// TexBuildError is a structured error with kind, severity, and context.
type TexBuildError struct {
	Kind     Kind          `json:"kind"`
	Severity Severity      `json:"severity"`
	Message  string        `json:"message"`
	Cause    error         `json:"-"`
	Context  ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for TexBuildError. Values here are
// for diagnostic logs; user-facing messages stay in Message.
type ContextFields map[string]any

// Error implements the error interface.
func (e *TexBuildError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Kind, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Severity, e.Message)
}

// Unwrap implements error unwrapping.
func (e *TexBuildError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error.
func (e *TexBuildError) WithContext(key string, value any) *TexBuildError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new TexBuildError.
func New(kind Kind, severity Severity, message string) *TexBuildError {
	return &TexBuildError{Kind: kind, Severity: severity, Message: message}
}

// Wrap creates a new TexBuildError that wraps an existing error.
func Wrap(err error, kind Kind, severity Severity, message string) *TexBuildError {
	return &TexBuildError{Kind: kind, Severity: severity, Message: message, Cause: err}
}

// As and Is re-export the stdlib helpers so callers handling TexBuildError
// values need only this package.
func As(err error, target any) bool { return errors.As(err, target) }
func Is(err, target error) bool     { return errors.Is(err, target) }

// IsKind reports whether err (or anything it wraps) is a TexBuildError of
// the given kind.
func IsKind(err error, kind Kind) bool {
	var tbe *TexBuildError
	if errors.As(err, &tbe) {
		return tbe.Kind == kind
	}
	return false
}

// KindOf extracts the kind from an error, or KindInternal when the error is
// not a TexBuildError.
func KindOf(err error) Kind {
	var tbe *TexBuildError
	if errors.As(err, &tbe) {
		return tbe.Kind
	}
	return KindInternal
}
