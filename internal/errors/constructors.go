package errors

// Convenience constructors for the recurring failure shapes.

// SourceError reports a malformed input document.
func SourceError(message string) *TexBuildError {
	return New(KindSource, SeverityError, message)
}

// WrapSource wraps a cause as a source failure.
func WrapSource(cause error, message string) *TexBuildError {
	return Wrap(cause, KindSource, SeverityError, message)
}

// EnvironmentError reports a missing or misconfigured engine. The message
// must not name internal file paths; put those in context fields instead.
func EnvironmentError(message string) *TexBuildError {
	return New(KindEnvironment, SeverityFatal, message)
}

// WrapEnvironment wraps a cause as an environment failure.
func WrapEnvironment(cause error, message string) *TexBuildError {
	return Wrap(cause, KindEnvironment, SeverityFatal, message)
}

// TimeoutError reports a job that exceeded its time budget.
func TimeoutError(message string) *TexBuildError {
	return New(KindTimeout, SeverityError, message)
}

// OverloadError reports dispatcher saturation.
func OverloadError(message string) *TexBuildError {
	return New(KindOverload, SeverityWarning, message)
}

// ResourceError reports a workspace allocation failure. Same path-hygiene
// rule as EnvironmentError.
func ResourceError(message string) *TexBuildError {
	return New(KindResource, SeverityFatal, message)
}

// WrapResource wraps a cause as a resource failure.
func WrapResource(cause error, message string) *TexBuildError {
	return Wrap(cause, KindResource, SeverityFatal, message)
}

// Internal reports an unclassified failure.
func Internal(cause error, message string) *TexBuildError {
	return Wrap(cause, KindInternal, SeverityError, message)
}
