package errors

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/texbuild/texbuild/internal/logfields"
)

// The kind→status mappings below are part of the public contract: CLI exit
// codes and HTTP statuses identify the same failure kind 1:1.

// HTTPStatus maps a failure kind to its HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindSource:
		return http.StatusUnprocessableEntity // 422
	case KindTimeout:
		return http.StatusGatewayTimeout // 504
	case KindEnvironment:
		return http.StatusInternalServerError // 500
	case KindOverload:
		return http.StatusServiceUnavailable // 503
	case KindResource:
		return http.StatusInsufficientStorage // 507
	default:
		return http.StatusInternalServerError
	}
}

// ExitCode maps a failure kind to the process exit code used by the CLI.
func ExitCode(kind Kind) int {
	switch kind {
	case KindSource:
		return 1
	case KindTimeout:
		return 2
	case KindEnvironment:
		return 3
	case KindOverload:
		return 4
	case KindResource:
		return 5
	default:
		return 10
	}
}

// ExitCodeFor determines the process exit code for any error.
func ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	return ExitCode(KindOf(err))
}

// HTTPAdapter writes TexBuildError values as structured JSON responses.
type HTTPAdapter struct {
	logger *slog.Logger
}

// NewHTTPAdapter creates an HTTP error adapter.
func NewHTTPAdapter(logger *slog.Logger) *HTTPAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPAdapter{logger: logger}
}

type errorBody struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// WriteError translates err into the taxonomy, logs the full diagnostic
// (including context fields), and writes the sanitized JSON body. Context
// fields never reach the response; they may name workspace paths.
func (a *HTTPAdapter) WriteError(w http.ResponseWriter, r *http.Request, err error) {
	kind := KindOf(err)
	msg := "internal error"
	var tbe *TexBuildError
	if As(err, &tbe) {
		msg = tbe.Message
		a.logger.Error("request failed",
			logfields.Kind(string(kind)),
			logfields.Method(r.Method),
			logfields.Path(r.URL.Path),
			slog.Any("context", tbe.Context),
			logfields.Error(err))
	} else {
		a.logger.Error("request failed",
			logfields.Kind(string(kind)),
			logfields.Method(r.Method),
			logfields.Path(r.URL.Path),
			logfields.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(kind))
	_ = json.NewEncoder(w).Encode(errorBody{Kind: kind, Message: msg})
}
