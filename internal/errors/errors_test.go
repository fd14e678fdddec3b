package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	e := New(KindSource, SeverityError, "undefined control sequence")
	assert.Equal(t, "source (error): undefined control sequence", e.Error())

	wrapped := Wrap(fmt.Errorf("exit status 1"), KindEnvironment, SeverityFatal, "engine not usable")
	assert.Contains(t, wrapped.Error(), "exit status 1")
	assert.Contains(t, wrapped.Error(), "environment (fatal)")
}

func TestUnwrapAndKindOf(t *testing.T) {
	cause := fmt.Errorf("no space left on device")
	e := WrapResource(cause, "workspace allocation failed")

	assert.Equal(t, cause, e.Unwrap())
	assert.Equal(t, KindResource, KindOf(e))
	assert.True(t, IsKind(e, KindResource))
	assert.False(t, IsKind(e, KindTimeout))

	// Wrapping with %w must still classify through the chain.
	outer := fmt.Errorf("submit: %w", e)
	assert.Equal(t, KindResource, KindOf(outer))
	assert.True(t, IsKind(outer, KindResource))

	// Plain errors fall back to internal.
	assert.Equal(t, KindInternal, KindOf(fmt.Errorf("plain")))
}

func TestWithContext(t *testing.T) {
	e := EnvironmentError("engine not found").
		WithContext("binary", "/usr/bin/pdflatex").
		WithContext("probe", "--version")

	assert.Equal(t, "/usr/bin/pdflatex", e.Context["binary"])
	assert.Equal(t, "--version", e.Context["probe"])
	// Message stays path-free; paths only travel in context.
	assert.NotContains(t, e.Message, "/usr/bin")
}

func TestStatusMappings(t *testing.T) {
	cases := []struct {
		kind   Kind
		status int
		exit   int
	}{
		{KindSource, http.StatusUnprocessableEntity, 1},
		{KindTimeout, http.StatusGatewayTimeout, 2},
		{KindEnvironment, http.StatusInternalServerError, 3},
		{KindOverload, http.StatusServiceUnavailable, 4},
		{KindResource, http.StatusInsufficientStorage, 5},
		{KindInternal, http.StatusInternalServerError, 10},
	}
	for _, c := range cases {
		assert.Equal(t, c.status, HTTPStatus(c.kind), "status for %s", c.kind)
		assert.Equal(t, c.exit, ExitCode(c.kind), "exit for %s", c.kind)
	}
	assert.Equal(t, 0, ExitCodeFor(nil))
	assert.Equal(t, 4, ExitCodeFor(OverloadError("queue full")))
}
