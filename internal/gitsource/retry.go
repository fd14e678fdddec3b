package gitsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing/transport"

	texerrors "github.com/texbuild/texbuild/internal/errors"
	"github.com/texbuild/texbuild/internal/logfields"
)

// withRetry runs fn, retrying transient failures per the fetcher's policy.
// Permanent failures (bad URL, missing ref, credentials) return immediately.
func (f *Fetcher) withRetry(ctx context.Context, op, url string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= f.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			slog.Warn("Retrying git operation",
				slog.String("operation", op),
				logfields.URL(url),
				slog.Int("attempt", attempt))
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if isPermanentFetchError(err) {
			return err
		}
		if attempt == f.policy.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.policy.Delay(attempt + 1)):
		}
	}
	return fmt.Errorf("git %s failed after retries: %w", op, lastErr)
}

// isPermanentFetchError reports whether retrying cannot help. Typed sentinels
// are checked first; the string heuristics cover transports that only return
// formatted errors.
func isPermanentFetchError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, transport.ErrRepositoryNotFound) ||
		errors.Is(err, transport.ErrEmptyRemoteRepository) ||
		errors.Is(err, transport.ErrAuthenticationRequired) ||
		errors.Is(err, transport.ErrAuthorizationFailed) {
		return true
	}
	if isRefNotFound(err) {
		return true
	}
	var tbe *texerrors.TexBuildError
	if errors.As(err, &tbe) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "auth") || strings.Contains(msg, "permission") || strings.Contains(msg, "denied") {
		return true
	}
	if strings.Contains(msg, "not found") || strings.Contains(msg, "invalid reference") {
		return true
	}
	if strings.Contains(msg, "unsupported protocol") || strings.Contains(msg, "unsupported scheme") {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return !nerr.Timeout()
	}
	return false
}
