package gitsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/texbuild/texbuild/internal/config"
	texerrors "github.com/texbuild/texbuild/internal/errors"
	"github.com/texbuild/texbuild/internal/logfields"
	"github.com/texbuild/texbuild/internal/retry"
)

// Request names a file inside a remote repository. Ref may be a branch or a
// tag; empty means the remote's default branch.
type Request struct {
	URL  string `json:"url"`
	Path string `json:"path"`
	Ref  string `json:"ref,omitempty"`
}

// Fetcher clones repositories and extracts single files from them.
type Fetcher struct {
	depth   int
	timeout time.Duration
	policy  retry.Policy
}

// New builds a fetcher from the git configuration section.
func New(cfg config.GitConfig) *Fetcher {
	timeout := cfg.TimeoutDuration()
	if timeout <= 0 {
		timeout = config.DefaultGitTimeout
	}
	return &Fetcher{depth: cfg.Depth, timeout: timeout, policy: retry.DefaultPolicy()}
}

// Fetch clones the repository and returns the named file's bytes. The clone
// lives in a temporary directory that is removed before Fetch returns.
func (f *Fetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if strings.TrimSpace(req.URL) == "" {
		return nil, texerrors.SourceError("repository url is required")
	}
	rel, err := cleanRepoPath(req.Path)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	dir, err := os.MkdirTemp("", "texbuild-git-")
	if err != nil {
		return nil, texerrors.WrapResource(err, "could not allocate a clone directory")
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			slog.Warn("Clone directory cleanup failed", logfields.Path(dir), logfields.Error(rmErr))
		}
	}()

	var repo *git.Repository
	err = f.withRetry(ctx, "clone", req.URL, func() error {
		var cloneErr error
		repo, cloneErr = f.clone(ctx, dir, req)
		return cloneErr
	})
	if err != nil {
		return nil, f.classifyFetchError(err, req)
	}

	if ref, headErr := repo.Head(); headErr == nil {
		slog.Info("Repository cloned",
			logfields.URL(req.URL),
			slog.String("commit", ref.Hash().String()[:8]))
	}

	full := filepath.Join(dir, filepath.FromSlash(rel))
	info, err := os.Stat(full)
	switch {
	case os.IsNotExist(err):
		return nil, texerrors.SourceError(fmt.Sprintf("file %q not found in repository", req.Path))
	case err != nil:
		return nil, texerrors.WrapResource(err, "fetched file could not be read")
	case info.IsDir():
		return nil, texerrors.SourceError(fmt.Sprintf("%q is a directory, not a file", req.Path))
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, texerrors.WrapResource(err, "fetched file could not be read")
	}
	return data, nil
}

// clone runs one clone attempt. A ref is tried as a branch first, then as a
// tag under the same name.
func (f *Fetcher) clone(ctx context.Context, dir string, req Request) (*git.Repository, error) {
	// A failed attempt can leave a partial clone behind; start clean.
	if err := os.RemoveAll(dir); err != nil {
		return nil, texerrors.WrapResource(err, "could not reset the clone directory")
	}

	opts := &git.CloneOptions{URL: req.URL, SingleBranch: true}
	if f.depth > 0 {
		opts.Depth = f.depth
	}
	if req.Ref == "" {
		return git.PlainCloneContext(ctx, dir, false, opts)
	}

	opts.ReferenceName = plumbing.NewBranchReferenceName(req.Ref)
	repo, err := git.PlainCloneContext(ctx, dir, false, opts)
	if err == nil || !isRefNotFound(err) {
		return repo, err
	}

	if err := os.RemoveAll(dir); err != nil {
		return nil, texerrors.WrapResource(err, "could not reset the clone directory")
	}
	opts.ReferenceName = plumbing.NewTagReferenceName(req.Ref)
	return git.PlainCloneContext(ctx, dir, false, opts)
}

// classifyFetchError translates clone failures into the failure taxonomy.
// The repository URL goes into context fields, not the message.
func (f *Fetcher) classifyFetchError(err error, req Request) error {
	var tbe *texerrors.TexBuildError
	if errors.As(err, &tbe) {
		return tbe
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return texerrors.TimeoutError(fmt.Sprintf("repository fetch did not finish within %s", f.timeout)).
			WithContext("url", req.URL)
	case errors.Is(err, transport.ErrRepositoryNotFound):
		return texerrors.SourceError("repository not found").WithContext("url", req.URL)
	case errors.Is(err, transport.ErrEmptyRemoteRepository):
		return texerrors.SourceError("repository is empty").WithContext("url", req.URL)
	case errors.Is(err, transport.ErrAuthenticationRequired), errors.Is(err, transport.ErrAuthorizationFailed):
		return texerrors.SourceError("repository requires credentials").WithContext("url", req.URL)
	case isRefNotFound(err):
		return texerrors.SourceError(fmt.Sprintf("ref %q not found in repository", req.Ref)).
			WithContext("url", req.URL)
	default:
		return texerrors.WrapEnvironment(err, "repository could not be fetched").WithContext("url", req.URL)
	}
}

func isRefNotFound(err error) bool {
	return errors.Is(err, plumbing.ErrReferenceNotFound) ||
		errors.Is(err, git.NoMatchingRefSpecError{})
}

// cleanRepoPath normalizes a repository-relative file path and rejects
// anything that would escape the clone.
func cleanRepoPath(p string) (string, error) {
	p = strings.TrimSpace(strings.ReplaceAll(p, `\`, "/"))
	if p == "" {
		return "", texerrors.SourceError("file path in repository is required")
	}
	cleaned := path.Clean(p)
	if path.IsAbs(cleaned) || cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", texerrors.SourceError(fmt.Sprintf("file path %q must stay inside the repository", p))
	}
	return cleaned, nil
}
