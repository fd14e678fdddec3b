package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	texerrors "github.com/texbuild/texbuild/internal/errors"
	"github.com/texbuild/texbuild/internal/logfields"
)

// Manager creates and removes per-job build directories under a common root.
type Manager struct {
	root string
}

// NewManager returns a manager rooted at baseDir. An empty baseDir falls back
// to a texbuild directory under the system temp dir.
func NewManager(baseDir string) *Manager {
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "texbuild")
	}
	return &Manager{root: baseDir}
}

// Root returns the directory all workspaces are created under.
func (m *Manager) Root() string {
	return m.root
}

// Create materializes an isolated directory for the given job and writes the
// source into it under a sanitized name with a forced .tex extension. The
// directory is keyed by the job id and created exclusively, so two jobs can
// never end up sharing a workspace.
func (m *Manager) Create(jobID, filename string, source []byte) (*Workspace, error) {
	if err := os.MkdirAll(m.root, 0o750); err != nil {
		return nil, texerrors.WrapResource(err, "unable to prepare build area")
	}

	dir := filepath.Join(m.root, "job-"+jobID)
	if err := os.Mkdir(dir, 0o750); err != nil {
		return nil, texerrors.WrapResource(err, "unable to create build workspace")
	}

	main := MainFileName(filename)
	if err := os.WriteFile(filepath.Join(dir, main), source, 0o640); err != nil {
		_ = os.RemoveAll(dir)
		return nil, texerrors.WrapResource(err, "unable to write source file")
	}

	slog.Debug("Created workspace",
		logfields.JobID(jobID),
		logfields.Path(dir),
		logfields.Filename(main))

	return &Workspace{dir: dir, mainFile: main}, nil
}

// Sweep removes job directories whose last modification is older than maxAge.
// Live jobs are always younger than any sane maxAge; the sweeper exists to
// collect residue from crashed runs. It returns the number of directories
// removed.
func (m *Manager) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to scan workspace root: %w", err)
	}

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "job-") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		dir := filepath.Join(m.root, entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("Failed to sweep stale workspace", logfields.Path(dir), logfields.Error(err))
			continue
		}
		slog.Info("Swept stale workspace", logfields.Path(dir))
		removed++
	}
	return removed, nil
}

// MainFileName reduces filename to a safe base name with a .tex extension.
// Path separators and parent references never survive, so a hostile filename
// cannot place the source outside its workspace.
func MainFileName(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == ".." {
		stem = "document"
	}
	return stem + ".tex"
}

// Workspace is one job's private build directory.
type Workspace struct {
	dir      string
	mainFile string
}

// Path returns the workspace directory. The engine uses it as its working
// directory.
func (w *Workspace) Path() string {
	return w.dir
}

// MainFile returns the source file name relative to the workspace.
func (w *Workspace) MainFile() string {
	return w.mainFile
}

// ArtifactPath returns where the engine drops the rendered PDF on success.
func (w *Workspace) ArtifactPath() string {
	stem := strings.TrimSuffix(w.mainFile, filepath.Ext(w.mainFile))
	return filepath.Join(w.dir, stem+".pdf")
}

// Destroy removes the workspace directory and everything in it. Destroying an
// already-destroyed workspace is a no-op.
func (w *Workspace) Destroy() error {
	if w == nil || w.dir == "" {
		return nil
	}
	if err := os.RemoveAll(w.dir); err != nil {
		return texerrors.WrapResource(err, "unable to remove build workspace")
	}
	slog.Debug("Destroyed workspace", logfields.Path(w.dir))
	return nil
}
