// Package watch recompiles documents in a directory tree as they change.
// Changes are debounced per file, and compiles run sequentially on a single
// worker so a burst of saves cannot stack concurrent engine runs for the
// same document.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/texbuild/texbuild/internal/logfields"
)

// CompileFunc compiles one source file. Failures are the callback's business;
// the watcher keeps running either way.
type CompileFunc func(ctx context.Context, path string)

// Watcher drives compiles from filesystem events under a root directory.
type Watcher struct {
	root     string
	debounce time.Duration
	compile  CompileFunc

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	timers  map[string]*time.Timer
	pending map[string]struct{}
	wake    chan struct{}
}

// New builds a watcher over root. The debounce window collapses save bursts
// for the same file into one compile.
func New(root string, debounce time.Duration, compile CompileFunc) (*Watcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve watch root: %w", err)
	}
	st, err := os.Stat(absRoot)
	if err != nil || !st.IsDir() {
		return nil, fmt.Errorf("watch root is not a directory: %s", absRoot)
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	return &Watcher{
		root:     absRoot,
		debounce: debounce,
		compile:  compile,
		fsw:      fsw,
		timers:   make(map[string]*time.Timer),
		pending:  make(map[string]struct{}),
		wake:     make(chan struct{}, 1),
	}, nil
}

// Run compiles every qualifying file under the root once, then blocks
// handling filesystem events until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.close()

	initial, err := w.scan()
	if err != nil {
		return err
	}
	slog.Info("Watching for changes", logfields.Path(w.root), slog.Int("files", len(initial)))
	for _, f := range initial {
		if ctx.Err() != nil {
			return nil
		}
		w.compile(ctx, f)
	}

	if err := w.addDirsRecursive(w.root); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.worker(ctx)
	}()
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Watcher error", logfields.Error(err))
		}
	}
}

// scan returns the qualifying files under the root in a stable order.
func (w *Watcher) scan() ([]string, error) {
	var files []string
	err := filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != w.root {
				return filepath.SkipDir
			}
			return nil
		}
		if qualifies(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan watch root: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if ev.Op&fsnotify.Create != 0 {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			_ = w.addDirsRecursive(ev.Name)
			return
		}
	}
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	if !qualifies(ev.Name) {
		return
	}
	slog.Debug("File change detected", logfields.Path(ev.Name), slog.String("op", ev.Op.String()))
	w.debounceCompile(ev.Name)
}

// debounceCompile arms (or re-arms) the per-file timer; when it fires the
// file joins the pending set and the worker is woken.
func (w *Watcher) debounceCompile(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.pending[path] = struct{}{}
		w.mu.Unlock()
		select {
		case w.wake <- struct{}{}:
		default:
		}
	})
}

// worker drains the pending set one file at a time.
func (w *Watcher) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.wake:
		}
		for {
			path, ok := w.takePending()
			if !ok {
				break
			}
			if ctx.Err() != nil {
				return
			}
			w.compile(ctx, path)
		}
	}
}

func (w *Watcher) takePending() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path := range w.pending {
		delete(w.pending, path)
		return path, true
	}
	return "", false
}

func (w *Watcher) addDirsRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			slog.Warn("Watch add failed", logfields.Path(path), logfields.Error(err))
		}
		return nil
	})
}

func (w *Watcher) close() {
	w.mu.Lock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()
	if err := w.fsw.Close(); err != nil {
		slog.Warn("Watcher close failed", logfields.Error(err))
	}
}

// qualifies reports whether a path names a compilable source. Artifacts the
// compiles themselves produce (.pdf, .log, .aux) never qualify, so a compile
// cannot retrigger itself.
func qualifies(path string) bool {
	base := filepath.Base(path)
	if shouldIgnore(base) {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".tex", ".txt", ".md", ".markdown":
		return true
	}
	return false
}

// shouldIgnore filters hidden files and editor temp/swap files.
func shouldIgnore(base string) bool {
	if strings.HasPrefix(base, ".") {
		return true
	}
	if strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasPrefix(base, ".#") ||
		(strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#")) {
		return true
	}
	return base == ".DS_Store" || base == "Thumbs.db"
}
