// Package watcher re-indexes the project when source files change.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/codescope/codescope/internal/config"
	"github.com/codescope/codescope/internal/index"
)

// DefaultDebounce coalesces change bursts (editor saves, git
// checkouts) into one re-index.
const DefaultDebounce = 500 * time.Millisecond

// Watcher listens for filesystem events under the project root and
// triggers debounced indexing runs.
type Watcher struct {
	root     string
	cfg      *config.Config
	runner   *index.Runner
	debounce time.Duration
	logger   *slog.Logger

	// OnRun, when set, receives each run's result. Used by the CLI to
	// print progress and by tests to observe runs.
	OnRun func(*index.Result, error)
}

// New creates a watcher that drives the given runner.
func New(root string, cfg *config.Config, runner *index.Runner, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		root:     root,
		cfg:      cfg,
		runner:   runner,
		debounce: DefaultDebounce,
		logger:   logger,
	}
}

// Watch blocks until ctx is done, re-indexing after each settled burst
// of relevant filesystem events.
func (w *Watcher) Watch(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fsw.Close() }()

	if err := w.addDirs(fsw); err != nil {
		return err
	}

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			// New directories must be watched before their contents
			// settle.
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.maybeWatchDir(fsw, event.Name)
				}
			}
			w.logger.Debug("file event", "op", event.Op.String(), "path", event.Name)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)

		case <-timerC:
			timer = nil
			timerC = nil
			result, err := w.runner.Run(ctx)
			if err != nil {
				w.logger.Warn("re-index failed", "error", err)
			}
			if w.OnRun != nil {
				w.OnRun(result, err)
			}
		}
	}
}

// addDirs registers the root and all non-excluded subdirectories.
func (w *Watcher) addDirs(fsw *fsnotify.Watcher) error {
	return filepath.WalkDir(w.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil || !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return nil
		}
		if rel != "." && w.excludedPath(filepath.ToSlash(rel)) {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			w.logger.Warn("cannot watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) maybeWatchDir(fsw *fsnotify.Watcher, path string) error {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || w.excludedPath(filepath.ToSlash(rel)) {
		return nil
	}
	return fsw.Add(path)
}

// relevant filters events down to indexable source files.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op.Has(fsnotify.Chmod) {
		return false
	}
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	if w.excludedPath(rel) {
		return false
	}

	ext := strings.ToLower(filepath.Ext(event.Name))
	if ext == "" {
		// Could be a directory event; let the debounce decide.
		return event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Remove)
	}
	for _, inc := range w.cfg.Paths.Include {
		if ext == strings.ToLower(inc) {
			return true
		}
	}
	return false
}

func (w *Watcher) excludedPath(rel string) bool {
	for _, ex := range w.cfg.Paths.Exclude {
		if ex == "" {
			continue
		}
		for _, seg := range strings.Split(rel, "/") {
			if seg == ex {
				return true
			}
		}
	}
	return false
}
