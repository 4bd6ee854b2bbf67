// SPDX-License-Identifier: MPL-2.0

// Package watch rebuilds artifacts when the source tree changes.
//
// A Watcher registers every directory below Root with fsnotify and calls
// OnChange once per burst of events, after Debounce of quiet. Paths the
// Skip filter rejects never trigger a rebuild, which keeps a build's own
// output from retriggering it.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// ErrAlreadyRunning is returned by a second call to Run.
var ErrAlreadyRunning = errors.New("watch: Run called more than once")

type (
	// SkipFunc reports whether the slash-separated path rel (relative to
	// Root) should be ignored. Skipped directories are not descended into.
	SkipFunc func(rel string, isDir bool) bool

	// Config holds the parameters for a Watcher.
	Config struct {
		// Root is the directory tree to watch.
		Root string
		// Skip filters paths; nil watches everything.
		Skip SkipFunc
		// Debounce is the quiet period before OnChange fires. Zero or
		// negative means 500ms.
		Debounce time.Duration
		// OnChange receives the sorted, deduplicated changed paths.
		OnChange func(ctx context.Context, changed []string) error
		// Logger receives watcher diagnostics; nil means slog.Default().
		Logger *slog.Logger
	}

	// Watcher monitors Root and fires a debounced callback on changes.
	Watcher struct {
		cfg      Config
		fsw      *fsnotify.Watcher
		root     string
		debounce time.Duration
		logger   *slog.Logger
		started  atomic.Bool
	}
)

// New resolves Root, creates the fsnotify watcher and registers every
// directory that Skip does not reject.
func New(cfg Config) (*Watcher, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve root: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		root:     root,
		debounce: cfg.Debounce,
		logger:   cfg.Logger,
	}
	if w.debounce <= 0 {
		w.debounce = defaultDebounce
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}

	if err := w.addTree(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run processes events until ctx is canceled. It returns nil on
// cancellation and an error when the watcher breaks for good. Callbacks
// never overlap; events arriving during a callback are delivered in the
// next one.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]struct{})
		timer   *time.Timer
		running atomic.Bool
	)

	fire := func() {
		if ctx.Err() != nil {
			return
		}
		if !running.CompareAndSwap(false, true) {
			// Busy: try again once the current callback had time to finish.
			mu.Lock()
			timer.Reset(w.debounce)
			mu.Unlock()
			return
		}
		defer running.Store(false)

		mu.Lock()
		changed := slices.Sorted(maps.Keys(pending))
		clear(pending)
		mu.Unlock()
		if len(changed) == 0 || w.cfg.OnChange == nil {
			return
		}
		if err := w.cfg.OnChange(ctx, changed); err != nil {
			w.logger.Warn("rebuild failed", "error", err)
		}
	}

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		if err := w.fsw.Close(); err != nil {
			w.logger.Debug("closing fsnotify watcher", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: event channel closed")
			}
			rel, ok := w.relative(evt.Name)
			if !ok {
				continue
			}
			info, statErr := os.Stat(evt.Name)
			isDir := statErr == nil && info.IsDir()
			if w.skip(rel, isDir) {
				continue
			}
			if isDir && evt.Has(fsnotify.Create) {
				if err := w.addTree(evt.Name); err != nil {
					w.logger.Warn("cannot watch new directory", "path", evt.Name, "error", err)
				}
			}

			mu.Lock()
			pending[rel] = struct{}{}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: error channel closed")
			}
			if isFatalFsnotifyError(err) {
				return fmt.Errorf("watch: %w", err)
			}
			w.logger.Warn("fsnotify error", "error", err)
		}
	}
}

// addTree registers dir and every non-skipped directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return fmt.Errorf("watch: %w", err)
			}
			w.logger.Debug("not watching inaccessible path", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel, ok := w.relative(path); ok && rel != "." && w.skip(rel, true) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch: add %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) relative(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (w *Watcher) skip(rel string, isDir bool) bool {
	return w.cfg.Skip != nil && w.cfg.Skip(rel, isDir)
}
