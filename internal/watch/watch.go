// Package watch re-runs an action whenever outcome artifacts appear or change
// under a directory tree.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/newhook/necropolis/internal/aggregate"
	"github.com/newhook/necropolis/internal/logging"
	"github.com/patrickmn/go-cache"
)

const defaultDebounce = 2 * time.Second

// Config configures a Watcher.
type Config struct {
	// Dir is the artifacts directory. It is created if missing.
	Dir string
	// Debounce is the quiet period after the last relevant event before
	// OnChange runs.
	Debounce time.Duration
	// OnChange runs on the watcher goroutine; events arriving meanwhile are
	// coalesced into the next call.
	OnChange func(ctx context.Context)
}

// Watcher watches Dir recursively.
type Watcher struct {
	cfg     Config
	fsw     *fsnotify.Watcher
	recent  *cache.Cache
	pending bool
}

// New creates a Watcher and registers Dir and its subdirectories.
func New(cfg Config) (*Watcher, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	if cfg.OnChange == nil {
		return nil, errors.New("watch: OnChange is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", cfg.Dir, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	w := &Watcher{
		cfg:    cfg,
		fsw:    fsw,
		recent: cache.New(cfg.Debounce, 0),
	}
	if err := w.addTree(cfg.Dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run blocks until ctx is cancelled, calling OnChange after each burst of
// relevant events.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	timer := time.NewTimer(w.cfg.Debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if w.handle(ev) {
				timer.Reset(w.cfg.Debounce)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logging.Warn("watcher error", "error", err)
		case <-timer.C:
			if !w.pending {
				continue
			}
			w.pending = false
			logging.Debug("artifacts changed", "dir", w.cfg.Dir)
			w.cfg.OnChange(ctx)
		}
	}
}

// handle reports whether ev should (re)start the debounce timer.
func (w *Watcher) handle(ev fsnotify.Event) bool {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				logging.Warn("failed to watch directory", "path", ev.Name, "error", err)
			}
			// Files may have landed before the directory was registered.
			w.pending = true
			return true
		}
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
		return false
	}
	if _, ok := aggregate.KindOf(filepath.Base(ev.Name)); !ok {
		return false
	}

	// Repeated writes to the same file within the debounce window only
	// need to be seen once.
	if err := w.recent.Add(ev.Name, ev.Op, cache.DefaultExpiration); err != nil {
		return w.pending
	}
	w.pending = true
	return true
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}
