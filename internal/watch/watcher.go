// Package watch triggers rebuilds when project sources change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/spark/internal/logfields"
)

// DefaultDebounce coalesces editor save bursts into one rebuild.
const DefaultDebounce = 300 * time.Millisecond

// Filter reports whether a change to path should trigger a rebuild.
type Filter func(path string) bool

// Watcher monitors directory trees and calls back once changes settle.
type Watcher struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration
	filter   Filter
	exclude  []string
	watched  map[string]struct{}

	closeOnce sync.Once
	closeErr  error
}

// New creates a Watcher. A nil filter accepts every path.
func New(debounce time.Duration, filter Filter) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if filter == nil {
		filter = func(string) bool { return true }
	}
	return &Watcher{
		fsw:      fsw,
		debounce: debounce,
		filter:   filter,
		watched:  make(map[string]struct{}),
	}, nil
}

// Exclude skips dir and everything below it (typically the object directory).
func (w *Watcher) Exclude(dir string) {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	w.exclude = append(w.exclude, dir)
}

func (w *Watcher) excluded(path string) bool {
	for _, ex := range w.exclude {
		if path == ex || strings.HasPrefix(path, ex+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// AddTree watches root and every directory below it. Hidden directories are
// skipped. A missing root is not an error; it is simply not watched.
func (w *Watcher) AddTree(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != abs && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if w.excluded(path) {
			return filepath.SkipDir
		}
		return w.add(path)
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// AddDir watches a single directory without descending.
func (w *Watcher) AddDir(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err != nil {
		return nil
	}
	return w.add(abs)
}

func (w *Watcher) add(dir string) error {
	if _, ok := w.watched[dir]; ok {
		return nil
	}
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}
	w.watched[dir] = struct{}{}
	slog.Debug("Watching directory", logfields.Path(dir))
	return nil
}

// Close releases the underlying watcher. It is safe to call more than once;
// Run closes the watcher itself when it returns.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		w.closeErr = w.fsw.Close()
	})
	return w.closeErr
}

// Dirs returns the number of watched directories.
func (w *Watcher) Dirs() int {
	return len(w.watched)
}

// Run blocks until ctx is done, calling onChange once per settled burst of
// relevant events. onChange runs on the watcher goroutine, so rebuilds never
// overlap; changes made while it runs produce one more call afterwards.
func (w *Watcher) Run(ctx context.Context, onChange func(ctx context.Context)) error {
	defer func() {
		if err := w.Close(); err != nil {
			slog.Error("Error closing file watcher", logfields.Error(err))
		}
	}()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			slog.Debug("Change detected", logfields.Path(event.Name), slog.String("op", event.Op.String()))
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			fire = timer.C
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Error("File watcher error", logfields.Error(err))
		case <-fire:
			fire = nil
			onChange(ctx)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod || w.excluded(event.Name) {
		return false
	}
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.AddTree(event.Name); err != nil {
				slog.Warn("Failed to watch new directory", logfields.Path(event.Name), logfields.Error(err))
			}
			return true
		}
	}
	return w.filter(event.Name)
}
