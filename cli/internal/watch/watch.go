// Package watch re-runs a callback when mapper files change.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/satishbabariya/batis-go/internal/debug"
)

// DefaultDebounce is the quiet period after the last event before the
// callback runs.
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches a mapper directory tree for changes
type Watcher struct {
	dir      string
	callback func() error
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onError  func(error)
}

// NewWatcher creates a watcher for every directory below dir.
func NewWatcher(dir string, callback func() error) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	err = filepath.WalkDir(absDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}

	return &Watcher{
		dir:      absDir,
		callback: callback,
		watcher:  watcher,
		debounce: DefaultDebounce,
		onError: func(err error) {
			debug.Error("watch callback failed", "error", err)
		},
	}, nil
}

// SetDebounce changes the quiet period.
func (w *Watcher) SetDebounce(d time.Duration) { w.debounce = d }

// OnError sets the handler for callback and watcher errors.
func (w *Watcher) OnError(fn func(error)) { w.onError = fn }

// Run calls the callback once and again after every burst of mapper file
// changes, until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	if err := w.callback(); err != nil {
		w.onError(err)
	}

	debounceTimer := time.NewTimer(w.debounce)
	debounceTimer.Stop()
	var debounceCh <-chan time.Time

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				w.addIfDir(event.Name)
			}
			if IsMapperEvent(event) {
				debounceTimer.Reset(w.debounce)
				debounceCh = debounceTimer.C
			}

		case <-debounceCh:
			debounceCh = nil
			if err := w.callback(); err != nil {
				w.onError(err)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.onError(err)

		case <-ctx.Done():
			debounceTimer.Stop()
			return ctx.Err()
		}
	}
}

func (w *Watcher) addIfDir(path string) {
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		_ = w.watcher.Add(path)
	}
}

// IsMapperEvent reports whether event changes a mapper file.
func IsMapperEvent(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	switch strings.ToLower(filepath.Ext(event.Name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
