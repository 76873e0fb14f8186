// internal/ruleset/watch.go
package ruleset

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a file must be quiet before it is reloaded.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads a rule-set file when it changes.
//
// The parent directory is watched rather than the file so editors that
// replace the file (write to temp, rename over) keep triggering reloads.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	debounce time.Duration
	onLoad   func(*Decoded, error)
}

// NewWatcher watches path and calls onLoad with each reload result.
func NewWatcher(path string, debounce time.Duration, onLoad func(*Decoded, error)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", path, err)
	}

	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		watcher:  watcher,
		path:     abs,
		debounce: debounce,
		onLoad:   onLoad,
	}, nil
}

// Run delivers reloads until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(w.debounce, func() {
					w.onLoad(LoadFile(w.path))
				})
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("file watcher error", slog.String("path", w.path), slog.Any("error", err))
		}
	}
}
