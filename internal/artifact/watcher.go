package artifact

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// StatusWatcher calls onChange whenever the daemon rewrites its status file.
// The directory is watched rather than the file, because the daemon replaces
// the file by rename.
type StatusWatcher struct {
	watcher  *fsnotify.Watcher
	name     string
	onChange func()
	logger   *slog.Logger
}

// NewStatusWatcher watches the directory of w for status file changes.
func NewStatusWatcher(w *Writer, onChange func()) (*StatusWatcher, error) {
	if err := os.MkdirAll(w.Dir(), 0o700); err != nil {
		return nil, fmt.Errorf("creating runtime dir: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := fsw.Add(w.Dir()); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", w.Dir(), err)
	}
	return &StatusWatcher{
		watcher:  fsw,
		name:     StatusFile,
		onChange: onChange,
		logger:   slog.Default(),
	}, nil
}

// Run delivers notifications until ctx is cancelled or the watcher is closed.
func (sw *StatusWatcher) Run(ctx context.Context) error {
	defer sw.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sw.watcher.Events:
			if !ok {
				return nil
			}
			if sw.relevant(ev) {
				sw.onChange()
			}
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return nil
			}
			sw.logger.Warn("status watcher error", "error", err)
		}
	}
}

// Close stops the watcher.
func (sw *StatusWatcher) Close() error {
	return sw.watcher.Close()
}

func (sw *StatusWatcher) relevant(ev fsnotify.Event) bool {
	if filepath.Base(ev.Name) != sw.name {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}
