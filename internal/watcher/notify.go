package watcher

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/relohq/relo/internal/logger"
)

// NotifyWatcher observes a file via OS filesystem-change notifications. The
// parent directory is watched rather than the file itself, non-recursively,
// since a rebuild typically replaces the artifact by rename rather than
// writing it in place, and a watch on the old inode would otherwise go
// silent across the swap.
type NotifyWatcher struct {
	mu     sync.Mutex
	fsw    *fsnotify.Watcher
	stopCh chan struct{}
}

// NewNotifyWatcher returns a NotifyWatcher.
func NewNotifyWatcher() *NotifyWatcher {
	return &NotifyWatcher{}
}

// Run watches the directory containing path, filtering events down to path
// itself, until Stop is called. path must already resolve to a regular
// file; Run refuses to start otherwise.
func (w *NotifyWatcher) Run(path string, events chan<- Event) error {
	if _, err := requireFile(path); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	target := filepath.Clean(path)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("notify watcher: create: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("notify watcher: watch %s: %w", dir, err)
	}

	w.mu.Lock()
	w.fsw = fsw
	w.stopCh = make(chan struct{})
	stopCh := w.stopCh
	w.mu.Unlock()

	defer func() { _ = fsw.Close() }()

	exists := true

	for {
		select {
		case <-stopCh:
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}

			switch {
			case event.Op&(fsnotify.Create) != 0:
				exists = true
				logger.Debug("notify watcher observed artifact creation", logger.WatchedPath(path))
				events <- Event{Kind: Created, Path: path}
			case event.Op&(fsnotify.Write) != 0:
				if !exists {
					exists = true
					events <- Event{Kind: Created, Path: path}
					continue
				}
				logger.Debug("notify watcher observed artifact change", logger.WatchedPath(path))
				events <- Event{Kind: Changed, Path: path}
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				if exists {
					exists = false
					logger.Debug("notify watcher observed artifact removal", logger.WatchedPath(path))
					events <- Event{Kind: Destroyed, Path: path}
				}
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("notify watcher: %w", err)
		}
	}
}

// Stop halts the notify loop and closes the underlying OS watch handle.
func (w *NotifyWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopCh != nil {
		select {
		case <-w.stopCh:
		default:
			close(w.stopCh)
		}
	}
	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}
