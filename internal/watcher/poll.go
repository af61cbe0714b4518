package watcher

import (
	"os"
	"sync"
	"time"

	"github.com/relohq/relo/internal/logger"
)

// DefaultPollInterval is used when a caller does not specify one.
const DefaultPollInterval = 2 * time.Second

// PollWatcher observes a file by polling its mtime on a fixed interval. This
// is more reliable than OS change notifications for artifacts that may be
// atomically replaced (rename-based builds routinely do this), at the cost
// of up-to-interval detection latency.
type PollWatcher struct {
	interval time.Duration

	mu      sync.Mutex
	stopCh  chan struct{}
	stopped bool
}

// NewPollWatcher returns a PollWatcher using the given poll interval. A
// non-positive interval falls back to DefaultPollInterval.
func NewPollWatcher(interval time.Duration) *PollWatcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PollWatcher{interval: interval}
}

// Run watches path, polling its mtime every interval until Stop is called.
// path must already resolve to a regular file; Run refuses to start
// otherwise.
func (w *PollWatcher) Run(path string, events chan<- Event) error {
	info, err := requireFile(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.stopCh = make(chan struct{})
	w.stopped = false
	stopCh := w.stopCh
	w.mu.Unlock()

	lastMod := info.ModTime()
	exists := true

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return nil
		case <-ticker.C:
			w.checkAndEmit(path, &lastMod, &exists, events)
		}
	}
}

func (w *PollWatcher) checkAndEmit(path string, lastMod *time.Time, exists *bool, events chan<- Event) {
	info, err := os.Stat(path)
	switch {
	case err != nil:
		if *exists {
			*exists = false
			logger.Debug("poll watcher observed artifact removal", logger.WatchedPath(path))
			events <- Event{Kind: Destroyed, Path: path}
		}
	case !*exists:
		*exists = true
		*lastMod = info.ModTime()
		logger.Debug("poll watcher observed artifact creation", logger.WatchedPath(path))
		events <- Event{Kind: Created, Path: path}
	case !info.ModTime().Equal(*lastMod):
		*lastMod = info.ModTime()
		logger.Debug("poll watcher observed artifact change", logger.WatchedPath(path))
		events <- Event{Kind: Changed, Path: path}
	}
}

// Stop halts the poll loop. Safe to call multiple times.
func (w *PollWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || w.stopCh == nil {
		w.stopped = true
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	return nil
}
