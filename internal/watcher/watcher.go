// Package watcher observes a single file on disk and reports Created,
// Changed, and Destroyed transitions to a channel. Two interchangeable
// strategies are provided: Poll (mtime comparison on an interval) and
// Notify (OS filesystem-change notifications on the parent directory).
package watcher

import (
	"fmt"
	"os"
	"time"
)

// EventKind enumerates the transitions a Watcher can report.
type EventKind int

const (
	Created EventKind = iota
	Changed
	Destroyed
)

func (k EventKind) String() string {
	switch k {
	case Created:
		return "created"
	case Changed:
		return "changed"
	case Destroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Event is a single observed transition for the watched path.
type Event struct {
	Kind EventKind
	Path string
}

// Watcher observes a single file and emits events on a channel until Stop is
// called. Run executes the observation loop on the caller's goroutine and
// blocks until Stop is called or the loop fails, so callers that need to
// keep working start it on a goroutine of their own.
type Watcher interface {
	// Run starts watching path, sending events to events until Stop is
	// called or an unrecoverable error occurs (in which case Run returns
	// the error on the caller's goroutine; this is fatal to the process,
	// since the watcher channel going silently quiet would stall restarts).
	Run(path string, events chan<- Event) error

	// Stop halts the watcher and releases any OS resources it holds.
	Stop() error
}

// requireFile stats path and returns an error unless it resolves to a
// regular file. Both watcher strategies must refuse to start against a path
// that isn't a file yet, rather than silently waiting for it to appear.
func requireFile(path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("watcher: %s must be a file: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("watcher: %s must be a file", path)
	}
	return info, nil
}

// Kind identifies which watcher strategy a Config selects.
type Kind string

const (
	KindPoll   Kind = "poll"
	KindNotify Kind = "notify"
)

// New constructs the Watcher implementation named by kind. pollInterval is
// used only when kind is KindPoll.
func New(kind Kind, pollInterval time.Duration) (Watcher, error) {
	switch kind {
	case KindPoll:
		return NewPollWatcher(pollInterval), nil
	case KindNotify:
		return NewNotifyWatcher(), nil
	default:
		return nil, fmt.Errorf("watcher: unknown kind %q, expected %q or %q", kind, KindPoll, KindNotify)
	}
}
