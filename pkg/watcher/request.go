// Package watcher turns filesystem notifications into debounced per-file
// reanalysis requests and applies them to the analysis cache.
package watcher

import (
	"errors"
	"fmt"
)

// Op is what the consumer should do for a path.
type Op uint8

// Request operations.
const (
	// OpReanalyze re-reads and re-parses a created or modified file.
	OpReanalyze Op = iota + 1
	// OpRemove drops a deleted file, or everything under a deleted directory.
	OpRemove
	// OpRescan asks for a full rescan after the notifier lost events.
	OpRescan
)

// String returns the op name.
func (o Op) String() string {
	switch o {
	case OpReanalyze:
		return "reanalyze"
	case OpRemove:
		return "remove"
	case OpRescan:
		return "rescan"
	default:
		return "unknown"
	}
}

// Event is a normalized raw notification.
type Event struct {
	Op   Op
	Path string
}

// Request is one debounced change. Requests of one flush share Batch and the
// final one has Last set.
type Request struct {
	Op    Op
	Path  string
	Batch uint64
	Last  bool
}

// ErrWatchSource is matched by every error raised when the notification
// source cannot start or fails while running.
var ErrWatchSource = errors.New("watch source failed")

// ErrRootRemoved is the cause recorded when the watched root disappears.
var ErrRootRemoved = errors.New("root directory removed")

// SourceError reports a failure of the filesystem notifier for Root.
type SourceError struct {
	Root string
	Err  error
}

// Error implements error.
func (e *SourceError) Error() string {
	return fmt.Sprintf("watch %s: %v", e.Root, e.Err)
}

// Unwrap returns the underlying error.
func (e *SourceError) Unwrap() error {
	return e.Err
}

// Is matches ErrWatchSource.
func (e *SourceError) Is(target error) bool {
	return target == ErrWatchSource //nolint:errorlint // sentinel identity
}
