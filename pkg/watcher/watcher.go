package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Sharad-Patel1/clickhome-migration/internal/ignore"
)

// DefaultQueueSize bounds the request channel between the debouncer and the
// consumer. A full queue blocks the debouncer.
const DefaultQueueSize = 100

// Config tunes the watcher.
type Config struct {
	Debounce  time.Duration
	QueueSize int
}

// Watcher watches a directory tree and emits debounced requests for tracked
// files. Requests is closed after Close or after the source fails.
type Watcher struct {
	root     string
	matcher  *ignore.Matcher
	fsw      *fsnotify.Watcher
	logger   *slog.Logger
	events   chan Event
	requests chan Request
	deb      *Debouncer

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	errMu sync.Mutex
	err   error
}

// Start registers recursive watches under matcher.Root and begins emitting
// requests. Directories the matcher prunes are not watched. A failure to set
// up the notifier returns a *SourceError.
func Start(ctx context.Context, matcher *ignore.Matcher, cfg Config, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	queue := cfg.QueueSize
	if queue <= 0 {
		queue = DefaultQueueSize
	}

	root := matcher.Root()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &SourceError{Root: root, Err: err}
	}

	w := &Watcher{
		root:     root,
		matcher:  matcher,
		fsw:      fsw,
		logger:   logger,
		events:   make(chan Event, queue),
		requests: make(chan Request, queue),
	}
	w.deb = NewDebouncer(cfg.Debounce, w.requests)

	if err := w.addRecursive(root, nil); err != nil {
		_ = fsw.Close() //nolint:errcheck // already failing

		return nil, &SourceError{Root: root, Err: err}
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(2)

	go func() {
		defer w.wg.Done()
		defer close(w.events)

		w.pump(runCtx)
	}()

	go func() {
		defer w.wg.Done()
		defer close(w.requests)

		if runErr := w.deb.Run(runCtx, w.events); runErr != nil && !errors.Is(runErr, context.Canceled) {
			w.setErr(runErr)
		}
	}()

	logger.InfoContext(ctx, "watching", "root", root, "watches", len(fsw.WatchList()))

	return w, nil
}

// Requests returns the debounced request stream.
func (w *Watcher) Requests() <-chan Request {
	return w.requests
}

// Debouncer exposes the debouncer for state inspection.
func (w *Watcher) Debouncer() *Debouncer {
	return w.deb
}

// Err returns the source failure that stopped the watcher, if any.
func (w *Watcher) Err() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()

	return w.err
}

// Close stops the watcher and waits for its goroutines. Requests is closed
// when Close returns.
func (w *Watcher) Close() error {
	var closeErr error

	w.closeOnce.Do(func() {
		w.cancel()
		w.wg.Wait()

		if err := w.fsw.Close(); err != nil {
			closeErr = &SourceError{Root: w.root, Err: err}
		}
	})

	return closeErr
}

func (w *Watcher) setErr(err error) {
	w.errMu.Lock()
	defer w.errMu.Unlock()

	if w.err == nil {
		w.err = err
	}
}

// pump translates notifier events until ctx is done or the notifier fails.
func (w *Watcher) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}

			if !w.handle(ctx, ev) {
				return
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}

			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.WarnContext(ctx, "watch queue overflowed, requesting rescan", "root", w.root)

				if !w.emit(ctx, Event{Op: OpRescan}) {
					return
				}

				continue
			}

			w.logger.WarnContext(ctx, "watch error", "root", w.root, "error", err)
		}
	}
}

// handle maps one notification to zero or more events. It returns false when
// the watcher must stop.
func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) bool {
	path := filepath.Clean(ev.Name)

	if ignore.IsTempFile(path) {
		return true
	}

	if path == w.root && (ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)) {
		w.setErr(&SourceError{Root: w.root, Err: ErrRootRemoved})
		w.logger.ErrorContext(ctx, "watch root removed", "root", w.root)

		return false
	}

	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return w.handleRemove(ctx, path)
	case ev.Has(fsnotify.Create):
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			return w.handleNewDir(ctx, path)
		}

		fallthrough
	case ev.Has(fsnotify.Write):
		if w.matcher.Tracked(path) {
			return w.emit(ctx, Event{Op: OpReanalyze, Path: path})
		}

		if filepath.Base(path) == ignore.GitignoreFile {
			if err := w.matcher.LoadDir(filepath.Dir(path)); err != nil {
				w.logger.WarnContext(ctx, "ignoring unreadable .gitignore", "path", path, "error", err)
			}
		}
	}

	return true
}

// handleRemove emits a removal. The path may have been a file or a
// directory; the consumer drops everything at or under it.
func (w *Watcher) handleRemove(ctx context.Context, path string) bool {
	if w.matcher.Tracked(path) {
		return w.emit(ctx, Event{Op: OpRemove, Path: path})
	}

	if filepath.Ext(path) == "" && !w.matcher.IgnoredDir(path) {
		return w.emit(ctx, Event{Op: OpRemove, Path: path})
	}

	return true
}

// handleNewDir watches a created directory and queues the tracked files it
// already contains, since their own create events may have been missed.
func (w *Watcher) handleNewDir(ctx context.Context, dir string) bool {
	if w.matcher.IgnoredDir(dir) {
		return true
	}

	var found []string

	if err := w.addRecursive(dir, &found); err != nil {
		w.logger.WarnContext(ctx, "watch new directory", "dir", dir, "error", err)
	}

	for _, p := range found {
		if !w.emit(ctx, Event{Op: OpReanalyze, Path: p}) {
			return false
		}
	}

	return true
}

func (w *Watcher) emit(ctx context.Context, ev Event) bool {
	select {
	case w.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// addRecursive watches dir and every non-ignored subdirectory. When files is
// not nil it collects the tracked files found on the way.
func (w *Watcher) addRecursive(dir string, files *[]string) error {
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}

			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if !d.IsDir() {
			if files != nil && d.Type().IsRegular() && w.matcher.Tracked(path) {
				*files = append(*files, path)
			}

			return nil
		}

		if path != w.root && w.matcher.IgnoredDir(path) {
			return filepath.SkipDir
		}

		if loadErr := w.matcher.LoadDir(path); loadErr != nil {
			w.logger.Warn("ignoring unreadable .gitignore", "dir", path, "error", loadErr)
		}

		if addErr := w.fsw.Add(path); addErr != nil {
			return fmt.Errorf("add watch %s: %w", path, addErr)
		}

		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("watch %s: %w", dir, walkErr)
	}

	return nil
}
