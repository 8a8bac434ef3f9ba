package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sharad-Patel1/clickhome-migration/internal/cache"
	"github.com/Sharad-Patel1/clickhome-migration/internal/ignore"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/scanner"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/stats"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/watcher"
)

// WatchOptions tune a watch session. Zero values select defaults.
type WatchOptions struct {
	Rules     ignore.Rules
	Debounce  time.Duration
	QueueSize int
	Tick      time.Duration
	// OnTick runs on the session goroutine every Tick.
	OnTick func(now time.Time)
}

// Watch is a running watch session.
type Watch struct {
	root     string
	session  *watcher.Session
	source   *watcher.Watcher
	trees    *cache.TreeStore
	commands chan watcher.Command
	cancel   context.CancelFunc
	done     chan struct{}

	closeOnce sync.Once
	err       error
}

// StartWatch watches root and applies changes to the cache. Callers usually
// RunScan first so the cache holds a baseline. A notifier failure returns an
// error matching watcher.ErrWatchSource.
func (t *Tracker) StartWatch(ctx context.Context, root string, opts WatchOptions) (*Watch, error) {
	canonical, err := scanner.ResolveRoot(root)
	if err != nil {
		return nil, err
	}

	matcher, err := ignore.New(canonical, opts.Rules)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", scanner.ErrInvalidRoot, err)
	}

	trees, err := cache.NewTreeStore(t.cfg.TreeCacheSize)
	if err != nil {
		return nil, fmt.Errorf("tree cache: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)

	source, err := watcher.Start(runCtx, matcher, watcher.Config{
		Debounce:  opts.Debounce,
		QueueSize: opts.QueueSize,
	}, t.logger)
	if err != nil {
		cancel()
		trees.Close()

		return nil, err
	}

	rescan := func(ctx context.Context) error {
		_, scanErr := t.RunScan(ctx, canonical, opts.Rules)

		return scanErr
	}

	tick := opts.Tick
	if tick <= 0 {
		tick = watcher.DefaultTick
	}

	session := watcher.NewSession(t.store, trees, t.analyzer, rescan, watcher.SessionConfig{
		Root:   canonical,
		Tick:   tick,
		OnTick: opts.OnTick,
	}, watcher.SessionDeps{
		Logger:  t.logger,
		Tracer:  t.tracer,
		Metrics: t.metrics,
	})

	w := &Watch{
		root:     canonical,
		session:  session,
		source:   source,
		trees:    trees,
		commands: make(chan watcher.Command, 1),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go w.run(runCtx)

	return w, nil
}

func (w *Watch) run(ctx context.Context) {
	defer close(w.done)

	runErr := w.session.Run(ctx, w.source.Requests(), w.commands)

	// The session may have stopped on a quit command while the source is
	// still running.
	w.closeOnce.Do(w.cancel)
	closeErr := w.source.Close()

	w.trees.Close()
	w.err = errors.Join(runErr, w.source.Err(), closeErr)
}

// Root returns the watched root.
func (w *Watch) Root() string {
	return w.root
}

// Updates delivers one snapshot per flush that changed the cache. It is
// closed when the session ends. The session waits for the reader.
func (w *Watch) Updates() <-chan stats.Snapshot {
	return w.session.Updates()
}

// Commands accepts refresh and quit input.
func (w *Watch) Commands() chan<- watcher.Command {
	return w.commands
}

// Done is closed when the session has ended and resources are released.
func (w *Watch) Done() <-chan struct{} {
	return w.done
}

// Wait blocks until the session ends and returns its error. A quit command,
// context cancellation or Close all end the session without error; a
// notifier failure returns an error matching watcher.ErrWatchSource.
func (w *Watch) Wait() error {
	<-w.done

	return w.err
}

// Close stops the session and waits for it.
func (w *Watch) Close() error {
	w.closeOnce.Do(w.cancel)

	return w.Wait()
}
