package watcher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sharad-Patel1/clickhome-migration/internal/cache"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/migration"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/observability"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/scanner"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/stats"
)

// Command is an input from the interactive side of a watch session.
type Command uint8

// Session commands.
const (
	// CmdRefresh forces a full rescan and a snapshot.
	CmdRefresh Command = iota + 1
	// CmdQuit ends the session.
	CmdQuit
)

// DefaultTick is the default period of SessionConfig.OnTick calls.
const DefaultTick = 250 * time.Millisecond

// RescanFunc re-runs a full scan of the session root.
type RescanFunc func(ctx context.Context) error

// SessionConfig tunes a Session.
type SessionConfig struct {
	// Root limits published snapshots to files under it.
	Root string
	// Tick is the period of OnTick calls. Zero disables ticking.
	Tick time.Duration
	// OnTick runs on the consumer goroutine every Tick.
	OnTick func(now time.Time)
}

// SessionDeps are the session's collaborators. Nil fields get no-op defaults.
type SessionDeps struct {
	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics *observability.PipelineMetrics
}

// Session is the single consumer of watch requests. It reanalyzes changed
// files, drops removed ones and publishes a stats snapshot after each batch
// that changed the cache.
type Session struct {
	store    *cache.Store
	trees    *cache.TreeStore
	analyzer *scanner.Analyzer
	rescan   RescanFunc
	cfg      SessionConfig
	updates  chan stats.Snapshot

	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *observability.PipelineMetrics
	now     func() time.Time
}

// NewSession creates a session. rescan may be nil, in which case rescan
// requests are logged and ignored.
func NewSession(
	store *cache.Store,
	trees *cache.TreeStore,
	analyzer *scanner.Analyzer,
	rescan RescanFunc,
	cfg SessionConfig,
	deps SessionDeps,
) *Session {
	s := &Session{
		store:    store,
		trees:    trees,
		analyzer: analyzer,
		rescan:   rescan,
		cfg:      cfg,
		updates:  make(chan stats.Snapshot, 1),
		logger:   deps.Logger,
		tracer:   deps.Tracer,
		metrics:  deps.Metrics,
		now:      time.Now,
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	if s.tracer == nil {
		s.tracer = nooptrace.NewTracerProvider().Tracer("chmigrate")
	}

	return s
}

// Updates returns the snapshot stream. It is closed when Run returns. The
// session blocks on publishing until the reader catches up.
func (s *Session) Updates() <-chan stats.Snapshot {
	return s.updates
}

// Snapshot aggregates the current cache contents under the session root.
func (s *Session) Snapshot() stats.Snapshot {
	return stats.Aggregate(s.store.ListFiles(func(a *migration.FileAnalysis) bool {
		return s.cfg.Root == "" || cache.Under(s.cfg.Root, a.Path)
	}), s.now())
}

// Run consumes requests and commands until requests close, CmdQuit arrives
// or ctx is done. All three end the session without error.
func (s *Session) Run(ctx context.Context, requests <-chan Request, input <-chan Command) error {
	defer close(s.updates)

	var tick <-chan time.Time

	if s.cfg.Tick > 0 && s.cfg.OnTick != nil {
		ticker := time.NewTicker(s.cfg.Tick)
		defer ticker.Stop()

		tick = ticker.C
	}

	dirty := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case req, ok := <-requests:
			if !ok {
				return nil
			}

			if s.apply(ctx, req) {
				dirty = true
			}

			if req.Last && dirty {
				dirty = false

				if !s.publish(ctx) {
					return nil
				}
			}
		case cmd, ok := <-input:
			if !ok {
				input = nil

				continue
			}

			switch cmd {
			case CmdQuit:
				return nil
			case CmdRefresh:
				s.doRescan(ctx)

				if !s.publish(ctx) {
					return nil
				}
			}
		case now := <-tick:
			s.cfg.OnTick(now)
		}
	}
}

func (s *Session) publish(ctx context.Context) bool {
	snap := s.Snapshot()

	select {
	case s.updates <- snap:
		s.metrics.SnapshotPublished(ctx)

		return true
	case <-ctx.Done():
		return false
	}
}

// apply handles one request and reports whether the cache changed.
func (s *Session) apply(ctx context.Context, req Request) bool {
	attrs := []attribute.KeyValue{
		attribute.String("watch.op", req.Op.String()),
		attribute.String(observability.AttrFilePath, req.Path),
	}
	if s.cfg.Root != "" {
		attrs = append(attrs, attribute.String(observability.AttrScanRoot, s.cfg.Root))
	}

	ctx, span := s.tracer.Start(ctx, observability.SpanWatchApply, trace.WithAttributes(attrs...))
	defer span.End()

	s.metrics.WatchRequest(ctx, req.Op.String())

	switch req.Op {
	case OpReanalyze:
		return s.reanalyze(ctx, req.Path)
	case OpRemove:
		return s.remove(ctx, req.Path)
	case OpRescan:
		s.doRescan(ctx)

		return true
	default:
		return false
	}
}

func (s *Session) reanalyze(ctx context.Context, path string) bool {
	prev, hasPrev := s.store.Get(path)
	tree, _ := s.trees.Take(path)

	out, err := s.analyzer.AnalyzeIncremental(ctx, path, prev.Fingerprint, hasPrev, tree)
	if err != nil {
		if errors.Is(err, scanner.ErrFileVanished) {
			return s.remove(ctx, path)
		}

		s.logger.DebugContext(ctx, "reanalysis abandoned", "path", path, "error", err)

		return false
	}

	if out.Tree != nil {
		s.trees.Put(path, out.Tree)
	}

	if out.Unchanged {
		return false
	}

	s.store.Put(out.Analysis)
	s.metrics.Reparsed(ctx, out.Incremental)

	errKind := ""
	if out.Analysis.Err != nil {
		errKind = out.Analysis.Err.Kind.String()
	}

	s.metrics.FileAnalyzed(ctx, errKind)

	s.logger.DebugContext(ctx, "file reanalyzed",
		"path", path,
		"classification", out.Analysis.Classification.String(),
		"incremental", out.Incremental,
	)

	return true
}

func (s *Session) remove(ctx context.Context, path string) bool {
	n := s.store.RemoveUnder(path)
	s.trees.DropUnder(path)

	if n > 0 {
		s.logger.DebugContext(ctx, "removed from cache", "path", path, "files", n)
	}

	return n > 0
}

func (s *Session) doRescan(ctx context.Context) {
	if s.rescan == nil {
		s.logger.WarnContext(ctx, "rescan requested but not configured")

		return
	}

	if err := s.rescan(ctx); err != nil {
		s.logger.ErrorContext(ctx, "rescan failed", "error", err)
	}
}
