// Package scanner walks a source tree, analyzes every tracked TypeScript file
// on a worker pool and stores the results in the analysis cache.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/Sharad-Patel1/clickhome-migration/internal/cache"
	"github.com/Sharad-Patel1/clickhome-migration/internal/ignore"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/migration"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/observability"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/stats"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/tsparse"
)

// ErrInvalidRoot is returned when the scan root is missing, unreadable or not a directory.
var ErrInvalidRoot = errors.New("invalid scan root")

// pathsPerWorker sizes the walk-to-worker queue.
const pathsPerWorker = 8

// ResolveRoot returns the canonical form of root, absolute with every symlink
// resolved, after checking that it is an accessible directory.
func ResolveRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrInvalidRoot, root, err)
	}

	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}

	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, abs)
	}

	if _, readErr := os.ReadDir(abs); readErr != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRoot, readErr)
	}

	return abs, nil
}

// Config tunes the scanner.
type Config struct {
	// Workers is the pool size. Zero means GOMAXPROCS.
	Workers int
}

// Deps are the scanner's collaborators. Nil fields get no-op defaults.
type Deps struct {
	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics *observability.PipelineMetrics
}

// Scanner populates a cache.Store from a directory tree.
type Scanner struct {
	store    *cache.Store
	analyzer *Analyzer
	workers  int
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *observability.PipelineMetrics
	now      func() time.Time
}

// New creates a scanner writing into store.
func New(store *cache.Store, analyzer *Analyzer, cfg Config, deps Deps) *Scanner {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	s := &Scanner{
		store:    store,
		analyzer: analyzer,
		workers:  workers,
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

// Workers returns the pool size.
func (s *Scanner) Workers() int {
	return s.workers
}

// Scan analyzes every tracked file under root and returns the aggregate over
// the files under root. A bad root fails with ErrInvalidRoot; per-file
// failures are stored as error entries. On cancellation completed entries
// stay in the cache and ctx.Err() is returned. After a complete scan, entries
// under root whose files were not seen are removed.
func (s *Scanner) Scan(ctx context.Context, root string, rules ignore.Rules) (stats.Snapshot, error) {
	canonical, err := ResolveRoot(root)
	if err != nil {
		return stats.Snapshot{}, err
	}

	matcher, err := ignore.New(canonical, rules)
	if err != nil {
		return stats.Snapshot{}, fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}

	ctx, span := s.tracer.Start(ctx, "chmigrate.scan", trace.WithAttributes(
		attribute.String(observability.AttrScanRoot, canonical),
		attribute.Int("scan.workers", s.workers),
	))
	defer span.End()

	started := s.now()

	seen, err := s.run(ctx, canonical, matcher)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scan failed")

		if ctx.Err() != nil {
			s.logger.WarnContext(ctx, "scan cancelled", "root", canonical)

			return stats.Snapshot{}, ctx.Err()
		}

		return stats.Snapshot{}, fmt.Errorf("scan %s: %w", canonical, err)
	}

	removed := 0

	for _, p := range s.store.Paths(canonical) {
		if _, ok := seen[p]; !ok && s.store.Remove(p) {
			removed++
		}
	}

	snap := stats.Aggregate(s.store.ListFiles(func(a *migration.FileAnalysis) bool {
		return cache.Under(canonical, a.Path)
	}), s.now())

	elapsed := s.now().Sub(started)
	s.metrics.ScanCompleted(ctx, elapsed)

	span.SetAttributes(
		attribute.Int("scan.files", snap.Total),
		attribute.Int("scan.errors", snap.Errors),
		attribute.Int("scan.removed", removed),
	)

	s.logger.InfoContext(ctx, "scan complete",
		"root", canonical,
		"files", snap.Total,
		"errors", snap.Errors,
		"removed", removed,
		"duration", elapsed,
	)

	return snap, nil
}

// run walks and analyzes. It returns the set of tracked paths seen.
func (s *Scanner) run(ctx context.Context, root string, matcher *ignore.Matcher) (map[string]struct{}, error) {
	g, gctx := errgroup.WithContext(ctx)
	paths := make(chan string, s.workers*pathsPerWorker)
	seen := make(map[string]struct{})

	g.Go(func() error {
		defer close(paths)

		return s.walk(gctx, root, matcher, func(p string) error {
			seen[p] = struct{}{}

			select {
			case paths <- p:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})

	for range s.workers {
		g.Go(func() error {
			for p := range paths {
				if err := s.analyzeOne(gctx, p); err != nil {
					return err
				}
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return seen, nil
}

func (s *Scanner) analyzeOne(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rec, err := s.analyzer.AnalyzeFile(ctx, path)
	if err != nil {
		return err
	}

	// A unit that finishes after cancellation is dropped without writing.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	s.store.Put(rec)

	errKind := ""
	if rec.Err != nil {
		errKind = rec.Err.Kind.String()

		s.logger.DebugContext(ctx, "file recorded with error", "path", path, "error", rec.Err.Error())
	}

	s.metrics.FileAnalyzed(ctx, errKind)

	return nil
}

// walk visits tracked files under root, pruning ignored directories before
// descending into them.
func (s *Scanner) walk(ctx context.Context, root string, matcher *ignore.Matcher, visit func(string) error) error {
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err != nil {
			if path == root {
				return fmt.Errorf("%w: %w", ErrInvalidRoot, err)
			}

			s.logger.WarnContext(ctx, "skipping unreadable entry", "path", path, "error", err)

			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if d.IsDir() {
			if path != root && matcher.IgnoredDir(path) {
				return filepath.SkipDir
			}

			if loadErr := matcher.LoadDir(path); loadErr != nil {
				s.logger.WarnContext(ctx, "ignoring unreadable .gitignore", "dir", path, "error", loadErr)
			}

			return nil
		}

		if !d.Type().IsRegular() || !tsparse.IsTypeScriptPath(path) || matcher.IgnoredFile(path) {
			return nil
		}

		return visit(path)
	})
	if walkErr != nil {
		return fmt.Errorf("walk: %w", walkErr)
	}

	return nil
}
