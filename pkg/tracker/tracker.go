// Package tracker is the entry point for embedding the migration tracker: it
// owns the analysis cache and exposes scanning, watching, queries and export.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sharad-Patel1/clickhome-migration/internal/cache"
	"github.com/Sharad-Patel1/clickhome-migration/internal/ignore"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/migration"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/observability"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/report"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/scanner"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/stats"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/watcher"
)

// ErrNoScan is returned by operations that need a scanned root before any
// scan has run.
var ErrNoScan = errors.New("no scan has run")

// Config tunes a Tracker. Zero values select defaults.
type Config struct {
	Classifier    migration.Classifier
	Workers       int
	MaxFileSize   int64
	TreeCacheSize int
}

// Deps are the tracker's collaborators. Nil fields get no-op defaults.
type Deps struct {
	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics *observability.PipelineMetrics
}

// Tracker holds the single long-lived analysis cache.
type Tracker struct {
	store    *cache.Store
	analyzer *scanner.Analyzer
	scanner  *scanner.Scanner
	cfg      Config
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *observability.PipelineMetrics

	mu    sync.Mutex
	root  string
	rules ignore.Rules
}

// New creates a tracker with an empty cache.
func New(cfg Config, deps Deps) *Tracker {
	if cfg.Classifier == (migration.Classifier{}) {
		cfg.Classifier = migration.DefaultClassifier()
	}

	if cfg.TreeCacheSize <= 0 {
		cfg.TreeCacheSize = cache.DefaultTreeCacheSize
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tracer := deps.Tracer
	if tracer == nil {
		tracer = nooptrace.NewTracerProvider().Tracer("chmigrate")
	}

	analyzerOpts := []scanner.AnalyzerOption{scanner.WithTracer(tracer)}
	if cfg.MaxFileSize > 0 {
		analyzerOpts = append(analyzerOpts, scanner.WithMaxFileSize(cfg.MaxFileSize))
	}

	analyzer := scanner.NewAnalyzer(cfg.Classifier, analyzerOpts...)
	store := cache.New()

	return &Tracker{
		store:    store,
		analyzer: analyzer,
		scanner: scanner.New(store, analyzer, scanner.Config{Workers: cfg.Workers}, scanner.Deps{
			Logger:  logger,
			Tracer:  tracer,
			Metrics: deps.Metrics,
		}),
		cfg:     cfg,
		logger:  logger,
		tracer:  tracer,
		metrics: deps.Metrics,
	}
}

// Classifier returns the classifier in use.
func (t *Tracker) Classifier() migration.Classifier {
	return t.cfg.Classifier
}

// Root returns the canonical root of the last successful scan.
func (t *Tracker) Root() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.root
}

// RunScan scans root and returns the aggregate for it. The root and rules
// are remembered for Rescan, Snapshot and Export.
func (t *Tracker) RunScan(ctx context.Context, root string, rules ignore.Rules) (stats.Snapshot, error) {
	canonical, err := scanner.ResolveRoot(root)
	if err != nil {
		return stats.Snapshot{}, err
	}

	snap, err := t.scanner.Scan(ctx, canonical, rules)
	if err != nil {
		return stats.Snapshot{}, err
	}

	t.mu.Lock()
	t.root = canonical
	t.rules = rules
	t.mu.Unlock()

	return snap, nil
}

// Rescan repeats the last scan.
func (t *Tracker) Rescan(ctx context.Context) (stats.Snapshot, error) {
	t.mu.Lock()
	root, rules := t.root, t.rules
	t.mu.Unlock()

	if root == "" {
		return stats.Snapshot{}, ErrNoScan
	}

	return t.RunScan(ctx, root, rules)
}

// GetFile returns the latest analysis for path. Relative paths are resolved
// against the last scanned root.
func (t *Tracker) GetFile(path string) (migration.FileAnalysis, bool) {
	return t.store.Get(t.resolve(path))
}

// ListFiles returns the analyses under the last scanned root that satisfy
// pred, sorted by path. A nil pred matches everything.
func (t *Tracker) ListFiles(pred func(*migration.FileAnalysis) bool) []migration.FileAnalysis {
	root := t.Root()

	return t.store.ListFiles(func(a *migration.FileAnalysis) bool {
		if root != "" && !cache.Under(root, a.Path) {
			return false
		}

		return pred == nil || pred(a)
	})
}

// Snapshot aggregates the current cache contents under the last scanned root.
func (t *Tracker) Snapshot() stats.Snapshot {
	return stats.Aggregate(t.ListFiles(nil), time.Now())
}

// Export writes the current cache contents in the given format. Paths are
// shown relative to the scanned root unless opts.Root is set.
func (t *Tracker) Export(ctx context.Context, w io.Writer, format report.Format, opts report.Options) error {
	_, span := t.tracer.Start(ctx, "chmigrate.export", trace.WithAttributes(
		attribute.String("report.format", string(format)),
		attribute.Bool("report.compress", opts.Compress),
	))
	defer span.End()

	if opts.Root == "" {
		opts.Root = t.Root()
	}

	files := t.ListFiles(nil)
	doc := report.Build(stats.Aggregate(files, time.Now()), files, opts)

	if err := report.Write(w, format, doc, opts); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "export failed")

		return fmt.Errorf("export: %w", err)
	}

	span.SetAttributes(attribute.Int("report.files", len(doc.Files)))

	return nil
}

func (t *Tracker) resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}

	if root := t.Root(); root != "" {
		return filepath.Join(root, path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}

	return abs
}
