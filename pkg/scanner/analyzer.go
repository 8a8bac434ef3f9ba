package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/zeebo/xxh3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sharad-Patel1/clickhome-migration/pkg/migration"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/observability"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/tsparse"
)

// DefaultMaxFileSize skips generated bundles and fixtures larger than this.
const DefaultMaxFileSize = 4 << 20

// ErrFileVanished is returned when the file no longer exists at analysis time.
var ErrFileVanished = errors.New("file vanished")

// Fingerprint hashes file content for change detection.
func Fingerprint(data []byte) uint64 {
	return xxh3.Hash(data)
}

// Analyzer turns one file into a FileAnalysis. It holds no per-file state and
// is safe for concurrent use; each call owns its parser.
type Analyzer struct {
	classifier  migration.Classifier
	maxFileSize int64
	tracer      trace.Tracer
	now         func() time.Time
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithMaxFileSize sets the size above which files are recorded as I/O errors.
func WithMaxFileSize(n int64) AnalyzerOption {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxFileSize = n
		}
	}
}

// WithTracer sets the tracer for per-file spans.
func WithTracer(t trace.Tracer) AnalyzerOption {
	return func(a *Analyzer) {
		if t != nil {
			a.tracer = t
		}
	}
}

// WithClock overrides the time source used for AnalyzedAt.
func WithClock(now func() time.Time) AnalyzerOption {
	return func(a *Analyzer) { a.now = now }
}

// NewAnalyzer creates an analyzer for the given classifier.
func NewAnalyzer(classifier migration.Classifier, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		classifier:  classifier,
		maxFileSize: DefaultMaxFileSize,
		tracer:      nooptrace.NewTracerProvider().Tracer("chmigrate"),
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Classifier returns the classifier in use.
func (a *Analyzer) Classifier() migration.Classifier {
	return a.classifier
}

// AnalyzeFile reads and fully parses path. Read and parse failures are
// recorded in the result; the error is non-nil only when ctx is done.
func (a *Analyzer) AnalyzeFile(ctx context.Context, path string) (migration.FileAnalysis, error) {
	ctx, span := a.tracer.Start(ctx, observability.SpanAnalyzeFile, trace.WithAttributes(attribute.String(observability.AttrFilePath, path)))
	defer span.End()

	content, rec := a.read(path)
	if rec != nil {
		return *rec, nil
	}

	dialect, _ := tsparse.DialectForPath(path)

	res, err := tsparse.ExtractImports(ctx, dialect, content.data)
	if err != nil {
		if ctx.Err() != nil {
			return migration.FileAnalysis{}, fmt.Errorf("analyze %s: %w", path, ctx.Err())
		}

		return a.failed(path, content, migration.ErrorKindParse, err.Error()), nil
	}

	return a.build(path, content, res), nil
}

// Outcome is the result of an incremental analysis.
type Outcome struct {
	// Analysis is the new record. Zero when Unchanged.
	Analysis migration.FileAnalysis
	// Tree is the tree to retain for the next change, owned by the caller. May be nil.
	Tree *tsparse.Tree
	// Unchanged is set when the content fingerprint matched and nothing was parsed.
	Unchanged bool
	// Incremental is set when the previous tree was reused.
	Incremental bool
}

// AnalyzeIncremental re-analyzes path given its previous fingerprint and tree.
// It takes ownership of prev. When the file no longer exists the error wraps
// ErrFileVanished.
func (a *Analyzer) AnalyzeIncremental(
	ctx context.Context, path string, prevFingerprint uint64, hasPrev bool, prev *tsparse.Tree,
) (Outcome, error) {
	ctx, span := a.tracer.Start(ctx, observability.SpanAnalyzeFile, trace.WithAttributes(attribute.String(observability.AttrFilePath, path)))
	defer span.End()

	content, rec := a.read(path)
	if rec != nil {
		prev.Close()

		if rec.Err != nil && rec.Err.Kind == migration.ErrorKindIO && content.missing {
			return Outcome{}, fmt.Errorf("%w: %s", ErrFileVanished, path)
		}

		return Outcome{Analysis: *rec}, nil
	}

	if hasPrev && prevFingerprint == content.fingerprint {
		return Outcome{Tree: prev, Unchanged: true}, nil
	}

	var (
		tree        *tsparse.Tree
		res         tsparse.Result
		incremental bool
		err         error
	)

	if prev != nil {
		tree, res, incremental, err = tsparse.ReparseSource(ctx, prev, content.data)
	} else {
		dialect, _ := tsparse.DialectForPath(path)
		tree, res, err = tsparse.Parse(ctx, dialect, content.data)
	}

	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, fmt.Errorf("analyze %s: %w", path, ctx.Err())
		}

		return Outcome{Analysis: a.failed(path, content, migration.ErrorKindParse, err.Error())}, nil
	}

	return Outcome{Analysis: a.build(path, content, res), Tree: tree, Incremental: incremental}, nil
}

type fileContent struct {
	data        []byte
	size        int64
	modTime     time.Time
	fingerprint uint64
	missing     bool
}

// read loads path. On failure it returns the error record to store.
func (a *Analyzer) read(path string) (fileContent, *migration.FileAnalysis) {
	info, err := os.Stat(path)
	if err != nil {
		c := fileContent{missing: errors.Is(err, fs.ErrNotExist)}
		rec := a.failed(path, c, migration.ErrorKindIO, err.Error())

		return c, &rec
	}

	c := fileContent{size: info.Size(), modTime: info.ModTime()}

	if info.IsDir() {
		rec := a.failed(path, c, migration.ErrorKindIO, "is a directory")

		return c, &rec
	}

	if info.Size() > a.maxFileSize {
		rec := a.failed(path, c, migration.ErrorKindIO, fmt.Sprintf("file is %s, limit is %s",
			humanize.Bytes(uint64(info.Size())), humanize.Bytes(uint64(a.maxFileSize)))) //nolint:gosec // sizes are non-negative

		return c, &rec
	}

	data, err := os.ReadFile(path)
	if err != nil {
		c.missing = errors.Is(err, fs.ErrNotExist)
		rec := a.failed(path, c, migration.ErrorKindIO, err.Error())

		return c, &rec
	}

	c.data = data
	c.size = int64(len(data))
	c.fingerprint = Fingerprint(data)

	return c, nil
}

func (a *Analyzer) build(path string, c fileContent, res tsparse.Result) migration.FileAnalysis {
	rec := migration.FileAnalysis{
		Path:        path,
		Fingerprint: c.fingerprint,
		Size:        c.size,
		ModTime:     c.modTime,
		Imports:     res.Imports,
		AnalyzedAt:  a.now(),
	}

	cls := a.classifier.Annotate(rec.Imports)

	if res.Syntax != nil {
		rec.Err = &migration.FileError{
			Kind:    migration.ErrorKindParse,
			Message: res.Syntax.Error(),
			Line:    res.Syntax.Line,
			Column:  res.Syntax.Column,
		}

		return rec
	}

	rec.Classification = cls

	return rec
}

func (a *Analyzer) failed(path string, c fileContent, kind migration.ErrorKind, msg string) migration.FileAnalysis {
	return migration.FileAnalysis{
		Path:        path,
		Fingerprint: c.fingerprint,
		Size:        c.size,
		ModTime:     c.modTime,
		Err:         &migration.FileError{Kind: kind, Message: msg},
		AnalyzedAt:  a.now(),
	}
}
