package observability

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys that carry filesystem locations.
const (
	AttrScanRoot = "scan.root"
	AttrFilePath = "file.path"
)

// RedactedPath replaces a file.path that lies outside the scan root.
const RedactedPath = "[outside scan root]"

// exportedPrefixes are the attribute namespaces chmigrate emits.
var exportedPrefixes = []string{ //nolint:gochecknoglobals // read-only table
	"chmigrate.",
	"error.",
	"file.",
	"http.",
	"mcp.",
	"report.",
	"scan.",
	"watch.",
}

// sourceKeys would carry file contents or import specifiers, which may embed
// customer module names, and never leave the process.
var sourceKeys = map[string]bool{ //nolint:gochecknoglobals // read-only table
	"file.content":  true,
	"file.source":   true,
	"import.source": true,
	"import.names":  true,
}

// pathKeys hold absolute paths rewritten relative to the scan root.
var pathKeys = map[string]bool{ //nolint:gochecknoglobals // read-only table
	AttrFilePath: true,
	"watch.path": true,
}

type traceRoot struct {
	root  string
	owner trace.SpanID
}

// attributeFilter is a SpanProcessor that drops attributes outside the
// chmigrate namespaces and rewrites file paths relative to the scan root
// before forwarding spans to a delegate processor.
//
// The root comes from the span's own scan.root attribute or, for child spans,
// from the span in the same trace that first carried one.
type attributeFilter struct {
	delegate sdktrace.SpanProcessor
	logger   *slog.Logger

	mu    sync.Mutex
	roots map[trace.TraceID]traceRoot
}

// NewAttributeFilter returns a SpanProcessor that filters span attributes.
// Paths under the scan root become slash-separated relative paths, paths
// outside it become RedactedPath, and source-bearing or unknown keys are
// dropped. When logger is non-nil, dropped keys are logged as warnings.
func NewAttributeFilter(delegate sdktrace.SpanProcessor, logger *slog.Logger) sdktrace.SpanProcessor {
	return &attributeFilter{delegate: delegate, logger: logger, roots: make(map[trace.TraceID]traceRoot)}
}

// OnStart records the scan root of spans that declare one, then delegates.
func (f *attributeFilter) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	if root, ok := stringAttr(s.Attributes(), AttrScanRoot); ok {
		sc := s.SpanContext()

		f.mu.Lock()
		if _, exists := f.roots[sc.TraceID()]; !exists {
			f.roots[sc.TraceID()] = traceRoot{root: root, owner: sc.SpanID()}
		}
		f.mu.Unlock()
	}

	f.delegate.OnStart(parent, s)
}

// OnEnd filters attributes, then delegates to the wrapped processor.
func (f *attributeFilter) OnEnd(s sdktrace.ReadOnlySpan) {
	attrs := s.Attributes()
	sc := s.SpanContext()

	root, ok := stringAttr(attrs, AttrScanRoot)

	f.mu.Lock()
	entry, tracked := f.roots[sc.TraceID()]
	if tracked && entry.owner == sc.SpanID() {
		delete(f.roots, sc.TraceID())
	}
	f.mu.Unlock()

	if !ok && tracked {
		root = entry.root
	}

	// ReadOnlySpan attributes cannot be mutated; the delegate may read them
	// after this call returns, so the filtered view is computed now.
	f.delegate.OnEnd(&filteredSpan{ReadOnlySpan: s, attrs: f.filter(attrs, root)})
}

// Shutdown delegates to the wrapped processor.
func (f *attributeFilter) Shutdown(ctx context.Context) error {
	err := f.delegate.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("attribute filter shutdown: %w", err)
	}

	return nil
}

// ForceFlush delegates to the wrapped processor.
func (f *attributeFilter) ForceFlush(ctx context.Context) error {
	err := f.delegate.ForceFlush(ctx)
	if err != nil {
		return fmt.Errorf("attribute filter flush: %w", err)
	}

	return nil
}

func (f *attributeFilter) filter(orig []attribute.KeyValue, root string) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(orig))

	for _, kv := range orig {
		key := string(kv.Key)
		if !f.isExported(key) {
			continue
		}

		if pathKeys[key] && kv.Value.Type() == attribute.STRING {
			kv = attribute.String(key, RelativeToRoot(root, kv.Value.AsString()))
		}

		filtered = append(filtered, kv)
	}

	return filtered
}

func (f *attributeFilter) isExported(key string) bool {
	if sourceKeys[key] {
		f.warn(key)

		return false
	}

	if key == "error" {
		return true
	}

	for _, prefix := range exportedPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}

	f.warn(key)

	return false
}

func (f *attributeFilter) warn(key string) {
	if f.logger != nil {
		f.logger.Warn("attribute blocked by filter", "key", key)
	}
}

// RelativeToRoot returns path relative to root in slash form. Relative paths
// pass through. Absolute paths outside root, or any absolute path when root is
// unknown, become RedactedPath.
func RelativeToRoot(root, path string) string {
	if path == "" || !filepath.IsAbs(path) {
		return filepath.ToSlash(path)
	}

	if root == "" {
		return RedactedPath
	}

	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return RedactedPath
	}

	return filepath.ToSlash(rel)
}

func stringAttr(attrs []attribute.KeyValue, key string) (string, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key && kv.Value.Type() == attribute.STRING {
			return kv.Value.AsString(), true
		}
	}

	return "", false
}

// filteredSpan wraps a ReadOnlySpan with a precomputed attribute list.
type filteredSpan struct {
	sdktrace.ReadOnlySpan

	attrs []attribute.KeyValue
}

// Attributes returns the filtered attributes.
func (s *filteredSpan) Attributes() []attribute.KeyValue {
	return s.attrs
}
