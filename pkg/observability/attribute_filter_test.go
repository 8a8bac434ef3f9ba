package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sharad-Patel1/clickhome-migration/pkg/observability"
)

func newFilteredProvider(t *testing.T, logger *slog.Logger) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	filter := observability.NewAttributeFilter(sdktrace.NewSimpleSpanProcessor(exporter), logger)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(filter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	return tp, exporter
}

func spanByName(t *testing.T, spans tracetest.SpanStubs, name string) map[string]any {
	t.Helper()

	for _, s := range spans {
		if s.Name == name {
			return spanAttrMap(s)
		}
	}

	require.Failf(t, "span not exported", "%s", name)

	return nil
}

func TestAttributeFilter_FilePathRelativeToScanRoot(t *testing.T) {
	t.Parallel()

	tp, exporter := newFilteredProvider(t, nil)
	root := filepath.Join(t.TempDir(), "project")

	ctx, scan := tp.Tracer("test").Start(context.Background(), "chmigrate.scan",
		trace.WithAttributes(attribute.String(observability.AttrScanRoot, root)))

	_, inside := tp.Tracer("test").Start(ctx, "analyze.inside",
		trace.WithAttributes(attribute.String(observability.AttrFilePath, filepath.Join(root, "src", "app", "a.ts"))))
	inside.End()

	_, outside := tp.Tracer("test").Start(ctx, "analyze.outside",
		trace.WithAttributes(attribute.String(observability.AttrFilePath, filepath.Join(filepath.Dir(root), "secret", "b.ts"))))
	outside.End()

	scan.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 3)

	assert.Equal(t, "src/app/a.ts", spanByName(t, spans, "analyze.inside")[observability.AttrFilePath])
	assert.Equal(t, observability.RedactedPath, spanByName(t, spans, "analyze.outside")[observability.AttrFilePath])
	assert.Equal(t, root, spanByName(t, spans, "chmigrate.scan")[observability.AttrScanRoot])
}

func TestAttributeFilter_RootOnSameSpan(t *testing.T) {
	t.Parallel()

	tp, exporter := newFilteredProvider(t, nil)
	root := t.TempDir()

	_, span := tp.Tracer("test").Start(context.Background(), "watch.apply", trace.WithAttributes(
		attribute.String(observability.AttrScanRoot, root),
		attribute.String(observability.AttrFilePath, filepath.Join(root, "x.tsx")),
		attribute.String("watch.op", "reanalyze"),
	))
	span.End()

	attrs := spanByName(t, exporter.GetSpans(), "watch.apply")
	assert.Equal(t, "x.tsx", attrs[observability.AttrFilePath])
	assert.Equal(t, "reanalyze", attrs["watch.op"])
}

func TestAttributeFilter_AbsolutePathWithoutRootRedacted(t *testing.T) {
	t.Parallel()

	tp, exporter := newFilteredProvider(t, nil)

	_, span := tp.Tracer("test").Start(context.Background(), "orphan",
		trace.WithAttributes(attribute.String(observability.AttrFilePath, filepath.Join(t.TempDir(), "a.ts"))))
	span.End()

	assert.Equal(t, observability.RedactedPath, spanByName(t, exporter.GetSpans(), "orphan")[observability.AttrFilePath])
}

func TestAttributeFilter_RootForgottenAfterOwnerEnds(t *testing.T) {
	t.Parallel()

	tp, exporter := newFilteredProvider(t, nil)
	root := t.TempDir()

	ctx, scan := tp.Tracer("test").Start(context.Background(), "chmigrate.scan",
		trace.WithAttributes(attribute.String(observability.AttrScanRoot, root)))
	scan.End()

	_, late := tp.Tracer("test").Start(ctx, "late",
		trace.WithAttributes(attribute.String(observability.AttrFilePath, filepath.Join(root, "a.ts"))))
	late.End()

	assert.Equal(t, observability.RedactedPath, spanByName(t, exporter.GetSpans(), "late")[observability.AttrFilePath])
}

func TestAttributeFilter_DropsSourceAndUnknownKeys(t *testing.T) {
	t.Parallel()

	tp, exporter := newFilteredProvider(t, nil)

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	span.SetAttributes(
		attribute.String("file.content", "import { A } from '../shared/models/a';"),
		attribute.String("import.source", "../shared/models/a"),
		attribute.String("user.id", "12345"),
		attribute.Int("scan.files", 100),
		attribute.String("error.type", "timeout"),
		attribute.String("mcp.tool", "migration_stats"),
	)
	span.End()

	attrs := spanByName(t, exporter.GetSpans(), "op")
	assert.NotContains(t, attrs, "file.content")
	assert.NotContains(t, attrs, "import.source")
	assert.NotContains(t, attrs, "user.id")
	assert.Equal(t, int64(100), attrs["scan.files"])
	assert.Equal(t, "timeout", attrs["error.type"])
	assert.Equal(t, "migration_stats", attrs["mcp.tool"])
}

func TestAttributeFilter_WarnsInDevMode(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	tp, _ := newFilteredProvider(t, logger)

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	span.SetAttributes(attribute.String("file.source", "val"))
	span.End()

	assert.Contains(t, buf.String(), "file.source")
	assert.Contains(t, buf.String(), "blocked")
}

func TestRelativeToRoot(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "proj")

	tests := []struct {
		name string
		root string
		path string
		want string
	}{
		{"nested", root, filepath.Join(root, "src", "a.ts"), "src/a.ts"},
		{"root itself", root, root, "."},
		{"sibling with shared prefix", root, root + "2" + string(filepath.Separator) + "a.ts", observability.RedactedPath},
		{"parent", root, filepath.Dir(root), observability.RedactedPath},
		{"no root", "", filepath.Join(root, "a.ts"), observability.RedactedPath},
		{"already relative", root, filepath.Join("src", "a.ts"), "src/a.ts"},
		{"empty", root, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, observability.RelativeToRoot(tt.root, tt.path))
		})
	}
}

// spanAttrMap converts a span's attributes into a map for easy assertion.
func spanAttrMap(s tracetest.SpanStub) map[string]any {
	m := make(map[string]any, len(s.Attributes))
	for _, a := range s.Attributes {
		m[string(a.Key)] = a.Value.AsInterface()
	}

	return m
}
