package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sharad-Patel1/clickhome-migration/pkg/observability"
)

func setupTestMeter(t *testing.T) (*observability.ToolMetrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	tm, err := observability.NewToolMetrics(mp.Meter("test"))
	require.NoError(t, err)

	return tm, reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics

	err := reader.Collect(context.Background(), &rm)
	require.NoError(t, err)

	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for idx := range rm.ScopeMetrics {
		for midx := range rm.ScopeMetrics[idx].Metrics {
			if rm.ScopeMetrics[idx].Metrics[midx].Name == name {
				return &rm.ScopeMetrics[idx].Metrics[midx]
			}
		}
	}

	return nil
}

func sumByOutcome(t *testing.T, m *metricdata.Metrics) map[string]int64 {
	t.Helper()

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", m.Name)

	out := make(map[string]int64)

	for _, dp := range sum.DataPoints {
		outcome, _ := dp.Attributes.Value("outcome")
		out[outcome.AsString()] += dp.Value
	}

	return out
}

func TestToolMetrics_RecordCall(t *testing.T) {
	t.Parallel()
	tm, reader := setupTestMeter(t)
	ctx := context.Background()

	tm.RecordCall(ctx, "migration_stats", observability.OutcomeOK, 100*time.Millisecond)
	tm.RecordCall(ctx, "migration_stats", observability.OutcomeOK, 20*time.Millisecond)

	rm := collectMetrics(t, reader)

	calls := findMetric(rm, "chmigrate.mcp.tool.calls")
	require.NotNil(t, calls)
	assert.Equal(t, map[string]int64{"ok": 2}, sumByOutcome(t, calls))

	require.NotNil(t, findMetric(rm, "chmigrate.mcp.tool.duration.seconds"))
}

func TestToolMetrics_FailuresByOutcome(t *testing.T) {
	t.Parallel()
	tm, reader := setupTestMeter(t)
	ctx := context.Background()

	tm.RecordCall(ctx, "migration_get_file", observability.OutcomeRejected, time.Millisecond)
	tm.RecordCall(ctx, "migration_rescan", observability.OutcomeFailed, time.Second)
	tm.RecordCall(ctx, "migration_stats", observability.OutcomeOK, time.Millisecond)

	rm := collectMetrics(t, reader)

	failures := findMetric(rm, "chmigrate.mcp.tool.failures")
	require.NotNil(t, failures)
	assert.Equal(t, map[string]int64{"rejected": 1, "failed": 1}, sumByOutcome(t, failures))
}

func TestToolMetrics_TrackInflight(t *testing.T) {
	t.Parallel()
	tm, reader := setupTestMeter(t)
	ctx := context.Background()

	done := tm.TrackInflight(ctx, "migration_list_files")

	inflight := findMetric(collectMetrics(t, reader), "chmigrate.mcp.tool.inflight")
	require.NotNil(t, inflight)

	done()

	inflight = findMetric(collectMetrics(t, reader), "chmigrate.mcp.tool.inflight")
	require.NotNil(t, inflight)

	sum, ok := inflight.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(0), sum.DataPoints[0].Value)
}

func TestToolMetrics_NilReceiver(t *testing.T) {
	t.Parallel()

	var tm *observability.ToolMetrics

	assert.NotPanics(t, func() {
		tm.RecordCall(context.Background(), "x", observability.OutcomeOK, time.Millisecond)
		tm.TrackInflight(context.Background(), "x")()
	})
}

func TestPipelineMetrics_Records(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	pm, err := observability.NewPipelineMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()

	pm.FileAnalyzed(ctx, "")
	pm.FileAnalyzed(ctx, "parse")
	pm.ScanCompleted(ctx, 2*time.Second)
	pm.WatchRequest(ctx, "reanalyze")
	pm.SnapshotPublished(ctx)
	pm.Reparsed(ctx, true)

	rm := collectMetrics(t, reader)

	files := findMetric(rm, "chmigrate.files.analyzed.total")
	require.NotNil(t, files)

	sum, ok := files.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(2), sum.DataPoints[0].Value)

	for _, name := range []string{
		"chmigrate.analysis.errors.total",
		"chmigrate.scan.duration.seconds",
		"chmigrate.watch.requests.total",
		"chmigrate.snapshots.published.total",
		"chmigrate.parse.incremental.total",
	} {
		assert.NotNil(t, findMetric(rm, name), name)
	}
}

func TestPipelineMetrics_NilReceiver(t *testing.T) {
	t.Parallel()

	var pm *observability.PipelineMetrics

	assert.NotPanics(t, func() {
		pm.FileAnalyzed(context.Background(), "io")
		pm.ScanCompleted(context.Background(), time.Second)
		pm.WatchRequest(context.Background(), "remove")
		pm.SnapshotPublished(context.Background())
		pm.Reparsed(context.Background(), false)
	})
}
