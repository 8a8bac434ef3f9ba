package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricFilesAnalyzed    = "chmigrate.files.analyzed.total"
	metricAnalysisErrors   = "chmigrate.analysis.errors.total"
	metricScanDuration     = "chmigrate.scan.duration.seconds"
	metricWatchRequests    = "chmigrate.watch.requests.total"
	metricSnapshotsPublish = "chmigrate.snapshots.published.total"
	metricIncrementalParse = "chmigrate.parse.incremental.total"

	attrKind = "kind"
)

// PipelineMetrics holds instruments for the scan and watch paths. All methods
// are safe on a nil receiver.
type PipelineMetrics struct {
	filesAnalyzed metric.Int64Counter
	errors        metric.Int64Counter
	scanDuration  metric.Float64Histogram
	watchRequests metric.Int64Counter
	snapshots     metric.Int64Counter
	incremental   metric.Int64Counter
}

// NewPipelineMetrics creates the pipeline instruments from mt.
func NewPipelineMetrics(mt metric.Meter) (*PipelineMetrics, error) {
	files, err := mt.Int64Counter(metricFilesAnalyzed,
		metric.WithDescription("Files analyzed by scan or watch"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricFilesAnalyzed, err)
	}

	errs, err := mt.Int64Counter(metricAnalysisErrors,
		metric.WithDescription("Files recorded with an error, by kind"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricAnalysisErrors, err)
	}

	dur, err := mt.Float64Histogram(metricScanDuration,
		metric.WithDescription("Full scan duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricScanDuration, err)
	}

	reqs, err := mt.Int64Counter(metricWatchRequests,
		metric.WithDescription("Debounced watch requests, by op"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricWatchRequests, err)
	}

	snaps, err := mt.Int64Counter(metricSnapshotsPublish,
		metric.WithDescription("Stats snapshots published to watch consumers"),
		metric.WithUnit("{snapshot}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricSnapshotsPublish, err)
	}

	incr, err := mt.Int64Counter(metricIncrementalParse,
		metric.WithDescription("Watch reparses, by full or incremental mode"),
		metric.WithUnit("{parse}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricIncrementalParse, err)
	}

	return &PipelineMetrics{
		filesAnalyzed: files,
		errors:        errs,
		scanDuration:  dur,
		watchRequests: reqs,
		snapshots:     snaps,
		incremental:   incr,
	}, nil
}

// FileAnalyzed counts one analyzed file. errKind is empty for success.
func (pm *PipelineMetrics) FileAnalyzed(ctx context.Context, errKind string) {
	if pm == nil {
		return
	}

	pm.filesAnalyzed.Add(ctx, 1)

	if errKind != "" {
		pm.errors.Add(ctx, 1, metric.WithAttributes(attribute.String(attrKind, errKind)))
	}
}

// ScanCompleted records the duration of a full scan.
func (pm *PipelineMetrics) ScanCompleted(ctx context.Context, d time.Duration) {
	if pm == nil {
		return
	}

	pm.scanDuration.Record(ctx, d.Seconds())
}

// WatchRequest counts one debounced request by op.
func (pm *PipelineMetrics) WatchRequest(ctx context.Context, op string) {
	if pm == nil {
		return
	}

	pm.watchRequests.Add(ctx, 1, metric.WithAttributes(attribute.String(attrOp, op)))
}

// SnapshotPublished counts one published stats snapshot.
func (pm *PipelineMetrics) SnapshotPublished(ctx context.Context) {
	if pm == nil {
		return
	}

	pm.snapshots.Add(ctx, 1)
}

// Reparsed counts one watch reparse.
func (pm *PipelineMetrics) Reparsed(ctx context.Context, incremental bool) {
	if pm == nil {
		return
	}

	mode := "full"
	if incremental {
		mode = "incremental"
	}

	pm.incremental.Add(ctx, 1, metric.WithAttributes(attribute.String(attrMode, mode)))
}
