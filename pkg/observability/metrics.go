package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricToolCalls    = "chmigrate.mcp.tool.calls"
	metricToolDuration = "chmigrate.mcp.tool.duration.seconds"
	metricToolFailures = "chmigrate.mcp.tool.failures"
	metricToolInflight = "chmigrate.mcp.tool.inflight"

	attrTool    = "mcp.tool"
	attrOutcome = "outcome"
)

// Outcome labels a finished tool call.
type Outcome string

// Tool call outcomes. OutcomeRejected is a call answered with an error result,
// such as an unknown path; OutcomeFailed is a call whose handler returned an error.
const (
	OutcomeOK       Outcome = "ok"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

// toolDurationBuckets covers single-file lookups up to rescans of large monorepos.
var toolDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// ToolMetrics holds call count, failure, latency and concurrency instruments
// for MCP tool calls.
type ToolMetrics struct {
	calls    metric.Int64Counter
	duration metric.Float64Histogram
	failures metric.Int64Counter
	inflight metric.Int64UpDownCounter
}

// NewToolMetrics creates the tool call instruments from the given meter.
func NewToolMetrics(mt metric.Meter) (*ToolMetrics, error) {
	calls, err := mt.Int64Counter(metricToolCalls,
		metric.WithDescription("MCP tool calls by tool and outcome"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricToolCalls, err)
	}

	duration, err := mt.Float64Histogram(metricToolDuration,
		metric.WithDescription("MCP tool call latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(toolDurationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricToolDuration, err)
	}

	failures, err := mt.Int64Counter(metricToolFailures,
		metric.WithDescription("MCP tool calls that did not succeed"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricToolFailures, err)
	}

	inflight, err := mt.Int64UpDownCounter(metricToolInflight,
		metric.WithDescription("MCP tool calls in progress"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricToolInflight, err)
	}

	return &ToolMetrics{calls: calls, duration: duration, failures: failures, inflight: inflight}, nil
}

// RecordCall records a finished tool call. Safe on a nil receiver.
func (tm *ToolMetrics) RecordCall(ctx context.Context, tool string, outcome Outcome, elapsed time.Duration) {
	if tm == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrTool, tool),
		attribute.String(attrOutcome, string(outcome)),
	)

	tm.calls.Add(ctx, 1, attrs)
	tm.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String(attrTool, tool)))

	if outcome != OutcomeOK {
		tm.failures.Add(ctx, 1, attrs)
	}
}

// TrackInflight increments the in-progress gauge for tool and returns its decrement.
func (tm *ToolMetrics) TrackInflight(ctx context.Context, tool string) func() {
	if tm == nil {
		return func() {}
	}

	attrs := metric.WithAttributes(attribute.String(attrTool, tool))
	tm.inflight.Add(ctx, 1, attrs)

	return func() {
		tm.inflight.Add(ctx, -1, attrs)
	}
}
