// Package observe provides the observability primitives shared by the
// sonnet service: OpenTelemetry metrics, tracing, trace-aware logging and
// the HTTP middleware that ties them together.
//
// Metrics go through the OpenTelemetry Metrics API and are scraped from
// /metrics via the Prometheus exporter installed by [InitProvider]. Code that
// has no handle to a [Metrics] can use [DefaultMetrics]; tests should build
// their own with [NewMetrics] and a manual reader.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for every sonnet metric.
const meterName = "github.com/bedwards/sonnet"

// Metrics holds the OpenTelemetry instruments of the service. The OTel types
// synchronise internally, so a Metrics is safe for concurrent use.
type Metrics struct {
	// Lookups counts dictionary lookups by result: "exact", one of the
	// fallback rule names, or "unknown".
	Lookups metric.Int64Counter

	// ScanDuration tracks how long a scansion report takes to build.
	ScanDuration metric.Float64Histogram

	// ScannedLines counts lines passed through the scansion pipeline.
	ScannedLines metric.Int64Counter

	// UnknownWords counts words that had no pronunciation during scansion.
	UnknownWords metric.Int64Counter

	// GenerationAttempts records how many draws an end-word generation
	// needed, with attribute status.
	GenerationAttempts metric.Int64Histogram

	// GenerationDuration tracks end-word generation latency.
	GenerationDuration metric.Float64Histogram

	// ArchiveErrors counts failed archive operations, with attribute op.
	ArchiveErrors metric.Int64Counter

	// ToolCalls counts requests arriving through a chat or tool surface, with
	// attributes surface, tool and status.
	ToolCalls metric.Int64Counter

	// ActiveSockets tracks open live-scansion WebSocket connections.
	ActiveSockets metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time, with
	// attributes method, path and status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds. Scansion and generation
// are in-memory, so the scale starts well below a millisecond.
var latencyBuckets = []float64{
	0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1,
}

// attemptBuckets are histogram boundaries for generation draw counts.
var attemptBuckets = []float64{7, 10, 20, 50, 100, 200, 500, 1000, 2000}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Lookups, err = m.Int64Counter("sonnet.lookup.total",
		metric.WithDescription("Dictionary lookups by result."),
	); err != nil {
		return nil, err
	}
	if met.ScanDuration, err = m.Float64Histogram("sonnet.scan.duration",
		metric.WithDescription("Latency of building a scansion report."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ScannedLines, err = m.Int64Counter("sonnet.scan.lines",
		metric.WithDescription("Lines scanned."),
	); err != nil {
		return nil, err
	}
	if met.UnknownWords, err = m.Int64Counter("sonnet.scan.unknown_words",
		metric.WithDescription("Words without a pronunciation during scansion."),
	); err != nil {
		return nil, err
	}
	if met.GenerationAttempts, err = m.Int64Histogram("sonnet.generator.attempts",
		metric.WithDescription("Draws needed per end-word generation."),
		metric.WithExplicitBucketBoundaries(attemptBuckets...),
	); err != nil {
		return nil, err
	}
	if met.GenerationDuration, err = m.Float64Histogram("sonnet.generator.duration",
		metric.WithDescription("Latency of end-word generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ArchiveErrors, err = m.Int64Counter("sonnet.archive.errors",
		metric.WithDescription("Failed archive operations by op."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("sonnet.tool.calls",
		metric.WithDescription("Tool and slash-command invocations by surface, tool and status."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSockets, err = m.Int64UpDownCounter("sonnet.active_sockets",
		metric.WithDescription("Open live-scansion WebSocket connections."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("sonnet.http.request.duration",
		metric.WithDescription("HTTP request latency by method, path and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics], created on first call
// from [otel.GetMeterProvider]. It panics if instrument creation fails, which
// does not happen with the global provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordLookup counts one dictionary lookup.
func (m *Metrics) RecordLookup(ctx context.Context, result string) {
	m.Lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordScan records one scansion report.
func (m *Metrics) RecordScan(ctx context.Context, lines, unknown int, d time.Duration) {
	m.ScanDuration.Record(ctx, d.Seconds())
	m.ScannedLines.Add(ctx, int64(lines))
	if unknown > 0 {
		m.UnknownWords.Add(ctx, int64(unknown))
	}
}

// RecordGeneration records one end-word generation. status is "ok" or
// "exhausted".
func (m *Metrics) RecordGeneration(ctx context.Context, attempts int, d time.Duration, status string) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.GenerationAttempts.Record(ctx, int64(attempts), attrs)
	m.GenerationDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordArchiveError counts a failed archive operation.
func (m *Metrics) RecordArchiveError(ctx context.Context, op string) {
	m.ArchiveErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// RecordToolCall counts one invocation through surface ("mcp", "discord").
func (m *Metrics) RecordToolCall(ctx context.Context, surface, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("surface", surface),
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}
