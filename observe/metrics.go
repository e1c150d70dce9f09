package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Log record outcomes.
const (
	OutcomeEmitted    = "emitted"
	OutcomeFiltered   = "filtered"
	OutcomeSampledOut = "sampled_out"
	OutcomeFallback   = "fallback"
	OutcomeFailed     = "failed"
)

// Trace report outcomes.
const (
	ReportOK      = "ok"
	ReportFailed  = "failed"
	ReportSkipped = "skipped"
)

// Metrics records emission-layer counters.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordLog counts one log call with its outcome.
	RecordLog(ctx context.Context, service string, sev Severity, outcome string)

	// RecordReport counts one trace report with its outcome and segment duration.
	RecordReport(ctx context.Context, service string, seg Segment, outcome string)
}

// metricsImpl is the otel-backed Metrics.
type metricsImpl struct {
	logRecords   metric.Int64Counter
	traceReports metric.Int64Counter
	durationHist metric.Float64Histogram
}

// NewMetrics creates Metrics on the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	logRecords, err := meter.Int64Counter(
		"observe.log.records",
		metric.WithDescription("Log calls by severity and outcome"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	traceReports, err := meter.Int64Counter(
		"observe.trace.reports",
		metric.WithDescription("Segment reports by outcome"),
		metric.WithUnit("{report}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"observe.trace.segment.duration_ms",
		metric.WithDescription("Reported segment duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		logRecords:   logRecords,
		traceReports: traceReports,
		durationHist: durationHist,
	}, nil
}

func (m *metricsImpl) RecordLog(ctx context.Context, service string, sev Severity, outcome string) {
	m.logRecords.Add(ctx, 1, metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("severity", sev.String()),
		attribute.String("outcome", outcome),
	))
}

func (m *metricsImpl) RecordReport(ctx context.Context, service string, seg Segment, outcome string) {
	opt := metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("segment.kind", seg.Kind.String()),
		attribute.String("outcome", outcome),
	)
	m.traceReports.Add(ctx, 1, opt)
	m.durationHist.Record(ctx, float64(seg.Duration())/float64(time.Millisecond), opt)
}

// noopMetrics is a metrics implementation that does nothing.
type noopMetrics struct{}

func (noopMetrics) RecordLog(context.Context, string, Severity, string)  {}
func (noopMetrics) RecordReport(context.Context, string, Segment, string) {}
