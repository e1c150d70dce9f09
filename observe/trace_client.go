package observe

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// NopTraceClient is a trace client without the patch capability. Tracers
// built on it report nothing.
type NopTraceClient struct{}

func (NopTraceClient) Shutdown(context.Context) error { return nil }

// OTelTraceClient replays finished segments as OpenTelemetry spans that keep
// the segments' trace and span IDs.
type OTelTraceClient struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewOTelTraceClient creates a client exporting through exp. A nil exp is
// allowed when opts register their own span processor.
func NewOTelTraceClient(service string, exp sdktrace.SpanExporter, opts ...sdktrace.TracerProviderOption) *OTelTraceClient {
	base := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(semconv.ServiceName(service))),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}
	if exp != nil {
		base = append(base, sdktrace.WithBatcher(exp))
	}
	// The ID generator goes last so segment IDs always survive.
	opts = append(append(base, opts...), sdktrace.WithIDGenerator(segmentIDs{}))

	tp := sdktrace.NewTracerProvider(opts...)
	return &OTelTraceClient{
		provider: tp,
		tracer:   tp.Tracer("github.com/jonwraymond/spartanobs/observe"),
	}
}

// PatchTraces emits one span per segment.
func (c *OTelTraceClient) PatchTraces(ctx context.Context, segments []Segment) error {
	for _, seg := range segments {
		c.emit(ctx, seg)
	}
	return nil
}

func (c *OTelTraceClient) emit(ctx context.Context, seg Segment) {
	opts := []trace.SpanStartOption{
		trace.WithTimestamp(seg.Start),
		trace.WithAttributes(segmentAttributes(seg)...),
	}

	if seg.HasParent() {
		parent := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    seg.TraceID,
			SpanID:     seg.ParentID,
			TraceFlags: trace.FlagsSampled,
			Remote:     true,
		})
		ctx = trace.ContextWithRemoteSpanContext(ctx, parent)
		opts = append(opts, trace.WithSpanKind(trace.SpanKindInternal))
	} else {
		opts = append(opts, trace.WithNewRoot(), trace.WithSpanKind(trace.SpanKindServer))
	}
	ctx = context.WithValue(ctx, segmentIDKey{}, seg)

	_, span := c.tracer.Start(ctx, seg.Name, opts...)
	switch {
	case seg.Panicked:
		span.SetStatus(codes.Error, "panic")
	case seg.Err != nil:
		span.RecordError(seg.Err)
		span.SetStatus(codes.Error, seg.Err.Error())
	default:
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(seg.End))
}

// Flush exports every buffered span.
func (c *OTelTraceClient) Flush(ctx context.Context) error {
	return c.provider.ForceFlush(ctx)
}

// Shutdown flushes and stops the provider.
func (c *OTelTraceClient) Shutdown(ctx context.Context) error {
	return c.provider.Shutdown(ctx)
}

func segmentAttributes(seg Segment) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(seg.Metadata)+3)
	attrs = append(attrs,
		attribute.String("segment.kind", seg.Kind.String()),
		attribute.String("segment.service", seg.Service),
		attribute.Bool("segment.error", seg.Err != nil || seg.Panicked),
	)
	for _, k := range slices.Sorted(maps.Keys(seg.Metadata)) {
		attrs = append(attrs, metadataAttribute("metadata."+k, seg.Metadata[k]))
	}
	return attrs
}

func metadataAttribute(key string, v any) attribute.KeyValue {
	switch tv := v.(type) {
	case string:
		return attribute.String(key, tv)
	case bool:
		return attribute.Bool(key, tv)
	case int:
		return attribute.Int(key, tv)
	case int64:
		return attribute.Int64(key, tv)
	case float64:
		return attribute.Float64(key, tv)
	case []string:
		return attribute.StringSlice(key, tv)
	case fmt.Stringer:
		return attribute.String(key, tv.String())
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}

type segmentIDKey struct{}

// segmentIDs hands the SDK the IDs of the segment being replayed, so the
// exported span matches what logs were correlated with.
type segmentIDs struct{}

func (segmentIDs) NewIDs(ctx context.Context) (trace.TraceID, trace.SpanID) {
	if seg, ok := ctx.Value(segmentIDKey{}).(Segment); ok {
		return seg.TraceID, seg.SpanID
	}
	return newTraceID(), newSpanID()
}

func (segmentIDs) NewSpanID(ctx context.Context, _ trace.TraceID) trace.SpanID {
	if seg, ok := ctx.Value(segmentIDKey{}).(Segment); ok {
		return seg.SpanID
	}
	return newSpanID()
}
