package observe

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// patchingClient is a TraceClient with the patch capability.
type patchingClient struct {
	mu       sync.Mutex
	segments []Segment
	err      error
	panics   bool
	shutdown int
}

func (c *patchingClient) PatchTraces(_ context.Context, segments []Segment) error {
	if c.panics {
		panic("patch exploded")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.segments = append(c.segments, segments...)
	return nil
}

func (c *patchingClient) Shutdown(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shutdown++
	return nil
}

func (c *patchingClient) Segments() []Segment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Segment(nil), c.segments...)
}

// plainClient lacks the patch capability.
type plainClient struct{}

func (plainClient) Shutdown(context.Context) error { return nil }

func newTestTracer(t *testing.T, client TraceClient, opts ...TracerOption) *Tracer {
	t.Helper()
	tr, err := NewTracer(TracerConfig{ServiceName: "test-service"}, append([]TracerOption{WithTraceClient(client)}, opts...)...)
	if err != nil {
		t.Fatalf("NewTracer failed: %v", err)
	}
	return tr
}

func TestNewTracer_Validation(t *testing.T) {
	if _, err := NewTracer(TracerConfig{}); !errors.Is(err, ErrMissingServiceName) {
		t.Errorf("expected ErrMissingServiceName, got %v", err)
	}
	if _, err := NewTracer(TracerConfig{ServiceName: "svc", Exporter: "zipkin"}); !errors.Is(err, ErrInvalidTracingExporter) {
		t.Errorf("expected ErrInvalidTracingExporter, got %v", err)
	}
	if _, err := NewTracer(TracerConfig{ServiceName: "svc", SampleRate: SampleRate(2)}); !errors.Is(err, ErrInvalidSampleRate) {
		t.Errorf("expected ErrInvalidSampleRate, got %v", err)
	}
}

func TestNewTracer_BackendUnavailable(t *testing.T) {
	_, err := NewTracer(TracerConfig{ServiceName: "svc", Backend: "xray"})

	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigurationError, got %v", err)
	}
	if cfgErr.Component != "tracing" || !strings.Contains(err.Error(), "xray") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewTracer_SetupFailureDisablesReports(t *testing.T) {
	var console bytes.Buffer
	tr, err := NewTracer(
		TracerConfig{ServiceName: "svc"},
		WithTraceBackendFactory(func(context.Context, TracerConfig) (TraceClient, error) {
			return nil, errors.New("no credentials")
		}),
		WithTraceConsole(&console),
	)
	if err != nil {
		t.Fatalf("setup failure must not fail construction: %v", err)
	}
	if tr.Enabled() {
		t.Error("expected reports disabled")
	}
	if !strings.Contains(console.String(), "no credentials") {
		t.Errorf("console = %q", console.String())
	}
}

func TestNewTracer_OTelBackendWithNoneExporter(t *testing.T) {
	tr, err := NewTracer(TracerConfig{ServiceName: "svc", Exporter: "none"})
	if err != nil {
		t.Fatalf("NewTracer failed: %v", err)
	}
	if !tr.Enabled() {
		t.Error("otel backend should have the patch capability")
	}
	if err := tr.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestTracer_CapabilityDetectedOnce(t *testing.T) {
	if _, ok := detectCapability(plainClient{}).(noopCapability); !ok {
		t.Error("client without PatchTraces should get noopCapability")
	}
	if _, ok := detectCapability(&patchingClient{}).(fullCapability); !ok {
		t.Error("client with PatchTraces should get fullCapability")
	}
	if _, ok := detectCapability(NopTraceClient{}).(noopCapability); !ok {
		t.Error("NopTraceClient should get noopCapability")
	}
}

func TestTracer_ReportSwallowsFailures(t *testing.T) {
	for name, client := range map[string]*patchingClient{
		"error": {err: errors.New("throttled")},
		"panic": {panics: true},
	} {
		t.Run(name, func(t *testing.T) {
			tr := newTestTracer(t, client)
			_, scope := tr.BeginSegment(context.Background(), "seg", nil)
			scope.End(nil)
		})
	}
}

func TestOTelTraceClient_ReplaysSegments(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	client := NewOTelTraceClient("test-service", nil, sdktrace.WithSpanProcessor(recorder))
	tr := newTestTracer(t, client)

	ctx, root := tr.BeginSegment(context.Background(), "handle-request", map[string]any{"user_id": 42, "region": "eu"})
	_, child := tr.BeginSubsegment(ctx, "db-query")
	child.End(errors.New("deadlock"))
	root.End(nil)

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	childSpan, rootSpan := spans[0], spans[1]

	rootSeg, childSeg := root.Segment(), child.Segment()
	if rootSpan.SpanContext().TraceID() != rootSeg.TraceID || rootSpan.SpanContext().SpanID() != rootSeg.SpanID {
		t.Errorf("root span IDs do not match segment")
	}
	if childSpan.SpanContext().SpanID() != childSeg.SpanID {
		t.Errorf("child span ID does not match segment")
	}
	if childSpan.Parent().SpanID() != rootSeg.SpanID {
		t.Errorf("child parent = %s, want %s", childSpan.Parent().SpanID(), rootSeg.SpanID)
	}
	if childSpan.SpanContext().TraceID() != rootSeg.TraceID {
		t.Errorf("child should share the root trace")
	}
	if rootSpan.Parent().IsValid() {
		t.Errorf("root span should have no parent")
	}

	if rootSpan.Name() != "handle-request" || childSpan.Name() != "db-query" {
		t.Errorf("span names = %q, %q", rootSpan.Name(), childSpan.Name())
	}
	if childSpan.Status().Code != codes.Error || childSpan.Status().Description != "deadlock" {
		t.Errorf("child status = %+v", childSpan.Status())
	}
	if rootSpan.Status().Code != codes.Ok {
		t.Errorf("root status = %+v", rootSpan.Status())
	}
	if !rootSpan.StartTime().Equal(rootSeg.Start) || !rootSpan.EndTime().Equal(rootSeg.End) {
		t.Errorf("span timing does not match segment")
	}

	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range rootSpan.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	if attrs["segment.kind"].AsString() != "segment" {
		t.Errorf("segment.kind = %v", attrs["segment.kind"])
	}
	if attrs["metadata.user_id"].AsInt64() != 42 {
		t.Errorf("metadata.user_id = %v", attrs["metadata.user_id"])
	}
	if attrs["metadata.region"].AsString() != "eu" {
		t.Errorf("metadata.region = %v", attrs["metadata.region"])
	}
}

func TestTracer_AdoptsIncomingSpanContext(t *testing.T) {
	client := &patchingClient{}
	tr := newTestTracer(t, client)

	incoming := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    newTraceID(),
		SpanID:     newSpanID(),
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	ctx := trace.ContextWithRemoteSpanContext(context.Background(), incoming)

	_, scope := tr.BeginSegment(ctx, "from-pubsub", nil)
	scope.End(nil)

	segs := client.Segments()
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segs))
	}
	if segs[0].TraceID != incoming.TraceID() || segs[0].ParentID != incoming.SpanID() {
		t.Errorf("segment did not adopt incoming span context")
	}
}

func TestTracer_SubsegmentWithoutParentIsRoot(t *testing.T) {
	client := &patchingClient{}
	tr := newTestTracer(t, client)

	_, scope := tr.BeginSubsegment(context.Background(), "orphan")
	scope.End(nil)

	segs := client.Segments()
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segs))
	}
	if segs[0].Kind != KindSegment || segs[0].HasParent() {
		t.Errorf("orphan subsegment should become a root segment, got %+v", segs[0])
	}
	if !segs[0].TraceID.IsValid() || !segs[0].SpanID.IsValid() {
		t.Errorf("segment IDs must be valid")
	}
}

func TestTracer_Shutdown(t *testing.T) {
	client := &patchingClient{}
	tr := newTestTracer(t, client)

	if err := tr.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if client.shutdown != 1 {
		t.Errorf("expected client shutdown")
	}
}
