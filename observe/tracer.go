package observe

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"sync"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/jonwraymond/spartanobs/observe/exporters"
)

// Built-in trace backend names.
const (
	TraceBackendOTel = "otel"
	TraceBackendNone = "none"
)

// TraceClient is a trace backend handle.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: Shutdown should be idempotent.
type TraceClient interface {
	Shutdown(ctx context.Context) error
}

// TracePatcher is the optional capability to submit finished segments. A
// TraceClient without it makes every report a no-op.
type TracePatcher interface {
	PatchTraces(ctx context.Context, segments []Segment) error
}

// capability is the report path chosen once at tracer construction.
type capability interface {
	enabled() bool
	patch(ctx context.Context, segments []Segment) error
}

type fullCapability struct {
	patcher TracePatcher
}

func (fullCapability) enabled() bool { return true }

func (c fullCapability) patch(ctx context.Context, segments []Segment) error {
	return c.patcher.PatchTraces(ctx, segments)
}

type noopCapability struct{}

func (noopCapability) enabled() bool                          { return false }
func (noopCapability) patch(context.Context, []Segment) error { return nil }

// detectCapability selects the report path for client.
func detectCapability(client TraceClient) capability {
	if p, ok := client.(TracePatcher); ok && p != nil {
		return fullCapability{patcher: p}
	}
	return noopCapability{}
}

// TraceBackendFactory builds a TraceClient for a tracer configuration. An
// error is a setup failure and leaves the Tracer without a report path.
type TraceBackendFactory func(ctx context.Context, cfg TracerConfig) (TraceClient, error)

var traceBackends = struct {
	mu        sync.RWMutex
	factories map[string]TraceBackendFactory
}{factories: make(map[string]TraceBackendFactory)}

// RegisterTraceBackend makes a backend available to NewTracer under name.
func RegisterTraceBackend(name string, factory TraceBackendFactory) {
	if name == "" || factory == nil {
		return
	}
	traceBackends.mu.Lock()
	defer traceBackends.mu.Unlock()
	traceBackends.factories[name] = factory
}

func lookupTraceBackend(name string) (TraceBackendFactory, bool) {
	traceBackends.mu.RLock()
	defer traceBackends.mu.RUnlock()
	f, ok := traceBackends.factories[name]
	return f, ok
}

func init() {
	RegisterTraceBackend(TraceBackendNone, func(context.Context, TracerConfig) (TraceClient, error) {
		return NopTraceClient{}, nil
	})
	RegisterTraceBackend(TraceBackendOTel, func(ctx context.Context, cfg TracerConfig) (TraceClient, error) {
		exp, err := exporters.NewTracingExporter(ctx, cfg.Exporter)
		if err != nil {
			return nil, err
		}
		var opts []sdktrace.TracerProviderOption
		if cfg.SampleRate != nil {
			opts = append(opts, sdktrace.WithSampler(sdktrace.TraceIDRatioBased(*cfg.SampleRate)))
		}
		return NewOTelTraceClient(cfg.ServiceName, exp, opts...), nil
	})
}

// TracerConfig configures a Tracer.
type TracerConfig struct {
	// ServiceName identifies the service on every segment (required).
	ServiceName string

	// Backend names a registered trace backend. Default: "otel".
	Backend string

	// Exporter selects the span exporter of the otel backend
	// (otlp|otlphttp|jaeger|stdout|none).
	Exporter string

	// SampleRate is the fraction of traces the otel backend exports, decided
	// per trace ID. Nil exports every trace.
	SampleRate *float64

	// ReportTimeout bounds each report. Default: 2 seconds.
	ReportTimeout time.Duration
}

// TracerOption customizes NewTracer.
type TracerOption func(*tracerOptions)

type tracerOptions struct {
	client  TraceClient
	factory TraceBackendFactory
	console io.Writer
	clock   func() time.Time
	metrics Metrics
}

// WithTraceClient injects a ready backend client, bypassing the registry.
func WithTraceClient(client TraceClient) TracerOption {
	return func(o *tracerOptions) { o.client = client }
}

// WithTraceBackendFactory builds the backend client with factory.
func WithTraceBackendFactory(factory TraceBackendFactory) TracerOption {
	return func(o *tracerOptions) { o.factory = factory }
}

// WithTraceConsole sets the channel used to announce setup failures.
func WithTraceConsole(w io.Writer) TracerOption {
	return func(o *tracerOptions) { o.console = w }
}

// WithTraceClock sets the segment clock.
func WithTraceClock(now func() time.Time) TracerOption {
	return func(o *tracerOptions) { o.clock = now }
}

// WithTraceMetrics sets the metrics sink.
func WithTraceMetrics(m Metrics) TracerOption {
	return func(o *tracerOptions) { o.metrics = m }
}

// Tracer reports segments to a trace backend without affecting the traced
// code.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Errors: reporting is best-effort; report failures are never returned to
// traced code.
type Tracer struct {
	service string
	client  TraceClient
	cap     capability
	guard   *guard
	metrics Metrics
	now     func() time.Time
}

// NewTracer creates a Tracer. An unregistered backend is a
// *ConfigurationError. A backend that fails to set up is announced on the
// console and the tracer runs with reports disabled.
func NewTracer(cfg TracerConfig, opts ...TracerOption) (*Tracer, error) {
	o := tracerOptions{console: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.ServiceName == "" {
		return nil, ErrMissingServiceName
	}
	if !isValidTracingExporter(cfg.Exporter) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTracingExporter, cfg.Exporter)
	}
	if r := cfg.SampleRate; r != nil && (*r < MinSampleRate || *r > MaxSampleRate) {
		return nil, fmt.Errorf("%w, got: %f", ErrInvalidSampleRate, *r)
	}
	if cfg.Backend == "" {
		cfg.Backend = TraceBackendOTel
	}

	client := o.client
	if client == nil {
		factory := o.factory
		if factory == nil {
			f, ok := lookupTraceBackend(cfg.Backend)
			if !ok {
				return nil, &ConfigurationError{Component: "tracing", Dependency: cfg.Backend}
			}
			factory = f
		}

		var err error
		client, err = setupTraceClient(factory, cfg)
		if err != nil {
			fmt.Fprintf(o.console, "Warning: Failed to setup %s tracing: %v\n", cfg.Backend, err)
			fmt.Fprintln(o.console, "Tracing reports disabled...")
			client = NopTraceClient{}
		}
	}

	metrics := o.metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	now := o.clock
	if now == nil {
		now = time.Now
	}

	return &Tracer{
		service: cfg.ServiceName,
		client:  client,
		cap:     detectCapability(client),
		guard:   newGuard(cfg.ReportTimeout),
		metrics: metrics,
		now:     now,
	}, nil
}

func setupTraceClient(factory TraceBackendFactory, cfg TracerConfig) (client TraceClient, err error) {
	defer func() {
		if r := recover(); r != nil {
			client, err = nil, fmt.Errorf("backend setup panic: %v", r)
		}
	}()
	client, err = factory(context.Background(), cfg)
	if err == nil && client == nil {
		err = fmt.Errorf("backend returned no client")
	}
	return client, err
}

func isValidTracingExporter(name string) bool {
	return slices.Contains(ValidTracingExporters, name)
}

// ServiceName returns the service identity.
func (t *Tracer) ServiceName() string { return t.service }

// Enabled reports whether the backend can accept segments.
func (t *Tracer) Enabled() bool { return t.cap.enabled() }

// start opens a segment nested under whatever ctx carries. Subsegments
// without a parent become root segments.
func (t *Tracer) start(ctx context.Context, name string, kind SegmentKind, metadata map[string]any) *Segment {
	seg := &Segment{
		Name:     name,
		Service:  t.service,
		Kind:     kind,
		Start:    t.now(),
		Metadata: maps.Clone(metadata),
		SpanID:   newSpanID(),
	}
	if traceID, parentID, ok := parentFromContext(ctx); ok {
		seg.TraceID = traceID
		seg.ParentID = parentID
	} else {
		seg.TraceID = newTraceID()
		seg.Kind = KindSegment
	}
	return seg
}

// finish reports a finished copy of seg and returns it. seg itself is shared
// through contexts and is never written after start.
func (t *Tracer) finish(ctx context.Context, seg *Segment, err error, panicked bool) Segment {
	done := seg.clone()
	done.End = t.now()
	done.Err = err
	done.Panicked = panicked
	t.report(ctx, done)
	return done
}

// report submits seg best-effort. It never panics and never returns an error.
func (t *Tracer) report(ctx context.Context, seg Segment) {
	defer func() {
		_ = recover()
	}()
	if ctx == nil {
		ctx = context.Background()
	}

	if !t.cap.enabled() {
		t.metrics.RecordReport(ctx, t.service, seg, ReportSkipped)
		return
	}

	err := t.guard.do(ctx, func(ctx context.Context) error {
		return t.cap.patch(ctx, []Segment{seg})
	})
	if err != nil {
		t.metrics.RecordReport(ctx, t.service, seg, ReportFailed)
		return
	}
	t.metrics.RecordReport(ctx, t.service, seg, ReportOK)
}

// Shutdown flushes and releases the backend client.
func (t *Tracer) Shutdown(ctx context.Context) error {
	return t.client.Shutdown(ctx)
}
