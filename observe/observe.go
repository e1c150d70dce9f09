package observe

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/spartanobs/environment"
	"github.com/jonwraymond/spartanobs/observe/exporters"
)

// Config holds all configuration for the Observer.
type Config struct {
	ServiceName string
	// Version and Environment override APP_VERSION and APP_ENVIRONMENT.
	Version     string
	Environment string

	// ReportTimeout bounds each backend call. Default: 2 seconds.
	ReportTimeout time.Duration

	Logging LoggingConfig
	Tracing TracingConfig
	Metrics MetricsConfig
}

// LoggingConfig configures the logging subsystem.
type LoggingConfig struct {
	Level       string   // DEBUG|INFO|WARNING|ERROR|CRITICAL, case-insensitive
	SampleRate  *float64 // nil: LOG_SAMPLE_RATE, then 1.0
	Backend     string   // stdout|otel (needs WithLoggerProvider) or a registered backend
	ProjectRoot string
}

// TracingConfig configures the tracing subsystem.
type TracingConfig struct {
	Enabled    bool
	Backend    string   // otel|none or a registered backend
	Exporter   string   // otlp|otlphttp|jaeger|stdout|none
	SampleRate *float64 // nil: every trace
}

// MetricsConfig configures the metrics subsystem.
type MetricsConfig struct {
	Enabled  bool
	Exporter string // otlp|otlphttp|prometheus|stdout|none
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return ErrMissingServiceName
	}

	if c.Logging.Level != "" {
		if _, ok := ParseSeverity(c.Logging.Level); !ok {
			return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
		}
	}
	if err := validateRate(c.Logging.SampleRate); err != nil {
		return err
	}

	if c.Tracing.Enabled {
		if !slices.Contains(ValidTracingExporters, c.Tracing.Exporter) {
			return fmt.Errorf("%w: %q", ErrInvalidTracingExporter, c.Tracing.Exporter)
		}
		if err := validateRate(c.Tracing.SampleRate); err != nil {
			return err
		}
	}

	if c.Metrics.Enabled {
		if !slices.Contains(ValidMetricsExporters, c.Metrics.Exporter) {
			return fmt.Errorf("%w: %q", ErrInvalidMetricsExporter, c.Metrics.Exporter)
		}
	}

	return nil
}

func validateRate(r *float64) error {
	if r != nil && (*r < MinSampleRate || *r > MaxSampleRate) {
		return fmt.Errorf("%w, got: %f", ErrInvalidSampleRate, *r)
	}
	return nil
}

// Observer provides access to the emission layer of one service.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: Shutdown must honor cancellation/deadlines.
// - Errors: Shutdown returns the first error encountered.
type Observer interface {
	// Logger returns the configured logger.
	Logger() *Logger

	// Tracer returns the configured tracer.
	Tracer() *Tracer

	// Meter returns the configured meter.
	Meter() metric.Meter

	// Shutdown flushes the logger and shuts down the tracer and meter provider.
	Shutdown(ctx context.Context) error
}

// ObserverOption customizes NewObserver.
type ObserverOption func(*observerOptions)

type observerOptions struct {
	logger []LoggerOption
	tracer []TracerOption
}

// WithLoggerOptions passes options through to NewLogger.
func WithLoggerOptions(opts ...LoggerOption) ObserverOption {
	return func(o *observerOptions) { o.logger = append(o.logger, opts...) }
}

// WithTracerOptions passes options through to NewTracer.
func WithTracerOptions(opts ...TracerOption) ObserverOption {
	return func(o *observerOptions) { o.tracer = append(o.tracer, opts...) }
}

// observer is the concrete implementation of Observer.
type observer struct {
	logger        *Logger
	tracer        *Tracer
	meter         metric.Meter
	meterProvider *sdkmetric.MeterProvider
}

// NewObserver creates a Logger, a Tracer and a Meter for cfg.
func NewObserver(ctx context.Context, cfg Config, opts ...ObserverOption) (Observer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o observerOptions
	for _, opt := range opts {
		opt(&o)
	}

	obs := &observer{}

	if cfg.Metrics.Enabled {
		res, err := resource.New(ctx,
			resource.WithAttributes(
				semconv.ServiceName(cfg.ServiceName),
				semconv.ServiceVersion(cfg.Version),
				semconv.DeploymentEnvironment(cfg.Environment),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create resource: %w", err)
		}

		mp, err := setupMetrics(ctx, cfg, res)
		if err != nil {
			return nil, fmt.Errorf("failed to setup metrics: %w", err)
		}
		obs.meterProvider = mp
		obs.meter = mp.Meter(cfg.ServiceName)
	} else {
		obs.meter = noop.NewMeterProvider().Meter("noop")
	}

	metrics, err := NewMetrics(obs.meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	env := environment.Chain(
		environment.Map{
			environment.KeyAppEnvironment: cfg.Environment,
			environment.KeyAppVersion:     cfg.Version,
		},
		environment.Default(),
	)

	loggerOpts := append([]LoggerOption{
		WithEnvironment(env),
		WithLogMetrics(metrics),
	}, o.logger...)
	obs.logger, err = NewLogger(LoggerConfig{
		ServiceName:   cfg.ServiceName,
		Level:         cfg.Logging.Level,
		SampleRate:    cfg.Logging.SampleRate,
		Backend:       cfg.Logging.Backend,
		ReportTimeout: cfg.ReportTimeout,
		ProjectRoot:   cfg.Logging.ProjectRoot,
	}, loggerOpts...)
	if err != nil {
		obs.shutdownMeter(ctx)
		return nil, err
	}

	tracerCfg := TracerConfig{
		ServiceName:   cfg.ServiceName,
		Backend:       TraceBackendNone,
		ReportTimeout: cfg.ReportTimeout,
	}
	if cfg.Tracing.Enabled {
		tracerCfg.Backend = cfg.Tracing.Backend
		tracerCfg.Exporter = cfg.Tracing.Exporter
		tracerCfg.SampleRate = cfg.Tracing.SampleRate
	}
	tracerOpts := append([]TracerOption{WithTraceMetrics(metrics)}, o.tracer...)
	obs.tracer, err = NewTracer(tracerCfg, tracerOpts...)
	if err != nil {
		obs.shutdownMeter(ctx)
		return nil, err
	}

	return obs, nil
}

func setupMetrics(ctx context.Context, cfg Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	reader, err := exporters.NewMetricsReader(ctx, cfg.Metrics.Exporter)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics reader: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)
	return mp, nil
}

func (o *observer) shutdownMeter(ctx context.Context) {
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
}

func (o *observer) Logger() *Logger {
	return o.logger
}

func (o *observer) Tracer() *Tracer {
	return o.tracer
}

func (o *observer) Meter() metric.Meter {
	return o.meter
}

func (o *observer) Shutdown(ctx context.Context) error {
	// Plain group: one failing shutdown must not cancel the others.
	var g errgroup.Group

	g.Go(func() error {
		if err := o.tracer.Shutdown(ctx); err != nil {
			return fmt.Errorf("tracer shutdown: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := o.logger.Sync(); err != nil {
			return fmt.Errorf("logger sync: %w", err)
		}
		return nil
	})

	if o.meterProvider != nil {
		g.Go(func() error {
			if err := o.meterProvider.Shutdown(ctx); err != nil {
				return fmt.Errorf("meter shutdown: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}
