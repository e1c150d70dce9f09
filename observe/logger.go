package observe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jonwraymond/spartanobs/environment"
)

// FallbackNamespace prefixes every fallback channel name.
const FallbackNamespace = "observe"

// FallbackName returns the fallback channel name for a service:
// "observe.gcloud_fallback.<service>".
func FallbackName(service string) string {
	return FallbackNamespace + ".gcloud_fallback." + service
}

// LoggerConfig configures a Logger. It is fixed at construction.
type LoggerConfig struct {
	// ServiceName identifies the service on every record (required).
	ServiceName string

	// Level is the minimum severity emitted. Default: INFO.
	Level string

	// SampleRate is the fraction of calls emitted, in [0.0, 1.0]. Nil resolves
	// LOG_SAMPLE_RATE from the environment, falling back to 1.0. An explicit
	// 0.0 means never emit.
	SampleRate *float64

	// Backend names a registered log backend. Default: "stdout".
	Backend string

	// ReportTimeout bounds each backend call. Default: 2 seconds.
	ReportTimeout time.Duration

	// ProjectRoot anchors record locations. Default: working directory.
	ProjectRoot string

	// LoggerProvider receives records when Backend is "otel". The logger
	// owns this reference; the global provider is never consulted. Without
	// one the otel backend fails setup and the fallback channel is used.
	LoggerProvider log.LoggerProvider
}

// SampleRate returns a pointer to rate, for LoggerConfig.SampleRate.
func SampleRate(rate float64) *float64 {
	return &rate
}

// LoggerOption customizes NewLogger.
type LoggerOption func(*loggerOptions)

type loggerOptions struct {
	env          environment.Lookup
	client       LogClient
	factory      LogBackendFactory
	console      io.Writer
	fallbackCore zapcore.Core
	rand         RandSource
	clock        func() time.Time
	metrics      Metrics
	policy       *RedactionPolicy
	provider     log.LoggerProvider
}

// WithLoggerProvider sets LoggerConfig.LoggerProvider.
func WithLoggerProvider(provider log.LoggerProvider) LoggerOption {
	return func(o *loggerOptions) { o.provider = provider }
}

// WithEnvironment sets the environment collaborator.
func WithEnvironment(env environment.Lookup) LoggerOption {
	return func(o *loggerOptions) { o.env = env }
}

// WithLogClient injects a ready backend client, bypassing the registry.
func WithLogClient(client LogClient) LoggerOption {
	return func(o *loggerOptions) { o.client = client }
}

// WithLogBackendFactory builds the backend client with factory instead of the
// registered one.
func WithLogBackendFactory(factory LogBackendFactory) LoggerOption {
	return func(o *loggerOptions) { o.factory = factory }
}

// WithConsole sets the process-level channel used to announce setup
// failures. Default: stderr.
func WithConsole(w io.Writer) LoggerOption {
	return func(o *loggerOptions) { o.console = w }
}

// WithFallbackCore sets the core behind the fallback channel. Default: JSON
// on stderr.
func WithFallbackCore(core zapcore.Core) LoggerOption {
	return func(o *loggerOptions) { o.fallbackCore = core }
}

// WithRandSource sets the sampler's random source.
func WithRandSource(src RandSource) LoggerOption {
	return func(o *loggerOptions) { o.rand = src }
}

// WithClock sets the record timestamp clock.
func WithClock(now func() time.Time) LoggerOption {
	return func(o *loggerOptions) { o.clock = now }
}

// WithLogMetrics sets the metrics sink.
func WithLogMetrics(m Metrics) LoggerOption {
	return func(o *loggerOptions) { o.metrics = m }
}

// WithRedactionPolicy replaces the default redaction policy.
func WithRedactionPolicy(p RedactionPolicy) LoggerOption {
	return func(o *loggerOptions) { o.policy = &p }
}

// Logger is the structured logging facade.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Errors: logging methods never panic and never return errors; backend
// failures go to the fallback channel.
type Logger struct {
	service  string
	level    Severity
	rate     float64
	backend  string
	sampler  *Sampler
	builder  *RecordBuilder
	client   LogClient
	fallback *zap.Logger
	guard    *guard
	metrics  Metrics
}

// NewLogger creates a Logger. It fails only on invalid configuration or when
// the configured backend is not available (*ConfigurationError). A backend
// that fails to set up is announced on the console and replaced by the
// fallback channel.
func NewLogger(cfg LoggerConfig, opts ...LoggerOption) (*Logger, error) {
	o := loggerOptions{console: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.ServiceName == "" {
		return nil, ErrMissingServiceName
	}
	if o.provider != nil {
		cfg.LoggerProvider = o.provider
	}

	level := SeverityInfo
	if cfg.Level != "" {
		parsed, ok := ParseSeverity(cfg.Level)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidLogLevel, cfg.Level)
		}
		level = parsed
	}

	if o.env == nil {
		o.env = environment.Default()
	}

	rate, err := resolveSampleRate(cfg.SampleRate, o.env)
	if err != nil {
		return nil, err
	}

	if cfg.Backend == "" {
		cfg.Backend = BackendStdout
	}

	client := o.client
	if client == nil {
		factory := o.factory
		if factory == nil {
			f, ok := lookupLogBackend(cfg.Backend)
			if !ok {
				return nil, &ConfigurationError{Component: "logging", Dependency: cfg.Backend}
			}
			factory = f
		}

		client, err = setupLogClient(factory, cfg)
		if err != nil {
			fmt.Fprintf(o.console, "Warning: Failed to setup %s logging: %v\n", cfg.Backend, err)
			fmt.Fprintln(o.console, "Falling back to standard logging...")
			client = nil
		}
	}

	fallbackCore := o.fallbackCore
	if fallbackCore == nil {
		fallbackCore = zapcore.NewCore(
			zapcore.NewJSONEncoder(recordEncoderConfig()),
			zapcore.Lock(zapcore.AddSync(os.Stderr)),
			zapcore.DebugLevel,
		)
	}

	policy := DefaultRedactionPolicy()
	if o.policy != nil {
		policy = *o.policy
	}

	metrics := o.metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &Logger{
		service: cfg.ServiceName,
		level:   level,
		rate:    rate,
		backend: cfg.Backend,
		sampler: NewSampler(o.rand),
		builder: NewRecordBuilder(
			cfg.ServiceName,
			o.env.Get(environment.KeyAppEnvironment, ""),
			o.env.Get(environment.KeyAppVersion, ""),
			policy,
			NewLocationResolver(cfg.ProjectRoot),
			o.clock,
		),
		client:   client,
		fallback: zap.New(fallbackCore).Named(FallbackName(cfg.ServiceName)),
		guard:    newGuard(cfg.ReportTimeout),
		metrics:  metrics,
	}, nil
}

// setupLogClient runs factory, converting a panic into a setup error.
func setupLogClient(factory LogBackendFactory, cfg LoggerConfig) (client LogClient, err error) {
	defer func() {
		if r := recover(); r != nil {
			client, err = nil, fmt.Errorf("backend setup panic: %v", r)
		}
	}()
	client, err = factory(context.Background(), cfg)
	if err == nil && client == nil {
		err = errors.New("backend returned no client")
	}
	return client, err
}

// resolveSampleRate applies the explicit rate, else LOG_SAMPLE_RATE, else 1.0.
// Unparseable or out-of-range environment values fall back to 1.0.
func resolveSampleRate(explicit *float64, env environment.Lookup) (float64, error) {
	if explicit != nil {
		r := *explicit
		if r < MinSampleRate || r > MaxSampleRate || r != r {
			return 0, fmt.Errorf("%w, got: %f", ErrInvalidSampleRate, r)
		}
		return r, nil
	}

	raw := env.Get(environment.KeyLogSampleRate, "")
	if raw == "" {
		return MaxSampleRate, nil
	}
	r, err := strconv.ParseFloat(raw, 64)
	if err != nil || r < MinSampleRate || r > MaxSampleRate {
		return MaxSampleRate, nil
	}
	return r, nil
}

// ServiceName returns the service identity.
func (l *Logger) ServiceName() string { return l.service }

// Level returns the minimum emitted severity.
func (l *Logger) Level() Severity { return l.level }

// SampleRateValue returns the resolved sample rate.
func (l *Logger) SampleRateValue() float64 { return l.rate }

// Fallback reports whether the logger writes to its fallback channel because
// backend setup failed.
func (l *Logger) Fallback() bool { return l.client == nil }

// FallbackName returns the fallback channel name.
func (l *Logger) FallbackName() string { return l.fallback.Name() }

// Debug logs at DEBUG severity.
func (l *Logger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, SeverityDebug, msg, fields)
}

// Info logs at INFO severity.
func (l *Logger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, SeverityInfo, msg, fields)
}

// Warning logs at WARNING severity.
func (l *Logger) Warning(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, SeverityWarning, msg, fields)
}

// Error logs at ERROR severity. Use Exception to attach an error value.
func (l *Logger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, SeverityError, msg, fields)
}

// Critical logs at CRITICAL severity.
func (l *Logger) Critical(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, SeverityCritical, msg, fields)
}

// Exception logs at ERROR with the details of err attached. It neither
// panics nor returns err.
func (l *Logger) Exception(ctx context.Context, msg string, err error, fields ...Field) {
	l.log(ctx, SeverityError, msg, append(errorFields(err), fields...))
}

func errorFields(err error) []Field {
	if err == nil {
		return nil
	}
	fields := []Field{
		{Key: "error", Value: err.Error()},
		{Key: "error_type", Value: fmt.Sprintf("%T", err)},
	}

	var chain []string
	for e := errors.Unwrap(err); e != nil; e = errors.Unwrap(e) {
		chain = append(chain, e.Error())
	}
	if len(chain) > 0 {
		fields = append(fields, Field{Key: "error_chain", Value: chain})
	}
	return fields
}

// log is the single path behind every logging method; the frame depth
// between the public method and build is fixed at two.
func (l *Logger) log(ctx context.Context, sev Severity, msg string, fields []Field) {
	if ctx == nil {
		ctx = context.Background()
	}
	if sev < l.level {
		l.metrics.RecordLog(ctx, l.service, sev, OutcomeFiltered)
		return
	}
	if !l.sampler.ShouldSample(l.rate) {
		l.metrics.RecordLog(ctx, l.service, sev, OutcomeSampledOut)
		return
	}

	rec := l.builder.build(ctx, sev, msg, fields, 2)
	l.write(ctx, rec)
}

func (l *Logger) write(ctx context.Context, rec Record) {
	defer func() {
		_ = recover()
	}()

	if l.client == nil {
		l.writeFallback(rec)
		l.metrics.RecordLog(ctx, l.service, rec.Severity, OutcomeFallback)
		return
	}

	err := l.guard.do(ctx, func(ctx context.Context) error {
		return l.client.Submit(ctx, rec)
	})
	if err != nil {
		l.writeFallback(rec, zap.NamedError("submit_error", err))
		l.metrics.RecordLog(ctx, l.service, rec.Severity, OutcomeFailed)
		return
	}
	l.metrics.RecordLog(ctx, l.service, rec.Severity, OutcomeEmitted)
}

// writeFallback writes rec to the fallback channel, keeping its timestamp.
func (l *Logger) writeFallback(rec Record, extra ...zapcore.Field) {
	core := l.fallback.Core()
	ent := zapcore.Entry{
		LoggerName: l.fallback.Name(),
		Level:      rec.Severity.zapLevel(),
		Time:       rec.Timestamp,
		Message:    rec.Message,
	}
	if !core.Enabled(ent.Level) {
		return
	}
	_ = core.Write(ent, append(recordFields(rec), extra...))
}

// Sync flushes the backend client and the fallback channel.
func (l *Logger) Sync() error {
	var errs []error
	if l.client != nil {
		if err := l.client.Sync(); err != nil && !isStdoutSyncError(err) {
			errs = append(errs, fmt.Errorf("backend sync: %w", err))
		}
	}
	if err := l.fallback.Sync(); err != nil && !isStdoutSyncError(err) {
		errs = append(errs, fmt.Errorf("fallback sync: %w", err))
	}
	return errors.Join(errs...)
}

// isStdoutSyncError reports the harmless EINVAL/ENOTTY returned when syncing
// stdout or stderr on Linux.
func isStdoutSyncError(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EINVAL || errno == syscall.ENOTTY
	}
	return false
}
