package observe

import (
	"context"
	"errors"
	"io"
	"maps"
	"os"
	"slices"
	"sync"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Built-in log backend names.
const (
	BackendStdout = "stdout"
	BackendOTel   = "otel"
)

// LogClient is a logging backend handle.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: Submit reports rejection or I/O failure; the Logger absorbs it.
type LogClient interface {
	Submit(ctx context.Context, rec Record) error
	Sync() error
}

// LogBackendFactory builds a LogClient for a logger configuration. An error
// is a setup failure and sends the Logger to its fallback channel.
type LogBackendFactory func(ctx context.Context, cfg LoggerConfig) (LogClient, error)

var logBackends = struct {
	mu        sync.RWMutex
	factories map[string]LogBackendFactory
}{factories: make(map[string]LogBackendFactory)}

// RegisterLogBackend makes a backend available to NewLogger under name.
// Registering an existing name replaces it.
func RegisterLogBackend(name string, factory LogBackendFactory) {
	if name == "" || factory == nil {
		return
	}
	logBackends.mu.Lock()
	defer logBackends.mu.Unlock()
	logBackends.factories[name] = factory
}

func lookupLogBackend(name string) (LogBackendFactory, bool) {
	logBackends.mu.RLock()
	defer logBackends.mu.RUnlock()
	f, ok := logBackends.factories[name]
	return f, ok
}

func init() {
	RegisterLogBackend(BackendStdout, func(context.Context, LoggerConfig) (LogClient, error) {
		return NewStdoutClient(os.Stdout), nil
	})
	RegisterLogBackend(BackendOTel, func(_ context.Context, cfg LoggerConfig) (LogClient, error) {
		if cfg.LoggerProvider == nil {
			return nil, errors.New("no LoggerProvider configured")
		}
		return NewOTelClient(cfg.ServiceName, cfg.LoggerProvider), nil
	})
}

// ZapClient submits records to a zap core.
type ZapClient struct {
	core zapcore.Core
}

// NewZapClient wraps core as a LogClient.
func NewZapClient(core zapcore.Core) *ZapClient {
	return &ZapClient{core: core}
}

// NewStdoutClient writes Cloud Logging structured JSON lines to w, which is
// what serverless runtimes ingest from stdout.
func NewStdoutClient(w io.Writer) *ZapClient {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(recordEncoderConfig()),
		zapcore.Lock(zapcore.AddSync(w)),
		zapcore.DebugLevel,
	)
	return NewZapClient(core)
}

// NewOTelClient bridges records into an OpenTelemetry LoggerProvider.
func NewOTelClient(name string, provider log.LoggerProvider) *ZapClient {
	return NewZapClient(otelzap.NewCore(name, otelzap.WithLoggerProvider(provider)))
}

// Submit writes rec through the core. Records below the core's level are
// dropped without error.
func (c *ZapClient) Submit(_ context.Context, rec Record) error {
	ent := zapcore.Entry{
		Level:   rec.Severity.zapLevel(),
		Time:    rec.Timestamp,
		Message: rec.Message,
	}
	if !c.core.Enabled(ent.Level) {
		return nil
	}
	return c.core.Write(ent, recordFields(rec))
}

// Sync flushes the core.
func (c *ZapClient) Sync() error {
	return c.core.Sync()
}

// recordEncoderConfig names keys the way Cloud Logging expects them.
func recordEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = KeyTimestamp
	cfg.LevelKey = KeySeverity
	cfg.MessageKey = KeyMessage
	cfg.CallerKey = zapcore.OmitKey
	cfg.StacktraceKey = zapcore.OmitKey
	cfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.EncodeLevel = severityLevelEncoder
	return cfg
}

func severityLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch {
	case l <= zapcore.DebugLevel:
		enc.AppendString(SeverityDebug.String())
	case l == zapcore.InfoLevel:
		enc.AppendString(SeverityInfo.String())
	case l == zapcore.WarnLevel:
		enc.AppendString(SeverityWarning.String())
	case l == zapcore.ErrorLevel:
		enc.AppendString(SeverityError.String())
	default:
		enc.AppendString(SeverityCritical.String())
	}
}

// recordFields renders everything the entry itself does not carry. Open
// fields are emitted in key order; reserved keys already encoded by the entry
// are skipped.
func recordFields(rec Record) []zapcore.Field {
	fields := make([]zapcore.Field, 0, len(rec.Fields)+4)
	fields = append(fields,
		zap.String(KeyService, rec.Service),
		zap.String(KeyEnvironment, rec.Environment),
		zap.String(KeyVersion, rec.Version),
		zap.String(KeyLocation, rec.Location),
	)
	for _, k := range slices.Sorted(maps.Keys(rec.Fields)) {
		switch k {
		case KeySeverity, KeyMessage, KeyTimestamp:
			continue
		}
		fields = append(fields, zap.Any(k, rec.Fields[k]))
	}
	return fields
}
