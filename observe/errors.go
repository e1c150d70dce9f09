package observe

import (
	"errors"
	"fmt"
)

// Configuration errors.
var (
	// ErrMissingServiceName indicates the service name is empty.
	ErrMissingServiceName = errors.New("observe: service name is required")

	// ErrInvalidSampleRate indicates a sample rate outside [0.0, 1.0].
	ErrInvalidSampleRate = errors.New("observe: sample rate must be between 0.0 and 1.0")

	// ErrInvalidTracingExporter indicates an unknown tracing exporter name.
	ErrInvalidTracingExporter = errors.New("observe: invalid tracing exporter")

	// ErrInvalidMetricsExporter indicates an unknown metrics exporter name.
	ErrInvalidMetricsExporter = errors.New("observe: invalid metrics exporter")

	// ErrInvalidLogLevel indicates an unknown log level.
	ErrInvalidLogLevel = errors.New("observe: invalid log level")

	// ErrBackendUnavailable indicates the requested backend is not linked into
	// the binary. It is always wrapped in a *ConfigurationError.
	ErrBackendUnavailable = errors.New("observe: backend dependency not available")
)

// Backend call errors. These never reach callers of Logger or Tracer methods.
var (
	// ErrReportTimeout is returned when a backend call exceeds the report timeout.
	ErrReportTimeout = errors.New("observe: backend call timed out")

	// ErrBreakerOpen is returned when recent backend failures opened the breaker.
	ErrBreakerOpen = errors.New("observe: backend breaker is open")
)

// Validation constants.
const (
	// MinSampleRate is the minimum valid sample rate.
	MinSampleRate = 0.0
	// MaxSampleRate is the maximum valid sample rate.
	MaxSampleRate = 1.0
)

// ValidTracingExporters lists valid tracing exporter names.
var ValidTracingExporters = []string{"otlp", "otlphttp", "jaeger", "stdout", "none", ""}

// ValidMetricsExporters lists valid metrics exporter names.
var ValidMetricsExporters = []string{"otlp", "otlphttp", "prometheus", "stdout", "none", ""}

// ConfigurationError reports a deployment defect found at construction: a
// backend the configuration asks for is not available in this binary. It is
// the only error the emission layer surfaces to callers.
type ConfigurationError struct {
	// Component is "logging" or "tracing".
	Component string
	// Dependency names the missing backend.
	Dependency string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("observe: %s backend %q dependencies not available", e.Component, e.Dependency)
}

// Unwrap lets errors.Is match ErrBackendUnavailable.
func (e *ConfigurationError) Unwrap() error {
	return ErrBackendUnavailable
}
