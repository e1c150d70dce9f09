// Package observe is the emission layer used by serverless and event-driven
// handlers: a structured Logger and a segment Tracer that hand records to a
// telemetry backend without ever failing the caller.
//
// A handler builds one Logger and one Tracer per service at process start,
// either directly (NewLogger, NewTracer) or through NewObserver. Log calls run
// level gate, sampler, record builder and sink in that order; a call that is
// filtered or sampled out does no further work. Sensitive fields are redacted
// before a record leaves the process, and every record carries the caller's
// project-relative file:line location.
//
// Tracing is transparent to control flow. CaptureHandler and CaptureMethod
// wrap functions so that each invocation is reported as a segment, and
// BeginSegment/BeginSubsegment open scoped regions whose End reports exactly
// once. Backend failures are absorbed; errors and panics raised by wrapped
// code pass through unchanged.
//
// Only a missing backend (ConfigurationError) fails construction. A backend
// that cannot be set up degrades to a local fallback channel named
// "observe.gcloud_fallback.<service>".
package observe
