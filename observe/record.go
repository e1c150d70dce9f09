package observe

import (
	"context"
	"fmt"
	"time"
)

// Reserved record keys. A field with one of these keys overrides the
// corresponding built-in value.
const (
	KeySeverity    = "severity"
	KeyService     = "service"
	KeyMessage     = "message"
	KeyEnvironment = "environment"
	KeyVersion     = "version"
	KeyTimestamp   = "timestamp"
	KeyLocation    = "location"
)

// Field represents a structured log field.
type Field struct {
	Key   string
	Value any
}

// F is shorthand for Field{Key: key, Value: value}.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Record is a canonical log record.
type Record struct {
	Severity    Severity
	Service     string
	Message     string
	Environment string
	Version     string
	Timestamp   time.Time
	Location    string

	// Fields holds the sanitized open field set.
	Fields map[string]any
}

// Map flattens the record into one map. Open fields win over built-ins that
// could not be overridden in typed form.
func (r Record) Map() map[string]any {
	m := make(map[string]any, len(r.Fields)+7)
	m[KeySeverity] = r.Severity.String()
	m[KeyService] = r.Service
	m[KeyMessage] = r.Message
	m[KeyEnvironment] = r.Environment
	m[KeyVersion] = r.Version
	m[KeyTimestamp] = r.Timestamp.UTC().Format(time.RFC3339Nano)
	m[KeyLocation] = r.Location
	for k, v := range r.Fields {
		m[k] = v
	}
	return m
}

// RecordBuilder assembles records for one service identity.
type RecordBuilder struct {
	service     string
	environment string
	version     string
	policy      RedactionPolicy
	location    *LocationResolver
	now         func() time.Time
}

// NewRecordBuilder creates a builder. A nil resolver uses the working
// directory as project root; a nil clock uses time.Now.
func NewRecordBuilder(service, environment, version string, policy RedactionPolicy, location *LocationResolver, now func() time.Time) *RecordBuilder {
	if location == nil {
		location = NewLocationResolver("")
	}
	if now == nil {
		now = time.Now
	}
	return &RecordBuilder{
		service:     service,
		environment: environment,
		version:     version,
		policy:      policy,
		location:    location,
		now:         now,
	}
}

// Build assembles a record whose location is the caller of Build.
func (b *RecordBuilder) Build(ctx context.Context, sev Severity, msg string, fields ...Field) Record {
	return b.build(ctx, sev, msg, fields, 1)
}

// build resolves the location skip frames above its caller.
func (b *RecordBuilder) build(ctx context.Context, sev Severity, msg string, fields []Field, skip int) Record {
	rec := Record{
		Severity:    sev,
		Service:     b.service,
		Message:     msg,
		Environment: b.environment,
		Version:     b.version,
		Timestamp:   b.now().UTC(),
		Location:    b.location.Resolve(skip + 1),
	}

	extra := make(map[string]any, len(fields)+2)
	if ctx != nil {
		if seg := segmentFromContext(ctx); seg != nil {
			extra["trace_id"] = seg.TraceID.String()
			extra["segment_id"] = seg.SpanID.String()
		}
	}
	for _, f := range fields {
		extra[f.Key] = f.Value
	}

	rec.Fields = b.policy.Sanitize(extra)
	rec.applyOverrides()
	return rec
}

// applyOverrides moves reserved keys from Fields onto the typed built-ins.
// Values that cannot be converted stay in Fields, where Map still lets them
// win.
func (r *Record) applyOverrides() {
	for _, key := range []string{KeySeverity, KeyService, KeyMessage, KeyEnvironment, KeyVersion, KeyTimestamp, KeyLocation} {
		v, ok := r.Fields[key]
		if !ok {
			continue
		}
		if r.override(key, v) {
			delete(r.Fields, key)
		}
	}
}

func (r *Record) override(key string, v any) bool {
	switch key {
	case KeySeverity:
		switch sv := v.(type) {
		case Severity:
			r.Severity = sv
			return true
		case string:
			if parsed, ok := ParseSeverity(sv); ok {
				r.Severity = parsed
				return true
			}
		}
		return false
	case KeyTimestamp:
		switch tv := v.(type) {
		case time.Time:
			r.Timestamp = tv
			return true
		case string:
			if parsed, err := time.Parse(time.RFC3339Nano, tv); err == nil {
				r.Timestamp = parsed
				return true
			}
		}
		return false
	}

	s := fmt.Sprint(v)
	switch key {
	case KeyService:
		r.Service = s
	case KeyMessage:
		r.Message = s
	case KeyEnvironment:
		r.Environment = s
	case KeyVersion:
		r.Version = s
	case KeyLocation:
		r.Location = s
	}
	return true
}
