package observe

import (
	"context"
	"os"
	"runtime"
	"strconv"
	"testing"
	"time"
)

var fixedTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestBuilder(t *testing.T) *RecordBuilder {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	return NewRecordBuilder(
		"test-service", "test", "1.0.0",
		DefaultRedactionPolicy(),
		NewLocationResolver(wd),
		func() time.Time { return fixedTime },
	)
}

func TestRecordBuilder_Build(t *testing.T) {
	b := newTestBuilder(t)

	rec := b.Build(context.Background(), SeverityInfo, "Test message", F("user_id", 123))

	if rec.Severity.String() != "INFO" {
		t.Errorf("severity = %q, want INFO", rec.Severity)
	}
	if rec.Service != "test-service" {
		t.Errorf("service = %q, want test-service", rec.Service)
	}
	if rec.Message != "Test message" {
		t.Errorf("message = %q, want %q", rec.Message, "Test message")
	}
	if rec.Environment != "test" {
		t.Errorf("environment = %q, want test", rec.Environment)
	}
	if rec.Version != "1.0.0" {
		t.Errorf("version = %q, want 1.0.0", rec.Version)
	}
	if rec.Fields["user_id"] != 123 {
		t.Errorf("user_id = %v, want 123", rec.Fields["user_id"])
	}
	if rec.Timestamp.IsZero() {
		t.Error("timestamp missing")
	}
	if rec.Location == "" {
		t.Error("location missing")
	}

	m := rec.Map()
	for _, key := range []string{KeySeverity, KeyService, KeyMessage, KeyEnvironment, KeyVersion, KeyTimestamp, KeyLocation} {
		if v, ok := m[key]; !ok || v == "" {
			t.Errorf("Map()[%q] missing or empty", key)
		}
	}
	if m[KeyTimestamp] != "2024-03-01T12:00:00Z" {
		t.Errorf("Map()[timestamp] = %v", m[KeyTimestamp])
	}
}

func TestRecordBuilder_LocationIsCaller(t *testing.T) {
	b := newTestBuilder(t)

	_, _, line, _ := runtime.Caller(0)
	rec := b.Build(context.Background(), SeverityInfo, "where")

	want := "record_test.go:" + strconv.Itoa(line+1)
	if rec.Location != want {
		t.Errorf("location = %q, want %q", rec.Location, want)
	}
}

func TestRecordBuilder_FieldsAreRedacted(t *testing.T) {
	b := newTestBuilder(t)

	rec := b.Build(context.Background(), SeverityInfo, "login",
		F("username", "alice"),
		F("email", "alice@example.com"),
		F("password", "hunter2"),
		F("api_key", "k-123"),
	)

	if rec.Fields["password"] != RedactedMarker || rec.Fields["api_key"] != RedactedMarker {
		t.Errorf("sensitive fields not redacted: %v", rec.Fields)
	}
	if rec.Fields["username"] != "alice" || rec.Fields["email"] != "alice@example.com" {
		t.Errorf("identity fields changed: %v", rec.Fields)
	}
}

func TestRecordBuilder_ReservedKeysOverride(t *testing.T) {
	b := newTestBuilder(t)
	ts := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)

	rec := b.Build(context.Background(), SeverityInfo, "original",
		F("severity", "critical"),
		F("service", "override-service"),
		F("message", "overridden"),
		F("environment", "debug"),
		F("version", 2),
		F("timestamp", ts),
		F("location", "fixed.go:1"),
	)

	if rec.Severity != SeverityCritical {
		t.Errorf("severity = %v, want CRITICAL", rec.Severity)
	}
	if rec.Service != "override-service" || rec.Message != "overridden" {
		t.Errorf("service/message not overridden: %q %q", rec.Service, rec.Message)
	}
	if rec.Environment != "debug" || rec.Version != "2" {
		t.Errorf("environment/version not overridden: %q %q", rec.Environment, rec.Version)
	}
	if !rec.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", rec.Timestamp, ts)
	}
	if rec.Location != "fixed.go:1" {
		t.Errorf("location = %q", rec.Location)
	}
	if len(rec.Fields) != 0 {
		t.Errorf("reserved keys should leave Fields, got %v", rec.Fields)
	}
}

func TestRecordBuilder_UnconvertibleOverrideStaysInFields(t *testing.T) {
	b := newTestBuilder(t)

	rec := b.Build(context.Background(), SeverityWarning, "msg", F("severity", "LOUD"))

	if rec.Severity != SeverityWarning {
		t.Errorf("severity = %v, want WARNING", rec.Severity)
	}
	if rec.Map()[KeySeverity] != "LOUD" {
		t.Errorf("explicit value should win in Map(), got %v", rec.Map()[KeySeverity])
	}
}

func TestRecordBuilder_LaterFieldWins(t *testing.T) {
	b := newTestBuilder(t)

	rec := b.Build(context.Background(), SeverityInfo, "msg", F("k", 1), F("k", 2))
	if rec.Fields["k"] != 2 {
		t.Errorf("k = %v, want 2", rec.Fields["k"])
	}
}

func TestRecordBuilder_SegmentCorrelation(t *testing.T) {
	b := newTestBuilder(t)
	seg := &Segment{TraceID: newTraceID(), SpanID: newSpanID(), Name: "req"}
	ctx := contextWithSegment(context.Background(), seg)

	rec := b.Build(ctx, SeverityInfo, "inside")

	if rec.Fields["trace_id"] != seg.TraceID.String() {
		t.Errorf("trace_id = %v, want %s", rec.Fields["trace_id"], seg.TraceID)
	}
	if rec.Fields["segment_id"] != seg.SpanID.String() {
		t.Errorf("segment_id = %v, want %s", rec.Fields["segment_id"], seg.SpanID)
	}

	plain := b.Build(context.Background(), SeverityInfo, "outside")
	if _, ok := plain.Fields["trace_id"]; ok {
		t.Error("trace_id set without a segment")
	}
}

func TestRecordBuilder_NilContextAndDefaults(t *testing.T) {
	b := NewRecordBuilder("svc", "", "", RedactionPolicy{}, nil, nil)

	rec := b.Build(nil, SeverityDebug, "no context")
	if rec.Timestamp.IsZero() || rec.Location == "" {
		t.Errorf("expected timestamp and location, got %+v", rec)
	}
	if rec.Fields == nil {
		t.Error("Fields should be non-nil")
	}
}
