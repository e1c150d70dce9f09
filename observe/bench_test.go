package observe

import (
	"context"
	"io"
	"testing"
)

func newBenchLogger(b *testing.B, level string, rate float64) *Logger {
	b.Helper()
	logger, err := NewLogger(
		LoggerConfig{ServiceName: "bench", Level: level, SampleRate: SampleRate(rate)},
		WithLogClient(NewStdoutClient(io.Discard)),
	)
	if err != nil {
		b.Fatalf("NewLogger failed: %v", err)
	}
	return logger
}

func newBenchTracer(b *testing.B) *Tracer {
	b.Helper()
	tr, err := NewTracer(TracerConfig{ServiceName: "bench"}, WithTraceClient(NopTraceClient{}))
	if err != nil {
		b.Fatalf("NewTracer failed: %v", err)
	}
	return tr
}

// BenchmarkLogger_Info measures logging throughput.
func BenchmarkLogger_Info(b *testing.B) {
	logger := newBenchLogger(b, "info", 1.0)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info(ctx, "benchmark message", F("iteration", i))
	}
}

// BenchmarkLogger_Info_MultipleFields measures logging with multiple fields.
func BenchmarkLogger_Info_MultipleFields(b *testing.B) {
	logger := newBenchLogger(b, "info", 1.0)
	ctx := context.Background()
	fields := []Field{
		F("field1", "value1"),
		F("field2", 42),
		F("field3", true),
		F("password", "hunter2"),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info(ctx, "benchmark message", fields...)
	}
}

// BenchmarkLogger_LevelFiltering measures overhead of level filtering.
func BenchmarkLogger_LevelFiltering(b *testing.B) {
	logger := newBenchLogger(b, "error", 1.0)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Debug(ctx, "filtered debug")
		logger.Info(ctx, "filtered info")
		logger.Warning(ctx, "filtered warning")
	}
}

// BenchmarkLogger_SampledOut measures a call dropped by a zero sample rate.
func BenchmarkLogger_SampledOut(b *testing.B) {
	logger := newBenchLogger(b, "info", 0.0)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info(ctx, "sampled out", F("iteration", i))
	}
}

// BenchmarkRedactionPolicy_Sanitize measures field sanitization.
func BenchmarkRedactionPolicy_Sanitize(b *testing.B) {
	policy := DefaultRedactionPolicy()
	fields := map[string]any{
		"user_id":  7,
		"password": "hunter2",
		"nested":   map[string]any{"api_key": "k", "region": "eu"},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = policy.Sanitize(fields)
	}
}

// BenchmarkLocationResolver_Resolve measures caller location lookup.
func BenchmarkLocationResolver_Resolve(b *testing.B) {
	resolver := NewLocationResolver("")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = resolver.Resolve(0)
	}
}

// BenchmarkCaptureHandler measures the wrapper overhead with reports disabled.
func BenchmarkCaptureHandler(b *testing.B) {
	handler := CaptureHandler(newBenchTracer(b), "bench", func(_ context.Context, in int) (int, error) {
		return in, nil
	})
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = handler(ctx, i)
	}
}

// BenchmarkWithSegment measures a nested segment/subsegment pair.
func BenchmarkWithSegment(b *testing.B) {
	tr := newBenchTracer(b)
	ctx := context.Background()
	inner := func(context.Context) error { return nil }

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = WithSegment(ctx, tr, "outer", nil, func(ctx context.Context) error {
			return WithSubsegment(ctx, tr, "inner", inner)
		})
	}
}
