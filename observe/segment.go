package observe

import (
	"context"
	"maps"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// SegmentKind distinguishes top-level segments from nested subsegments.
type SegmentKind int

const (
	KindSegment SegmentKind = iota
	KindSubsegment
)

func (k SegmentKind) String() string {
	if k == KindSubsegment {
		return "subsegment"
	}
	return "segment"
}

// Segment is a named, timed region reported to a trace backend.
type Segment struct {
	TraceID  trace.TraceID
	SpanID   trace.SpanID
	ParentID trace.SpanID // zero for a root segment

	Name     string
	Service  string
	Kind     SegmentKind
	Start    time.Time
	End      time.Time
	Metadata map[string]any

	// Err is the error the region ended with, if any.
	Err error
	// Panicked is set when the region exited by panicking.
	Panicked bool
}

// Duration returns End-Start, or zero for a segment that has not ended.
func (s Segment) Duration() time.Duration {
	if s.End.IsZero() || s.End.Before(s.Start) {
		return 0
	}
	return s.End.Sub(s.Start)
}

// HasParent reports whether the segment is nested under another.
func (s Segment) HasParent() bool {
	return s.ParentID.IsValid()
}

// SpanContext returns the otel span context identifying the segment.
func (s Segment) SpanContext() trace.SpanContext {
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    s.TraceID,
		SpanID:     s.SpanID,
		TraceFlags: trace.FlagsSampled,
	})
}

func (s Segment) clone() Segment {
	s.Metadata = maps.Clone(s.Metadata)
	return s
}

func newTraceID() trace.TraceID {
	return trace.TraceID(uuid.New())
}

func newSpanID() trace.SpanID {
	u := uuid.New()
	var id trace.SpanID
	copy(id[:], u[:8])
	return id
}

type segmentKey struct{}

func contextWithSegment(ctx context.Context, seg *Segment) context.Context {
	return context.WithValue(ctx, segmentKey{}, seg)
}

func segmentFromContext(ctx context.Context) *Segment {
	seg, _ := ctx.Value(segmentKey{}).(*Segment)
	return seg
}

// SegmentFromContext returns the innermost open segment in ctx.
func SegmentFromContext(ctx context.Context) (Segment, bool) {
	if ctx == nil {
		return Segment{}, false
	}
	seg := segmentFromContext(ctx)
	if seg == nil {
		return Segment{}, false
	}
	return seg.clone(), true
}

// parentFromContext returns the trace and span to nest a new segment under:
// the innermost open segment, else a valid otel span context.
func parentFromContext(ctx context.Context) (trace.TraceID, trace.SpanID, bool) {
	if seg := segmentFromContext(ctx); seg != nil {
		return seg.TraceID, seg.SpanID, true
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.TraceID(), sc.SpanID(), true
	}
	return trace.TraceID{}, trace.SpanID{}, false
}
