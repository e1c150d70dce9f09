package observe

import (
	"context"
	"sync"
)

// Scope is an open segment. End closes and reports it; only the first call
// has any effect.
//
// Contract:
// - Concurrency: End is safe to call from multiple goroutines.
// - Errors: End never panics and never returns an error.
type Scope struct {
	tracer *Tracer
	ctx    context.Context
	seg    *Segment
	once   sync.Once

	mu   sync.Mutex
	done *Segment
}

// BeginSegment opens a segment. It nests under the segment or otel span in
// ctx when there is one. The returned context carries the segment; pass it to
// the code inside the region and close the scope on every exit path:
//
//	ctx, scope := tracer.BeginSegment(ctx, "import", map[string]any{"batch": n})
//	defer func() { scope.End(err) }()
func (t *Tracer) BeginSegment(ctx context.Context, name string, metadata map[string]any) (context.Context, *Scope) {
	return t.begin(ctx, name, KindSegment, metadata)
}

// BeginSubsegment opens a subsegment of the segment in ctx.
func (t *Tracer) BeginSubsegment(ctx context.Context, name string) (context.Context, *Scope) {
	return t.begin(ctx, name, KindSubsegment, nil)
}

func (t *Tracer) begin(ctx context.Context, name string, kind SegmentKind, metadata map[string]any) (context.Context, *Scope) {
	if ctx == nil {
		ctx = context.Background()
	}
	if t == nil {
		return ctx, &Scope{}
	}
	seg := t.start(ctx, name, kind, metadata)
	return contextWithSegment(ctx, seg), &Scope{tracer: t, ctx: ctx, seg: seg}
}

// End closes the segment with err and reports it.
func (s *Scope) End(err error) {
	s.end(err, false)
}

func (s *Scope) end(err error, panicked bool) {
	if s == nil || s.tracer == nil {
		return
	}
	s.once.Do(func() {
		done := s.tracer.finish(s.ctx, s.seg, err, panicked)
		s.mu.Lock()
		s.done = &done
		s.mu.Unlock()
	})
}

// Segment returns a snapshot of the scope's segment, including its end once
// End has run.
func (s *Scope) Segment() Segment {
	if s == nil || s.seg == nil {
		return Segment{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return s.done.clone()
	}
	return s.seg.clone()
}

// WithSegment runs fn inside a segment and returns fn's error unchanged. A
// panic in fn closes the segment and keeps unwinding.
func WithSegment(ctx context.Context, t *Tracer, name string, metadata map[string]any, fn func(context.Context) error) (err error) {
	ctx, scope := t.BeginSegment(ctx, name, metadata)

	panicked := true
	defer func() {
		scope.end(err, panicked)
	}()

	err = fn(ctx)
	panicked = false
	return err
}

// WithSubsegment is WithSegment for a subsegment.
func WithSubsegment(ctx context.Context, t *Tracer, name string, fn func(context.Context) error) (err error) {
	ctx, scope := t.BeginSubsegment(ctx, name)

	panicked := true
	defer func() {
		scope.end(err, panicked)
	}()

	err = fn(ctx)
	panicked = false
	return err
}
