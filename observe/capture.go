package observe

import (
	"context"
	"reflect"
	"runtime"
	"strings"
)

// CaptureHandler wraps fn so that every invocation is reported as a segment
// named name (the function's name when empty). The wrapper returns exactly
// what fn returns, and a panic in fn is reported and then continues
// unchanged. Reporting never affects the outcome.
//
// A nil tracer returns fn itself.
func CaptureHandler[In, Out any](t *Tracer, name string, fn func(context.Context, In) (Out, error)) func(context.Context, In) (Out, error) {
	return wrapCapture(t, name, KindSegment, fn)
}

// CaptureMethod is CaptureHandler for methods called inside a traced
// request: the invocation is reported as a subsegment of the segment in the
// call's context, or as a segment when there is none. Pass a method value:
//
//	get := observe.CaptureMethod(tracer, "", svc.GetUser)
func CaptureMethod[In, Out any](t *Tracer, name string, fn func(context.Context, In) (Out, error)) func(context.Context, In) (Out, error) {
	return wrapCapture(t, name, KindSubsegment, fn)
}

func wrapCapture[In, Out any](t *Tracer, name string, kind SegmentKind, fn func(context.Context, In) (Out, error)) func(context.Context, In) (Out, error) {
	if t == nil || fn == nil {
		return fn
	}
	if name == "" {
		name = funcName(fn)
	}

	return func(ctx context.Context, in In) (out Out, err error) {
		if ctx == nil {
			ctx = context.Background()
		}
		seg := t.start(ctx, name, kind, nil)

		// The panic, if any, is not recovered here; it keeps unwinding after
		// the report.
		panicked := true
		defer func() {
			t.finish(ctx, seg, err, panicked)
		}()

		out, err = fn(contextWithSegment(ctx, seg), in)
		panicked = false
		return out, err
	}
}

// funcName returns the short name of fn, e.g. "(*Service).GetUser".
func funcName(fn any) string {
	name := "anonymous"
	if f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()); f != nil {
		name = f.Name()
	}
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, "-fm")
}
