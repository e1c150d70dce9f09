package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewTimeout_Default(t *testing.T) {
	timeout := NewTimeout(TimeoutConfig{})

	if timeout.Config().Timeout != 2*time.Second {
		t.Errorf("Timeout = %v, want 2s", timeout.Config().Timeout)
	}
}

func TestTimeout_ExecuteSuccess(t *testing.T) {
	timeout := NewTimeout(TimeoutConfig{Timeout: time.Second})

	executed := false
	err := timeout.Execute(context.Background(), func(context.Context) error {
		executed = true
		return nil
	})

	if err != nil {
		t.Errorf("Execute() error = %v", err)
	}
	if !executed {
		t.Error("Operation was not executed")
	}
}

func TestTimeout_ExecuteError(t *testing.T) {
	timeout := NewTimeout(TimeoutConfig{Timeout: time.Second})

	testErr := errors.New("test error")
	err := timeout.Execute(context.Background(), func(context.Context) error {
		return testErr
	})

	if err != testErr {
		t.Errorf("Execute() error = %v, want %v", err, testErr)
	}
}

func TestTimeout_ExecuteTimeout(t *testing.T) {
	timeout := NewTimeout(TimeoutConfig{Timeout: 10 * time.Millisecond})

	err := timeout.Execute(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	if err != ErrTimeout {
		t.Errorf("Execute() error = %v, want ErrTimeout", err)
	}
}

func TestTimeout_DetachedFromCallerCancellation(t *testing.T) {
	timeout := NewTimeout(TimeoutConfig{Timeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := timeout.Execute(ctx, func(ctx context.Context) error {
		return ctx.Err()
	})

	if err != nil {
		t.Errorf("Execute() saw caller cancellation: %v", err)
	}
}

func TestTimeout_KeepsContextValues(t *testing.T) {
	type key struct{}
	timeout := NewTimeout(TimeoutConfig{Timeout: time.Second})

	ctx := context.WithValue(context.Background(), key{}, "request-1")
	var got any
	_ = timeout.Execute(ctx, func(ctx context.Context) error {
		got = ctx.Value(key{})
		return nil
	})

	if got != "request-1" {
		t.Errorf("context value = %v, want request-1", got)
	}
}
