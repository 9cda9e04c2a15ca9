package governor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-gateway/core"
)

func TestWindowAdmitsUpToLimit(t *testing.T) {
	current := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	window := NewWindow("caller", core.WindowConfig{Limit: 3, Interval: time.Minute}, func() time.Time { return current })

	for i := 0; i < 3; i++ {
		if err := window.Wait(context.Background(), time.Second); err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
	}
	if got := window.Consumed(); got != 3 {
		t.Fatalf("consumed = %d, want 3", got)
	}
}

func TestWindowThrottlesWhenWaitExceedsBound(t *testing.T) {
	current := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	window := NewWindow("caller", core.WindowConfig{Limit: 1, Interval: time.Minute}, func() time.Time { return current })

	if err := window.Wait(context.Background(), time.Second); err != nil {
		t.Fatalf("first admit: %v", err)
	}

	err := window.Wait(context.Background(), time.Second)
	if !errors.Is(err, core.ErrRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	var throttled ThrottledError
	if !errors.As(err, &throttled) {
		t.Fatalf("expected ThrottledError, got %T", err)
	}
	if throttled.RetryAfter <= 0 {
		t.Fatalf("expected retry hint, got %s", throttled.RetryAfter)
	}
}

func TestWindowResetsAtBoundary(t *testing.T) {
	current := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	window := NewWindow("caller", core.WindowConfig{Limit: 1, Interval: time.Minute}, func() time.Time { return current })

	if err := window.Wait(context.Background(), time.Second); err != nil {
		t.Fatalf("first admit: %v", err)
	}
	current = current.Add(time.Minute)
	if err := window.Wait(context.Background(), time.Second); err != nil {
		t.Fatalf("admit after rollover: %v", err)
	}
	if got := window.Consumed(); got != 1 {
		t.Fatalf("consumed after rollover = %d, want 1", got)
	}
}

func TestWindowWaitsForRollover(t *testing.T) {
	window := NewWindow("caller", core.WindowConfig{Limit: 1, Interval: 30 * time.Millisecond}, time.Now)

	if err := window.Wait(context.Background(), time.Second); err != nil {
		t.Fatalf("first admit: %v", err)
	}
	started := time.Now()
	if err := window.Wait(context.Background(), time.Second); err != nil {
		t.Fatalf("second admit: %v", err)
	}
	if waited := time.Since(started); waited < 10*time.Millisecond {
		t.Fatalf("expected waiter to block until rollover, waited %s", waited)
	}
}

func TestWindowCancelledWaiterDoesNotConsume(t *testing.T) {
	window := NewWindow("caller", core.WindowConfig{Limit: 1, Interval: time.Hour}, time.Now)

	if err := window.Wait(context.Background(), time.Second); err != nil {
		t.Fatalf("first admit: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := window.Wait(ctx, 0); !errors.Is(err, context.Canceled) && !errors.Is(err, core.ErrRateLimited) {
		t.Fatalf("expected cancellation or throttle, got %v", err)
	}
	if got := window.Consumed(); got != 1 {
		t.Fatalf("consumed = %d, want 1", got)
	}
}

func TestDualWindowRequiresBothAdmissions(t *testing.T) {
	current := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }
	dual := NewDualWindow(core.GovernorConfig{
		CallerWindow:  core.WindowConfig{Limit: 5, Interval: time.Minute},
		AccountWindow: core.WindowConfig{Limit: 2, Interval: time.Minute},
	}, now)

	for i := 0; i < 2; i++ {
		if err := dual.Wait(context.Background(), time.Second); err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
	}
	err := dual.Wait(context.Background(), time.Second)
	if !errors.Is(err, core.ErrRateLimited) {
		t.Fatalf("expected account window throttle, got %v", err)
	}
	// The rejected call reserved a caller slot but never inflated the
	// account window.
	if got := dual.Account.Consumed(); got != 2 {
		t.Fatalf("account consumed = %d, want 2", got)
	}
}

func TestPermitPoolBoundsConcurrency(t *testing.T) {
	pool := NewPermitPool(2)

	releaseA, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	_, err = pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire b: %v", err)
	}
	if got := pool.InUse(); got != 2 {
		t.Fatalf("in use = %d, want 2", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := pool.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}

	releaseA()
	releaseA()
	if got := pool.InUse(); got != 1 {
		t.Fatalf("release must be idempotent, in use = %d, want 1", got)
	}
}
