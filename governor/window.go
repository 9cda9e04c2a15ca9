package governor

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-gateway/core"
)

// ThrottledError reports that a call could not be admitted within the
// configured wait bound, with a hint for when to retry.
type ThrottledError struct {
	Scope      string
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf("governor: %s window throttled for %s", strings.TrimSpace(e.Scope), e.RetryAfter)
}

func (e ThrottledError) Unwrap() error {
	return core.ErrRateLimited
}

func (e ThrottledError) ToGatewayError() *goerrors.Error {
	metadata := map[string]any{"scope": strings.TrimSpace(e.Scope)}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.GatewayErrorRateLimited).
		WithMetadata(metadata)
}

// Window is a fixed-interval admission counter. Consumption happens only on
// admit, so a waiter that gives up never occupies a slot, and a boundary
// reset self-heals on the next call.
type Window struct {
	scope    string
	limit    int
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	start    time.Time
	consumed int
}

func NewWindow(scope string, cfg core.WindowConfig, now func() time.Time) *Window {
	if now == nil {
		now = time.Now
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = 1
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	return &Window{
		scope:    strings.TrimSpace(scope),
		limit:    limit,
		interval: interval,
		now:      now,
	}
}

// Wait blocks until the window admits one call or the wait bound elapses.
func (w *Window) Wait(ctx context.Context, maxWait time.Duration) error {
	if w == nil {
		return nil
	}
	deadline := w.now().UTC().Add(maxWait)
	for {
		admitted, retryIn := w.tryAdmit()
		if admitted {
			return nil
		}
		now := w.now().UTC()
		if maxWait > 0 && now.Add(retryIn).After(deadline) {
			return ThrottledError{Scope: w.scope, RetryAfter: retryIn}
		}
		if err := waitWithContext(ctx, retryIn); err != nil {
			return err
		}
	}
}

// tryAdmit consumes one slot when available, else reports how long until the
// window rolls over.
func (w *Window) tryAdmit() (bool, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now().UTC()
	if w.start.IsZero() || !now.Before(w.start.Add(w.interval)) {
		w.start = now
		w.consumed = 0
	}
	if w.consumed < w.limit {
		w.consumed++
		return true, 0
	}
	retryIn := w.start.Add(w.interval).Sub(now)
	if retryIn <= 0 {
		retryIn = time.Millisecond
	}
	return false, retryIn
}

// Consumed reports usage within the current interval.
func (w *Window) Consumed() int {
	if w == nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now().UTC()
	if w.start.IsZero() || !now.Before(w.start.Add(w.interval)) {
		return 0
	}
	return w.consumed
}

// DualWindow paces calls against the caller window first, then the account
// window. Both must admit before a call proceeds.
type DualWindow struct {
	Caller  *Window
	Account *Window
}

func NewDualWindow(cfg core.GovernorConfig, now func() time.Time) *DualWindow {
	return &DualWindow{
		Caller:  NewWindow("caller", cfg.CallerWindow, now),
		Account: NewWindow("account", cfg.AccountWindow, now),
	}
}

func (d *DualWindow) Wait(ctx context.Context, maxWait time.Duration) error {
	if d == nil {
		return nil
	}
	if err := d.Caller.Wait(ctx, maxWait); err != nil {
		return err
	}
	return d.Account.Wait(ctx, maxWait)
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
