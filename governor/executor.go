package governor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-gateway/core"
)

// ExponentialBackoffScheduler doubles the delay per attempt up to a cap.
type ExponentialBackoffScheduler struct {
	Initial time.Duration
	Max     time.Duration
}

func (s ExponentialBackoffScheduler) NextDelay(attempt int) time.Duration {
	initial := s.Initial
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	maximum := s.Max
	if maximum <= 0 {
		maximum = 8 * time.Second
	}
	if attempt <= 1 {
		return initial
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	return delay
}

// Executor runs outbound calls under permit, window, and retry governance.
// Retryable outcomes are transport failures, 5xx statuses, and 429s; other
// statuses return to the caller for interpretation.
type Executor struct {
	transport   core.TransportAdapter
	permits     *PermitPool
	windows     *DualWindow
	maxAttempts int
	maxWait     time.Duration
	backoff     ExponentialBackoffScheduler
	logger      core.Logger
	now         func() time.Time
}

type ExecutorOption func(*Executor)

func WithLogger(logger core.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

func WithWindows(windows *DualWindow) ExecutorOption {
	return func(e *Executor) {
		if windows != nil {
			e.windows = windows
		}
	}
}

func New(cfg core.GovernorConfig, transport core.TransportAdapter, options ...ExecutorOption) (*Executor, error) {
	if transport == nil {
		return nil, fmt.Errorf("governor: transport is required")
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 4
	}
	maxWait := cfg.MaxWait
	if maxWait <= 0 {
		maxWait = 10 * time.Second
	}
	executor := &Executor{
		transport:   transport,
		permits:     NewPermitPool(cfg.MaxConcurrent),
		maxAttempts: maxAttempts,
		maxWait:     maxWait,
		backoff: ExponentialBackoffScheduler{
			Initial: cfg.RetryInitial,
			Max:     cfg.RetryMax,
		},
		logger: glog.Ensure(nil),
		now:    time.Now,
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(executor)
	}
	if executor.windows == nil {
		executor.windows = NewDualWindow(cfg, executor.now)
	}
	return executor, nil
}

func (e *Executor) Execute(ctx context.Context, req core.CallRequest) (core.CallResponse, error) {
	if e == nil {
		return core.CallResponse{}, fmt.Errorf("governor: executor is nil")
	}
	release, err := e.permits.Acquire(ctx)
	if err != nil {
		return core.CallResponse{}, err
	}
	defer release()

	startedAt := e.now().UTC()
	var lastErr error
	var lastStatus int
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if err := e.windows.Wait(ctx, e.maxWait); err != nil {
			return core.CallResponse{}, err
		}

		response, callErr := e.transport.Do(ctx, req)
		response.Attempts = attempt
		if callErr == nil && !retryableStatus(response.StatusCode) {
			response.Duration = e.now().UTC().Sub(startedAt)
			return response, nil
		}

		if callErr != nil {
			if ctx.Err() != nil {
				return core.CallResponse{}, ctx.Err()
			}
			lastErr = callErr
			lastStatus = 0
		} else {
			lastErr = nil
			lastStatus = response.StatusCode
		}
		if attempt == e.maxAttempts {
			break
		}

		delay := e.backoff.NextDelay(attempt)
		if lastStatus == 429 {
			if hinted, ok := retryAfterHint(response.Headers, e.now().UTC()); ok {
				delay = hinted
			}
		}
		e.logger.Info("upstream call retry scheduled",
			"attempt", attempt,
			"delay_ms", delay.Milliseconds(),
			"endpoint", req.Endpoint,
			"status", lastStatus,
		)
		if err := waitWithContext(ctx, delay); err != nil {
			return core.CallResponse{}, err
		}
	}

	if lastStatus == 429 {
		return core.CallResponse{}, fmt.Errorf("governor: %w: retries exhausted after %d attempts", core.ErrRateLimited, e.maxAttempts)
	}
	if lastErr != nil {
		return core.CallResponse{}, fmt.Errorf("governor: %w: %v", core.ErrUpstreamUnavailable, lastErr)
	}
	return core.CallResponse{}, fmt.Errorf("governor: %w: upstream status %d after %d attempts", core.ErrUpstreamUnavailable, lastStatus, e.maxAttempts)
}

func retryableStatus(status int) bool {
	return status == 429 || status >= 500
}

// retryAfterHint honors an upstream Retry-After header, in either seconds or
// HTTP date form.
func retryAfterHint(headers map[string]string, now time.Time) (time.Duration, bool) {
	raw := headerValue(headers, "retry-after")
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	for _, layout := range []string{time.RFC1123, time.RFC1123Z} {
		if retryAt, err := time.Parse(layout, raw); err == nil {
			if retryAt.After(now) {
				return retryAt.Sub(now), true
			}
			return 0, false
		}
	}
	return 0, false
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

var _ core.CallGovernor = (*Executor)(nil)
