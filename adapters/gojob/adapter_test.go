package gojob

import (
	"context"
	"errors"
	"testing"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"

	"github.com/goliatone/go-gateway/core"
	"github.com/goliatone/go-gateway/shape"
)

type stubQueueEnqueuer struct {
	last *job.ExecutionMessage
}

func (s *stubQueueEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	s.last = msg
	return queue.EnqueueReceipt{
		DispatchID: "dispatch_" + msg.JobID,
		EnqueuedAt: time.Date(2026, time.March, 1, 10, 30, 45, 0, time.UTC),
	}, nil
}

type stubQueueDequeuer struct {
	delivery queue.Delivery
}

func (s *stubQueueDequeuer) Dequeue(context.Context) (queue.Delivery, error) {
	return s.delivery, nil
}

type stubQueueDelivery struct {
	msg      *job.ExecutionMessage
	acked    bool
	nacked   bool
	nackOpts queue.NackOptions
}

func (s *stubQueueDelivery) Message() *job.ExecutionMessage {
	return s.msg
}

func (s *stubQueueDelivery) Ack(context.Context) error {
	s.acked = true
	return nil
}

func (s *stubQueueDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	s.nacked = true
	s.nackOpts = opts
	return nil
}

type stubMaintenanceService struct {
	swept        int
	sweepErr     error
	reloaded     bool
	invalidated  string
	reloadCalled bool
}

func (s *stubMaintenanceService) SweepCursors(context.Context) (int, error) {
	if s.sweepErr != nil {
		return 0, s.sweepErr
	}
	s.swept++
	return 3, nil
}

func (s *stubMaintenanceService) ReloadConfig(context.Context) error {
	s.reloadCalled = true
	s.reloaded = true
	return nil
}

func (s *stubMaintenanceService) InvalidateCredential(_ context.Context, reason string) error {
	s.invalidated = reason
	return nil
}

func TestScheduler_EnqueuesDedupedMessages(t *testing.T) {
	enqueuer := &stubQueueEnqueuer{}
	scheduler := NewScheduler(enqueuer)
	scheduler.Now = func() time.Time {
		return time.Date(2026, time.March, 1, 10, 30, 45, 0, time.UTC)
	}

	receipt, err := scheduler.EnqueueCursorSweep(context.Background())
	if err != nil {
		t.Fatalf("enqueue cursor sweep: %v", err)
	}
	if receipt.DispatchID != "dispatch_"+JobIDCursorSweep {
		t.Fatalf("expected queue receipt, got %#v", receipt)
	}
	if enqueuer.last == nil || enqueuer.last.JobID != JobIDCursorSweep {
		t.Fatalf("expected cursor sweep message, got %#v", enqueuer.last)
	}
	if enqueuer.last.IdempotencyKey != "gateway.cursor.sweep:2026-03-01T10:30:00Z" {
		t.Fatalf("expected minute-bucketed idempotency key, got %q", enqueuer.last.IdempotencyKey)
	}

	if _, err := scheduler.EnqueueCredentialRefresh(context.Background(), "rotation"); err != nil {
		t.Fatalf("enqueue credential refresh: %v", err)
	}
	if enqueuer.last.JobID != JobIDCredentialRefresh {
		t.Fatalf("expected credential refresh message")
	}
	if enqueuer.last.Parameters["reason"] != "rotation" {
		t.Fatalf("expected reason parameter, got %#v", enqueuer.last.Parameters)
	}
}

func TestRunner_DispatchesByJobID(t *testing.T) {
	service := &stubMaintenanceService{}
	delivery := &stubQueueDelivery{msg: &job.ExecutionMessage{JobID: JobIDCursorSweep}}
	runner := NewRunner(&stubQueueDequeuer{delivery: delivery}, service, RetryPolicy{}, nil)

	if err := runner.RunOnce(context.Background()); err != nil {
		t.Fatalf("run cursor sweep: %v", err)
	}
	if service.swept != 1 {
		t.Fatalf("expected one sweep invocation, got %d", service.swept)
	}
	if !delivery.acked {
		t.Fatalf("expected delivery ack")
	}

	delivery = &stubQueueDelivery{msg: &job.ExecutionMessage{JobID: JobIDConfigReload}}
	runner = NewRunner(&stubQueueDequeuer{delivery: delivery}, service, RetryPolicy{}, nil)
	if err := runner.RunOnce(context.Background()); err != nil {
		t.Fatalf("run config reload: %v", err)
	}
	if !service.reloadCalled {
		t.Fatalf("expected reload invocation")
	}

	delivery = &stubQueueDelivery{msg: &job.ExecutionMessage{
		JobID:      JobIDCredentialRefresh,
		Parameters: map[string]any{"reason": "rotation"},
	}}
	runner = NewRunner(&stubQueueDequeuer{delivery: delivery}, service, RetryPolicy{}, nil)
	if err := runner.RunOnce(context.Background()); err != nil {
		t.Fatalf("run credential refresh: %v", err)
	}
	if service.invalidated != "rotation" {
		t.Fatalf("expected invalidation reason, got %q", service.invalidated)
	}
}

func TestRunner_ReportsEstimatorDrift(t *testing.T) {
	recorder := shape.NewDriftRecorder()
	recorder.Observe(core.CostEstimate{ApproxTokens: 150}, 400)

	delivery := &stubQueueDelivery{msg: &job.ExecutionMessage{JobID: JobIDEstimatorDrift}}
	runner := NewRunner(&stubQueueDequeuer{delivery: delivery}, &stubMaintenanceService{}, RetryPolicy{}, nil)
	runner.Drift = recorder

	if err := runner.RunOnce(context.Background()); err != nil {
		t.Fatalf("run drift report: %v", err)
	}
	if !delivery.acked {
		t.Fatalf("expected drift report ack")
	}
	if stats := recorder.Snapshot(); stats.Samples != 0 {
		t.Fatalf("expected recorder reset after report, got %d samples", stats.Samples)
	}
}

func TestRunner_AcksDriftReportWithoutSource(t *testing.T) {
	delivery := &stubQueueDelivery{msg: &job.ExecutionMessage{JobID: JobIDEstimatorDrift}}
	runner := NewRunner(&stubQueueDequeuer{delivery: delivery}, &stubMaintenanceService{}, RetryPolicy{}, nil)

	if err := runner.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if !delivery.acked {
		t.Fatalf("expected no-op ack when no drift source is configured")
	}
}

func TestRunner_NacksFailedJobs(t *testing.T) {
	service := &stubMaintenanceService{sweepErr: errors.New("cache offline")}
	delivery := &stubQueueDelivery{msg: &job.ExecutionMessage{JobID: JobIDCursorSweep}}
	runner := NewRunner(&stubQueueDequeuer{delivery: delivery}, service, RetryPolicy{MaxAttempts: 3}, nil)

	if err := runner.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if delivery.acked {
		t.Fatalf("expected no ack on failure")
	}
	if !delivery.nacked {
		t.Fatalf("expected nack on failure")
	}
	if delivery.nackOpts.Disposition != queue.NackDispositionRetry {
		t.Fatalf("expected retry disposition before max attempts, got %q", delivery.nackOpts.Disposition)
	}
	if delivery.nackOpts.Reason != "cache offline" {
		t.Fatalf("unexpected nack reason: %q", delivery.nackOpts.Reason)
	}
}

func TestRunner_RejectsUnknownJobID(t *testing.T) {
	delivery := &stubQueueDelivery{msg: &job.ExecutionMessage{JobID: "gateway.unknown"}}
	runner := NewRunner(&stubQueueDequeuer{delivery: delivery}, &stubMaintenanceService{}, RetryPolicy{}, nil)

	if err := runner.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if !delivery.nacked {
		t.Fatalf("expected unknown job to be nacked")
	}
}

func TestRetryPolicy_NormalizeBoundaries(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, MaxDelay: 10 * time.Second, DeadLetterOnMax: true}

	bounded := policy.Normalize(queue.NackOptions{Disposition: queue.NackDispositionRetry, Delay: 30 * time.Second, Reason: "transient"}, 1)
	if bounded.Delay != 10*time.Second {
		t.Fatalf("expected delay to be bounded, got %s", bounded.Delay)
	}
	if bounded.Disposition != queue.NackDispositionRetry {
		t.Fatalf("expected retry disposition before max attempts, got %q", bounded.Disposition)
	}

	exhausted := policy.Normalize(queue.NackOptions{Disposition: queue.NackDispositionRetry, Delay: time.Second, Reason: "still failing"}, 3)
	if exhausted.Disposition != queue.NackDispositionDeadLetter {
		t.Fatalf("expected dead letter at max attempts, got %q", exhausted.Disposition)
	}

	failed := RetryPolicy{MaxAttempts: 3}.Normalize(queue.NackOptions{Disposition: queue.NackDispositionRetry}, 3)
	if failed.Disposition != queue.NackDispositionFailed {
		t.Fatalf("expected failed disposition without dead letter queue, got %q", failed.Disposition)
	}

	fallback := policy.Normalize(queue.NackOptions{}, 1)
	if fallback.Disposition != queue.NackDispositionRetry {
		t.Fatalf("expected retry fallback for an unset disposition, got %q", fallback.Disposition)
	}
}
