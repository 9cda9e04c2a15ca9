package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-gateway/shape"
)

const (
	JobIDCredentialRefresh = "gateway.credential.refresh"
	JobIDCursorSweep       = "gateway.cursor.sweep"
	JobIDConfigReload      = "gateway.config.reload"
	JobIDEstimatorDrift    = "gateway.estimator.drift"
)

// MaintenanceService is the slice of the gateway service the background jobs
// need.
type MaintenanceService interface {
	SweepCursors(ctx context.Context) (int, error)
	ReloadConfig(ctx context.Context) error
	InvalidateCredential(ctx context.Context, reason string) error
}

// DriftSource reports accumulated estimator drift samples and clears them
// after a report.
type DriftSource interface {
	Snapshot() shape.DriftStats
	Reset()
}

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// Normalize enforces bounded retry behavior for a nack operation. Retries
// past MaxAttempts are forced to a terminal disposition.
func (p RetryPolicy) Normalize(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.Disposition == "" {
		out.Disposition = queue.NackDispositionRetry
	}
	if out.Disposition == queue.NackDispositionRetry && p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		if p.DeadLetterOnMax {
			out.Disposition = queue.NackDispositionDeadLetter
		} else {
			out.Disposition = queue.NackDispositionFailed
		}
	}
	return out
}

// Scheduler enqueues gateway maintenance jobs. Idempotency keys bucket by
// minute so a crashed scheduler restart does not double-enqueue a cycle.
type Scheduler struct {
	enqueuer queue.Enqueuer

	Now func() time.Time
}

func NewScheduler(enqueuer queue.Enqueuer) *Scheduler {
	return &Scheduler{enqueuer: enqueuer, Now: time.Now}
}

func (s *Scheduler) EnqueueCursorSweep(ctx context.Context) (queue.EnqueueReceipt, error) {
	return s.enqueue(ctx, JobIDCursorSweep, nil)
}

func (s *Scheduler) EnqueueConfigReload(ctx context.Context) (queue.EnqueueReceipt, error) {
	return s.enqueue(ctx, JobIDConfigReload, nil)
}

func (s *Scheduler) EnqueueDriftReport(ctx context.Context) (queue.EnqueueReceipt, error) {
	return s.enqueue(ctx, JobIDEstimatorDrift, nil)
}

func (s *Scheduler) EnqueueCredentialRefresh(ctx context.Context, reason string) (queue.EnqueueReceipt, error) {
	params := map[string]any{}
	if reason = strings.TrimSpace(reason); reason != "" {
		params["reason"] = reason
	}
	return s.enqueue(ctx, JobIDCredentialRefresh, params)
}

func (s *Scheduler) enqueue(ctx context.Context, jobID string, params map[string]any) (queue.EnqueueReceipt, error) {
	if s == nil || s.enqueuer == nil {
		return queue.EnqueueReceipt{}, fmt.Errorf("gojob: enqueuer is not configured")
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	receipt, err := s.enqueuer.Enqueue(ctx, &job.ExecutionMessage{
		JobID:          jobID,
		Parameters:     params,
		IdempotencyKey: fmt.Sprintf("%s:%s", jobID, now().UTC().Truncate(time.Minute).Format(time.RFC3339)),
		DedupPolicy:    job.DeduplicationPolicy("drop"),
	})
	if err != nil {
		return queue.EnqueueReceipt{}, fmt.Errorf("gojob: enqueue %s: %w", jobID, err)
	}
	return receipt, nil
}

// Runner drains the maintenance queue and dispatches each delivery to the
// gateway service. Failed deliveries are nacked under the retry policy.
type Runner struct {
	dequeuer queue.Dequeuer
	service  MaintenanceService
	policy   RetryPolicy
	logger   glog.Logger

	// Drift supplies estimator drift stats for the drift report job. Left
	// nil, drift reports ack as no-ops.
	Drift DriftSource
}

func NewRunner(dequeuer queue.Dequeuer, service MaintenanceService, policy RetryPolicy, logger glog.Logger) *Runner {
	return &Runner{
		dequeuer: dequeuer,
		service:  service,
		policy:   policy,
		logger:   glog.Ensure(logger),
	}
}

// RunOnce processes a single delivery. Callers loop it from their own worker.
func (r *Runner) RunOnce(ctx context.Context) error {
	if r == nil || r.dequeuer == nil || r.service == nil {
		return fmt.Errorf("gojob: runner is not configured")
	}
	delivery, err := r.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	msg := delivery.Message()
	if msg == nil {
		return delivery.Ack(ctx)
	}

	if err := r.dispatch(ctx, msg); err != nil {
		r.logger.Error("maintenance job failed", "job_id", msg.JobID, "error", err.Error())
		return delivery.Nack(ctx, r.policy.Normalize(queue.NackOptions{
			Disposition: queue.NackDispositionRetry,
			Reason:      err.Error(),
		}, attemptOf(msg)))
	}
	return delivery.Ack(ctx)
}

func (r *Runner) dispatch(ctx context.Context, msg *job.ExecutionMessage) error {
	switch strings.TrimSpace(msg.JobID) {
	case JobIDCursorSweep:
		removed, err := r.service.SweepCursors(ctx)
		if err != nil {
			return err
		}
		r.logger.Info("cursor sweep completed", "removed", removed)
		return nil
	case JobIDConfigReload:
		return r.service.ReloadConfig(ctx)
	case JobIDCredentialRefresh:
		reason := parameterString(msg.Parameters, "reason")
		if reason == "" {
			reason = "scheduled_refresh"
		}
		return r.service.InvalidateCredential(ctx, reason)
	case JobIDEstimatorDrift:
		if r.Drift == nil {
			r.logger.Debug("drift report skipped, no source configured")
			return nil
		}
		stats := r.Drift.Snapshot()
		r.logger.Info("estimator drift report",
			"samples", stats.Samples,
			"mean_ratio", stats.MeanRatio,
			"max_ratio", stats.MaxRatio,
		)
		r.Drift.Reset()
		return nil
	default:
		return fmt.Errorf("gojob: unknown job id %q", msg.JobID)
	}
}

func attemptOf(msg *job.ExecutionMessage) int {
	if msg == nil {
		return 0
	}
	value, ok := msg.Parameters["attempt"]
	if !ok {
		return 0
	}
	attempt, ok := value.(int)
	if !ok {
		return 0
	}
	return attempt
}

func parameterString(params map[string]any, key string) string {
	if len(params) == 0 {
		return ""
	}
	value, ok := params[key]
	if !ok || value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

// LoggingHook surfaces worker lifecycle events through the gateway logger.
type LoggingHook struct {
	logger glog.Logger
}

func NewLoggingHook(logger glog.Logger) *LoggingHook {
	return &LoggingHook{logger: glog.Ensure(logger)}
}

func (h *LoggingHook) OnStart(_ context.Context, event worker.Event) {
	if h == nil {
		return
	}
	h.logger.Debug("maintenance job started", "job_id", eventJobID(event), "attempt", event.Attempt)
}

func (h *LoggingHook) OnSuccess(_ context.Context, event worker.Event) {
	if h == nil {
		return
	}
	h.logger.Info("maintenance job succeeded",
		"job_id", eventJobID(event),
		"attempt", event.Attempt,
		"duration_ms", event.Duration.Milliseconds(),
	)
}

func (h *LoggingHook) OnFailure(_ context.Context, event worker.Event) {
	if h == nil {
		return
	}
	h.logger.Error("maintenance job failed",
		"job_id", eventJobID(event),
		"attempt", event.Attempt,
		"error", errorText(event.Err),
	)
}

func (h *LoggingHook) OnRetry(_ context.Context, event worker.Event) {
	if h == nil {
		return
	}
	h.logger.Warn("maintenance job retry scheduled",
		"job_id", eventJobID(event),
		"attempt", event.Attempt,
		"delay_ms", event.Delay.Milliseconds(),
	)
}

func eventJobID(event worker.Event) string {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	if message == nil {
		return ""
	}
	return message.JobID
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

var _ worker.Hook = (*LoggingHook)(nil)
