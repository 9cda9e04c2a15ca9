package gateway

import (
	"context"
	"testing"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"

	"github.com/goliatone/go-gateway/adapters/gojob"
)

type maintenanceEnqueuer struct {
	last *job.ExecutionMessage
}

func (m *maintenanceEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	m.last = msg
	return queue.EnqueueReceipt{DispatchID: "dispatch_1"}, nil
}

type maintenanceDelivery struct {
	msg   *job.ExecutionMessage
	acked bool
}

func (d *maintenanceDelivery) Message() *job.ExecutionMessage { return d.msg }

func (d *maintenanceDelivery) Ack(context.Context) error {
	d.acked = true
	return nil
}

func (d *maintenanceDelivery) Nack(context.Context, queue.NackOptions) error { return nil }

type maintenanceDequeuer struct {
	delivery queue.Delivery
}

func (d *maintenanceDequeuer) Dequeue(context.Context) (queue.Delivery, error) {
	return d.delivery, nil
}

type maintenanceServiceStub struct {
	swept int
}

func (s *maintenanceServiceStub) SweepCursors(context.Context) (int, error) {
	s.swept++
	return 1, nil
}

func (s *maintenanceServiceStub) ReloadConfig(context.Context) error { return nil }

func (s *maintenanceServiceStub) InvalidateCredential(context.Context, string) error { return nil }

func TestNewMaintenanceWiresQueueComposition(t *testing.T) {
	enqueuer := &maintenanceEnqueuer{}
	delivery := &maintenanceDelivery{msg: &job.ExecutionMessage{JobID: gojob.JobIDCursorSweep}}
	service := &maintenanceServiceStub{}

	m := NewMaintenance(enqueuer, &maintenanceDequeuer{delivery: delivery}, service, gojob.RetryPolicy{MaxAttempts: 3}, nil, nil)
	if m.Scheduler == nil || m.Runner == nil || m.Hook == nil {
		t.Fatalf("incomplete composition: %+v", m)
	}
	if m.JobProvider == nil || m.JobLogger == nil {
		t.Fatalf("expected go-job logger adapters to be resolved")
	}

	receipt, err := m.Scheduler.EnqueueCursorSweep(context.Background())
	if err != nil {
		t.Fatalf("enqueue sweep: %v", err)
	}
	if receipt.DispatchID != "dispatch_1" {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
	if enqueuer.last == nil || enqueuer.last.JobID != gojob.JobIDCursorSweep {
		t.Fatalf("unexpected enqueue: %+v", enqueuer.last)
	}

	if err := m.Runner.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if service.swept != 1 || !delivery.acked {
		t.Fatalf("expected sweep dispatch and ack, got swept=%d acked=%v", service.swept, delivery.acked)
	}
}
