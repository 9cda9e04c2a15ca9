package gateway

import (
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"

	"github.com/goliatone/go-gateway/adapters/gojob"
	"github.com/goliatone/go-gateway/adapters/gologger"
)

// Maintenance bundles the background queue composition: the scheduler that
// enqueues maintenance jobs, the runner that drains them, the worker hook,
// and the loggers mapped to the go-job contracts.
type Maintenance struct {
	Scheduler   *gojob.Scheduler
	Runner      *gojob.Runner
	Hook        *gojob.LoggingHook
	JobProvider job.LoggerProvider
	JobLogger   job.Logger
}

// NewMaintenance wires the maintenance queue around a service. Loggers
// resolve with the same precedence the service uses: provider first, then
// logger, then the default.
func NewMaintenance(
	enqueuer queue.Enqueuer,
	dequeuer queue.Dequeuer,
	service gojob.MaintenanceService,
	policy gojob.RetryPolicy,
	provider LoggerProvider,
	logger Logger,
) *Maintenance {
	_, resolved, jobProvider, jobLogger := gologger.ResolveForJob("gateway:maintenance", provider, logger)
	return &Maintenance{
		Scheduler:   gojob.NewScheduler(enqueuer),
		Runner:      gojob.NewRunner(dequeuer, service, policy, resolved),
		Hook:        gojob.NewLoggingHook(resolved),
		JobProvider: jobProvider,
		JobLogger:   jobLogger,
	}
}

var _ gojob.MaintenanceService = (*Service)(nil)
