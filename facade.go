package gateway

import (
	"fmt"

	gatewaycommand "github.com/goliatone/go-gateway/command"
	"github.com/goliatone/go-gateway/core"
	gatewayquery "github.com/goliatone/go-gateway/query"
)

type CommandQueryService interface {
	gatewaycommand.MutatingService
	gatewayquery.ResourceReader
}

type Commands struct {
	ReloadConfig         *gatewaycommand.ReloadConfigCommand
	InvalidateCredential *gatewaycommand.InvalidateCredentialCommand
	SweepCursors         *gatewaycommand.SweepCursorsCommand
	RegisterResource     *gatewaycommand.RegisterResourceCommand
}

type Queries struct {
	ListResource *gatewayquery.ListResourceQuery
	GetResource  *gatewayquery.GetResourceQuery
	ListActivity *gatewayquery.ListActivityQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	activityReader gatewayquery.ActivityReader
}

func WithActivityReader(reader gatewayquery.ActivityReader) FacadeOption {
	return func(options *facadeOptions) {
		options.activityReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("gateway: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	reader := cfg.activityReader
	if reader == nil {
		reader = resolveActivityReader(service)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		ReloadConfig:         gatewaycommand.NewReloadConfigCommand(service),
		InvalidateCredential: gatewaycommand.NewInvalidateCredentialCommand(service),
		SweepCursors:         gatewaycommand.NewSweepCursorsCommand(service),
		RegisterResource:     gatewaycommand.NewRegisterResourceCommand(service),
	}
	facade.queries = Queries{
		ListResource: gatewayquery.NewListResourceQuery(service),
		GetResource:  gatewayquery.NewGetResourceQuery(service),
		ListActivity: gatewayquery.NewListActivityQuery(reader),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// resolveActivityReader finds an activity source on the service when the
// caller did not supply one: the service itself, or its audit sink when the
// sink also supports reads.
func resolveActivityReader(service CommandQueryService) gatewayquery.ActivityReader {
	if service == nil {
		return nil
	}
	if reader, ok := service.(gatewayquery.ActivityReader); ok {
		return reader
	}
	provider, ok := service.(interface {
		Dependencies() core.ServiceDependencies
	})
	if !ok {
		return nil
	}
	deps := provider.Dependencies()
	if reader, ok := deps.AuditSink.(core.AuditReader); ok {
		return reader
	}
	return nil
}
