package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-gateway/core"
)

type MutatingService interface {
	ReloadConfig(ctx context.Context) error
	InvalidateCredential(ctx context.Context, reason string) error
	SweepCursors(ctx context.Context) (int, error)
	Registry() core.Registry
}

type ReloadConfigCommand struct {
	service MutatingService
}

func NewReloadConfigCommand(service MutatingService) *ReloadConfigCommand {
	return &ReloadConfigCommand{service: service}
}

func (c *ReloadConfigCommand) Execute(ctx context.Context, msg ReloadConfigMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: config service is required")
	}
	return c.service.ReloadConfig(ctx)
}

type InvalidateCredentialCommand struct {
	service MutatingService
}

func NewInvalidateCredentialCommand(service MutatingService) *InvalidateCredentialCommand {
	return &InvalidateCredentialCommand{service: service}
}

func (c *InvalidateCredentialCommand) Execute(ctx context.Context, msg InvalidateCredentialMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: credential service is required")
	}
	return c.service.InvalidateCredential(ctx, msg.Reason)
}

type SweepCursorsCommand struct {
	service MutatingService
}

func NewSweepCursorsCommand(service MutatingService) *SweepCursorsCommand {
	return &SweepCursorsCommand{service: service}
}

func (c *SweepCursorsCommand) Execute(ctx context.Context, msg SweepCursorsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: cursor service is required")
	}
	removed, err := c.service.SweepCursors(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, removed)
	return nil
}

type RegisterResourceCommand struct {
	service MutatingService
}

func NewRegisterResourceCommand(service MutatingService) *RegisterResourceCommand {
	return &RegisterResourceCommand{service: service}
}

func (c *RegisterResourceCommand) Execute(ctx context.Context, msg RegisterResourceMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: resource service is required")
	}
	registry := c.service.Registry()
	if registry == nil {
		return commandDependencyError("command: resource registry is required")
	}
	if err := registry.Register(msg.Descriptor); err != nil {
		return commandInvalidInputError(err.Error())
	}
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
