package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-gateway/core"
)

const (
	TypeReloadConfig         = "gateway.command.config.reload"
	TypeInvalidateCredential = "gateway.command.credential.invalidate"
	TypeSweepCursors         = "gateway.command.cursor.sweep"
	TypeRegisterResource     = "gateway.command.resource.register"
)

type ReloadConfigMessage struct{}

func (ReloadConfigMessage) Type() string { return TypeReloadConfig }

func (ReloadConfigMessage) Validate() error { return nil }

type InvalidateCredentialMessage struct {
	Reason string
}

func (InvalidateCredentialMessage) Type() string { return TypeInvalidateCredential }

func (m InvalidateCredentialMessage) Validate() error {
	if strings.TrimSpace(m.Reason) == "" {
		return fmt.Errorf("command: invalidation reason is required")
	}
	return nil
}

type SweepCursorsMessage struct{}

func (SweepCursorsMessage) Type() string { return TypeSweepCursors }

func (SweepCursorsMessage) Validate() error { return nil }

type RegisterResourceMessage struct {
	Descriptor core.ResourceDescriptor
}

func (RegisterResourceMessage) Type() string { return TypeRegisterResource }

func (m RegisterResourceMessage) Validate() error {
	if strings.TrimSpace(m.Descriptor.Type) == "" {
		return fmt.Errorf("command: resource type is required")
	}
	if strings.TrimSpace(m.Descriptor.ListEndpoint) == "" {
		return fmt.Errorf("command: list endpoint is required")
	}
	if strings.TrimSpace(m.Descriptor.OrderKey) == "" {
		return fmt.Errorf("command: order key is required")
	}
	return nil
}
