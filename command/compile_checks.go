package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[ReloadConfigMessage]         = (*ReloadConfigCommand)(nil)
	_ gocmd.Commander[InvalidateCredentialMessage] = (*InvalidateCredentialCommand)(nil)
	_ gocmd.Commander[SweepCursorsMessage]         = (*SweepCursorsCommand)(nil)
	_ gocmd.Commander[RegisterResourceMessage]     = (*RegisterResourceCommand)(nil)
)
