package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-gateway/core"
)

var (
	_ gocmd.Querier[ListResourceMessage, core.Envelope]     = (*ListResourceQuery)(nil)
	_ gocmd.Querier[GetResourceMessage, core.Envelope]      = (*GetResourceQuery)(nil)
	_ gocmd.Querier[ListActivityMessage, core.ActivityPage] = (*ListActivityQuery)(nil)
)
