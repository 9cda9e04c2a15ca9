package sqlstore

import "github.com/goliatone/go-gateway/core"

var (
	_ core.AuditSink   = (*ActivityStore)(nil)
	_ core.AuditReader = (*ActivityStore)(nil)
)
