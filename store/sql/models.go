package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type activityEntryRecord struct {
	bun.BaseModel `bun:"table:gateway_activity_entries,alias:gae"`

	ID            string         `bun:"id,pk"`
	Action        string         `bun:"action,notnull"`
	Status        string         `bun:"status,notnull"`
	CorrelationID string         `bun:"correlation_id"`
	ResourceType  string         `bun:"resource_type"`
	Endpoint      string         `bun:"endpoint"`
	Metadata      map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt     time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
