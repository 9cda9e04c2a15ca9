package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-gateway/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ActivityStore persists audit entries and serves the activity listing used
// by operational review. Writes are fire-and-forget from the request path;
// the service drops record errors after logging them.
type ActivityStore struct {
	db   *bun.DB
	repo repository.Repository[*activityEntryRecord]
}

func NewActivityStore(db *bun.DB) (*ActivityStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*activityEntryRecord](db, activityHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid activity repository wiring: %w", err)
		}
	}
	return &ActivityStore{db: db, repo: repo}, nil
}

// EnsureSchema creates the activity table when it does not exist yet.
func (s *ActivityStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: activity store is not configured")
	}
	if _, err := s.db.NewCreateTable().
		Model((*activityEntryRecord)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("sqlstore: create activity table: %w", err)
	}
	if _, err := s.db.NewCreateIndex().
		Model((*activityEntryRecord)(nil)).
		Index("idx_gateway_activity_created_at").
		Column("created_at").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("sqlstore: create activity index: %w", err)
	}
	return nil
}

func (s *ActivityStore) Record(ctx context.Context, entry core.AuditEntry) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: activity store is not configured")
	}
	metadata := core.RedactSensitiveMap(entry.Metadata)
	if metadata == nil {
		metadata = map[string]any{}
	}

	id := strings.TrimSpace(entry.ID)
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := entry.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	record := &activityEntryRecord{
		ID:            id,
		Action:        strings.TrimSpace(entry.Action),
		Status:        strings.TrimSpace(string(entry.Status)),
		CorrelationID: strings.TrimSpace(entry.CorrelationID),
		ResourceType:  metadataString(metadata, "resource_type"),
		Endpoint:      metadataString(metadata, "endpoint"),
		Metadata:      metadata,
		CreatedAt:     createdAt,
	}
	if record.Action == "" {
		record.Action = "gateway.event"
	}
	if record.Status == "" {
		record.Status = string(core.AuditStatusSuccess)
	}

	_, err := s.repo.Create(ctx, record)
	return err
}

func (s *ActivityStore) List(ctx context.Context, filter core.ActivityFilter) (core.ActivityPage, error) {
	if s == nil || s.repo == nil {
		return core.ActivityPage{}, fmt.Errorf("sqlstore: activity store is not configured")
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 25
	}
	offset := (page - 1) * perPage

	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(perPage, offset),
	}
	if action := strings.TrimSpace(filter.Action); action != "" {
		selectors = append(selectors, repository.SelectBy("action", "=", action))
	}
	if status := strings.TrimSpace(string(filter.Status)); status != "" {
		selectors = append(selectors, repository.SelectBy("status", "=", status))
	}
	if correlationID := strings.TrimSpace(filter.CorrelationID); correlationID != "" {
		selectors = append(selectors, repository.SelectBy("correlation_id", "=", correlationID))
	}
	if filter.From != nil {
		selectors = append(selectors, repository.SelectByTimetz("created_at", ">=", filter.From.UTC()))
	}
	if filter.To != nil {
		selectors = append(selectors, repository.SelectByTimetz("created_at", "<=", filter.To.UTC()))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.ActivityPage{}, err
	}
	items := make([]core.AuditEntry, 0, len(records))
	for _, record := range records {
		items = append(items, activityRecordToDomain(record))
	}
	return core.ActivityPage{
		Items:   items,
		Page:    page,
		PerPage: perPage,
		Total:   total,
		HasNext: offset+len(items) < total,
	}, nil
}

// Prune trims audit history by age and then by row cap, oldest rows first.
func (s *ActivityStore) Prune(ctx context.Context, maxAge time.Duration, rowCap int) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: activity store is not configured")
	}
	deleted := 0
	now := time.Now().UTC()

	if maxAge > 0 {
		cutoff := now.Add(-maxAge)
		res, err := s.db.NewDelete().
			Model((*activityEntryRecord)(nil)).
			Where("created_at < ?", cutoff).
			Exec(ctx)
		if err != nil {
			return deleted, err
		}
		affected, _ := res.RowsAffected()
		deleted += int(affected)
	}

	if rowCap > 0 {
		total, err := s.db.NewSelect().Model((*activityEntryRecord)(nil)).Count(ctx)
		if err != nil {
			return deleted, err
		}
		excess := total - rowCap
		if excess > 0 {
			res, err := s.db.NewRaw(
				"DELETE FROM gateway_activity_entries WHERE id IN (SELECT id FROM gateway_activity_entries ORDER BY created_at ASC LIMIT ?)",
				excess,
			).Exec(ctx)
			if err != nil {
				return deleted, err
			}
			affected, _ := res.RowsAffected()
			deleted += int(affected)
		}
	}

	return deleted, nil
}

func activityRecordToDomain(record *activityEntryRecord) core.AuditEntry {
	if record == nil {
		return core.AuditEntry{}
	}
	metadata := copyAnyMap(record.Metadata)
	if resourceType := strings.TrimSpace(record.ResourceType); resourceType != "" {
		metadata["resource_type"] = resourceType
	}
	if endpoint := strings.TrimSpace(record.Endpoint); endpoint != "" {
		metadata["endpoint"] = endpoint
	}
	return core.AuditEntry{
		ID:            record.ID,
		Action:        record.Action,
		Status:        core.AuditStatus(record.Status),
		CorrelationID: record.CorrelationID,
		Metadata:      metadata,
		CreatedAt:     record.CreatedAt,
	}
}

func copyAnyMap(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for key, value := range values {
		out[key] = value
	}
	return out
}

func metadataString(metadata map[string]any, key string) string {
	if len(metadata) == 0 {
		return ""
	}
	value, ok := metadata[key]
	if !ok || value == nil {
		return ""
	}
	text := strings.TrimSpace(fmt.Sprint(value))
	if text == "" || text == "<nil>" {
		return ""
	}
	return text
}
