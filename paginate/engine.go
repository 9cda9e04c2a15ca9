// Package paginate turns unbounded upstream listings into bounded pages with
// continuation cursors. The engine pushes offset and limit to the upstream
// when the resource supports it and slices locally when it does not; either
// way a caller walking cursors to exhaustion sees every row exactly once.
package paginate

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-gateway/core"
)

type Engine struct {
	codec core.CursorCodec
	cache core.CursorCache
	ttl   time.Duration
	Now   func() time.Time
}

func NewEngine(codec core.CursorCodec, cache core.CursorCache, ttl time.Duration) (*Engine, error) {
	if codec == nil {
		return nil, fmt.Errorf("paginate: cursor codec is required")
	}
	if cache == nil {
		return nil, fmt.Errorf("paginate: cursor cache is required")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Engine{
		codec: codec,
		cache: cache,
		ttl:   ttl,
		Now:   time.Now,
	}, nil
}

// Page fetches one bounded slice starting at state.Offset. A continuation
// cursor is minted only when rows remain past this page.
func (e *Engine) Page(ctx context.Context, fetcher core.Fetcher, req core.FetchRequest, state core.CursorState) (core.Page, error) {
	if e == nil {
		return core.Page{}, fmt.Errorf("paginate: engine is nil")
	}
	if fetcher == nil {
		return core.Page{}, fmt.Errorf("paginate: fetcher is required")
	}
	limit := req.Limit
	if limit <= 0 {
		return core.Page{}, fmt.Errorf("paginate: limit must be positive")
	}
	offset := state.Offset
	if offset < 0 {
		offset = 0
	}

	var items []core.Item
	var total int
	if req.Descriptor.SupportsOffsetLimit {
		result, err := fetcher.Fetch(ctx, core.FetchRequest{
			Descriptor: req.Descriptor,
			Offset:     offset,
			Limit:      limit,
			Filters:    req.Filters,
		})
		if err != nil {
			return core.Page{}, err
		}
		items = result.Items
		if len(items) > limit {
			items = items[:limit]
		}
		total = result.TotalCount
		if total < offset+len(items) {
			total = offset + len(items)
		}
	} else {
		result, err := fetcher.Fetch(ctx, core.FetchRequest{
			Descriptor: req.Descriptor,
			Filters:    req.Filters,
		})
		if err != nil {
			return core.Page{}, err
		}
		total = len(result.Items)
		if result.TotalCount > total {
			total = result.TotalCount
		}
		if offset >= len(result.Items) {
			items = nil
		} else {
			end := offset + limit
			if end > len(result.Items) {
				end = len(result.Items)
			}
			items = result.Items[offset:end]
		}
	}

	nextOffset := offset + len(items)
	hasMore := nextOffset < total && len(items) > 0
	page := core.Page{
		Items:      items,
		TotalCount: total,
		HasMore:    hasMore,
	}
	if !hasMore {
		return page, nil
	}

	now := e.now()
	nextState := core.CursorState{
		Offset:            nextOffset,
		OrderKey:          state.OrderKey,
		FilterFingerprint: state.FilterFingerprint,
		IssuedAt:          now,
	}
	token, err := e.codec.Encode(nextState)
	if err != nil {
		return core.Page{}, fmt.Errorf("paginate: cursor encode failed: %w", err)
	}
	err = e.cache.Put(ctx, token, core.ResumeState{
		Kind:      core.ResumeKindPage,
		Cursor:    nextState,
		TotalRows: total,
		ExpiresAt: now.Add(e.ttl),
	})
	if err != nil {
		return core.Page{}, fmt.Errorf("paginate: cursor cache put failed: %w", err)
	}
	page.NextCursor = token
	return page, nil
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

var _ core.Paginator = (*Engine)(nil)
