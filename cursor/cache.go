package cursor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-gateway/core"
)

// MemoryCache holds resume state keyed by cursor token. Entries leave only
// through TTL sweep, so resolving a live token twice yields the same state.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]core.ResumeState
	ttl     time.Duration
	Now     func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &MemoryCache{
		entries: map[string]core.ResumeState{},
		ttl:     ttl,
		Now:     time.Now,
	}
}

func (c *MemoryCache) Put(_ context.Context, token string, state core.ResumeState) error {
	if c == nil {
		return fmt.Errorf("cursor: cache is nil")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("cursor: cache token is required")
	}
	if state.ExpiresAt.IsZero() {
		state.ExpiresAt = c.now().Add(c.ttl)
	}
	state.Segments = append([]string(nil), state.Segments...)
	c.mu.Lock()
	c.entries[token] = state
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Get(_ context.Context, token string) (core.ResumeState, error) {
	if c == nil {
		return core.ResumeState{}, fmt.Errorf("cursor: cache is nil")
	}
	token = strings.TrimSpace(token)
	c.mu.RLock()
	state, ok := c.entries[token]
	c.mu.RUnlock()
	if !ok {
		return core.ResumeState{}, fmt.Errorf("cursor: %w: unknown token", core.ErrCursorInvalid)
	}
	if c.now().After(state.ExpiresAt) {
		return core.ResumeState{}, fmt.Errorf("cursor: %w: token expired", core.ErrCursorInvalid)
	}
	state.Segments = append([]string(nil), state.Segments...)
	return state, nil
}

// Sweep drops expired entries and reports how many were removed.
func (c *MemoryCache) Sweep(_ context.Context) (int, error) {
	if c == nil {
		return 0, nil
	}
	now := c.now()
	removed := 0
	c.mu.Lock()
	for token, state := range c.entries {
		if now.After(state.ExpiresAt) {
			delete(c.entries, token)
			removed++
		}
	}
	c.mu.Unlock()
	return removed, nil
}

// Len reports how many entries are resident, expired included.
func (c *MemoryCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// RunSweeper sweeps on the interval until ctx ends.
func (c *MemoryCache) RunSweeper(ctx context.Context, interval time.Duration) {
	if c == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = c.Sweep(ctx)
		}
	}
}

func (c *MemoryCache) now() time.Time {
	if c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

var _ core.CursorCache = (*MemoryCache)(nil)
