package credential

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-gateway/core"
)

const (
	DefaultRefreshMargin = 2 * time.Minute
	DefaultLeaseTTL      = time.Hour
)

// Exchanger trades configured client credentials for a fresh lease.
type Exchanger interface {
	Exchange(ctx context.Context) (core.Lease, error)
}

// Manager is the process-wide lease source. Renewal happens under the lock,
// so concurrent acquirers that race a stale lease perform exactly one
// exchange; the rest observe the result.
type Manager struct {
	exchanger Exchanger
	margin    time.Duration
	logger    core.Logger
	audit     core.AuditSink

	mu        sync.Mutex
	lease     core.Lease
	exchanges int

	Now func() time.Time
}

type ManagerOption func(*Manager)

func WithLogger(logger core.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithAuditSink(sink core.AuditSink) ManagerOption {
	return func(m *Manager) {
		m.audit = sink
	}
}

func WithRefreshMargin(margin time.Duration) ManagerOption {
	return func(m *Manager) {
		if margin > 0 {
			m.margin = margin
		}
	}
}

func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.Now = now
		}
	}
}

func NewManager(exchanger Exchanger, options ...ManagerOption) (*Manager, error) {
	if exchanger == nil {
		return nil, fmt.Errorf("credential: exchanger is required")
	}
	manager := &Manager{
		exchanger: exchanger,
		margin:    DefaultRefreshMargin,
		logger:    glog.Ensure(nil),
		Now:       time.Now,
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(manager)
	}
	return manager, nil
}

// Acquire returns a lease with more than the refresh margin of validity
// remaining, renewing first when the held lease is stale.
func (m *Manager) Acquire(ctx context.Context) (core.Lease, error) {
	if m == nil {
		return core.Lease{}, fmt.Errorf("credential: manager is nil")
	}
	if err := ctx.Err(); err != nil {
		return core.Lease{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.lease.Fresh(now, m.margin) {
		return m.lease, nil
	}

	lease, err := m.exchanger.Exchange(ctx)
	if err != nil {
		m.recordEvent(ctx, "credential_exchange", core.AuditStatusFailure, map[string]any{
			"error": err.Error(),
		})
		m.logger.Error("credential exchange failed", "error", err.Error())
		return core.Lease{}, fmt.Errorf("credential: %w: %v", core.ErrAuthenticationFailed, err)
	}
	if strings.TrimSpace(lease.Token) == "" {
		return core.Lease{}, fmt.Errorf("credential: %w: exchange returned empty token", core.ErrAuthenticationFailed)
	}
	if lease.IssuedAt.IsZero() {
		lease.IssuedAt = now
	}
	if lease.ExpiresAt.IsZero() {
		lease.ExpiresAt = lease.IssuedAt.Add(DefaultLeaseTTL)
	}

	m.lease = lease
	m.exchanges++
	m.recordEvent(ctx, "credential_exchange", core.AuditStatusSuccess, map[string]any{
		"expires_at": lease.ExpiresAt.UTC().Format(time.RFC3339),
	})
	m.logger.Info("credential lease renewed",
		"expires_at", lease.ExpiresAt.UTC().Format(time.RFC3339),
	)
	return m.lease, nil
}

// Invalidate discards the held lease so the next Acquire exchanges anew.
// Used after the upstream rejects a request as unauthorized.
func (m *Manager) Invalidate(ctx context.Context, reason string) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	m.lease = core.Lease{}
	m.mu.Unlock()

	reason = strings.TrimSpace(reason)
	m.recordEvent(ctx, "credential_invalidate", core.AuditStatusSuccess, map[string]any{
		"reason": reason,
	})
	m.logger.Info("credential lease invalidated", "reason", reason)
	return nil
}

// Exchanges reports how many exchanges the manager has performed.
func (m *Manager) Exchanges() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exchanges
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

func (m *Manager) recordEvent(ctx context.Context, action string, status core.AuditStatus, metadata map[string]any) {
	if m.audit == nil {
		return
	}
	_ = m.audit.Record(ctx, core.AuditEntry{
		Action:   action,
		Status:   status,
		Metadata: metadata,
	})
}

var _ core.LeaseSource = (*Manager)(nil)
