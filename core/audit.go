package core

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryAuditSink keeps the most recent governance events in memory. It backs
// tests and single-process deployments; the sql store provides durability.
type MemoryAuditSink struct {
	mu       sync.Mutex
	entries  []AuditEntry
	capacity int
	Now      func() time.Time
}

const defaultAuditCapacity = 1024

func NewMemoryAuditSink(capacity int) *MemoryAuditSink {
	if capacity <= 0 {
		capacity = defaultAuditCapacity
	}
	return &MemoryAuditSink{capacity: capacity, Now: time.Now}
}

func (s *MemoryAuditSink) Record(_ context.Context, entry AuditEntry) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	entry.Metadata = RedactSensitiveMap(entry.Metadata)
	s.entries = append(s.entries, entry)
	if len(s.entries) > s.capacity {
		s.entries = s.entries[len(s.entries)-s.capacity:]
	}
	return nil
}

// Entries returns a copy of the retained events, oldest first.
func (s *MemoryAuditSink) Entries() []AuditEntry {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditEntry, len(s.entries))
	for i, entry := range s.entries {
		entry.Metadata = copyAnyMap(entry.Metadata)
		out[i] = entry
	}
	return out
}

func (s *MemoryAuditSink) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

var _ AuditSink = (*MemoryAuditSink)(nil)
