package shape

import (
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-gateway/core"
)

// StaticFieldMapSource holds the preview projections per resource type.
// Paths are dot-separated and resolve through nested objects.
type StaticFieldMapSource struct {
	mu     sync.RWMutex
	fields map[string][]string
}

func NewStaticFieldMapSource() *StaticFieldMapSource {
	return &StaticFieldMapSource{fields: map[string][]string{}}
}

func (s *StaticFieldMapSource) Register(resourceType string, paths []string) error {
	resourceType = strings.TrimSpace(resourceType)
	if resourceType == "" {
		return fmt.Errorf("shape: resource type is required")
	}
	normalized := make([]string, 0, len(paths))
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		normalized = append(normalized, path)
	}
	if len(normalized) == 0 {
		return fmt.Errorf("shape: field map needs at least one path: %s", resourceType)
	}
	s.mu.Lock()
	s.fields[resourceType] = normalized
	s.mu.Unlock()
	return nil
}

func (s *StaticFieldMapSource) FieldsFor(resourceType string) ([]string, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.RLock()
	paths, ok := s.fields[strings.TrimSpace(resourceType)]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return append([]string(nil), paths...), true
}

// projectItem keeps only the mapped paths. Full paths become the projected
// keys so nested picks cannot collide.
func projectItem(item core.Item, paths []string) (core.Item, int) {
	projected := make(core.Item, len(paths))
	for _, path := range paths {
		if value, ok := item.Lookup(path); ok {
			projected[path] = value
		}
	}
	return projected, len(item)
}

var _ core.FieldMapSource = (*StaticFieldMapSource)(nil)
