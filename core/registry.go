package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry resolves resource descriptors by type name.
type Registry interface {
	Register(descriptor ResourceDescriptor) error
	Get(resourceType string) (ResourceDescriptor, bool)
	List() []ResourceDescriptor
}

type ResourceRegistry struct {
	mu        sync.RWMutex
	resources map[string]ResourceDescriptor
}

func NewResourceRegistry() *ResourceRegistry {
	return &ResourceRegistry{resources: make(map[string]ResourceDescriptor)}
}

func (r *ResourceRegistry) Register(descriptor ResourceDescriptor) error {
	resourceType := strings.TrimSpace(descriptor.Type)
	if resourceType == "" {
		return fmt.Errorf("core: resource type is required")
	}
	if strings.TrimSpace(descriptor.ListEndpoint) == "" {
		return fmt.Errorf("core: resource list endpoint is required: %s", resourceType)
	}
	if strings.TrimSpace(descriptor.OrderKey) == "" {
		return fmt.Errorf("core: resource order key is required: %s", resourceType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.resources[resourceType]; exists {
		return fmt.Errorf("core: resource already registered: %s", resourceType)
	}
	descriptor.Type = resourceType
	r.resources[resourceType] = descriptor
	return nil
}

func (r *ResourceRegistry) Get(resourceType string) (ResourceDescriptor, bool) {
	resourceType = strings.TrimSpace(resourceType)
	if resourceType == "" {
		return ResourceDescriptor{}, false
	}
	r.mu.RLock()
	descriptor, ok := r.resources[resourceType]
	r.mu.RUnlock()
	return descriptor, ok
}

func (r *ResourceRegistry) List() []ResourceDescriptor {
	r.mu.RLock()
	keys := make([]string, 0, len(r.resources))
	for resourceType := range r.resources {
		keys = append(keys, resourceType)
	}
	descriptors := make([]ResourceDescriptor, 0, len(keys))
	sort.Strings(keys)
	for _, resourceType := range keys {
		descriptors = append(descriptors, r.resources[resourceType])
	}
	r.mu.RUnlock()
	return descriptors
}

var _ Registry = (*ResourceRegistry)(nil)
