package kernel

import (
	"fmt"
	"sync"

	"ex-paimon/pkg/paimon"
)

// ServiceRegistry is the in-memory paimon.ServiceRegistry.
type ServiceRegistry struct {
	mu       sync.RWMutex
	services map[string]any
}

// NewServiceRegistry creates an empty registry.
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{services: make(map[string]any)}
}

// Register binds service to name once.
func (r *ServiceRegistry) Register(name string, service any) error {
	switch {
	case name == "":
		return fmt.Errorf("register service: empty name")
	case service == nil:
		return fmt.Errorf("register service %s: nil service", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.services[name]; exists {
		return fmt.Errorf("register service %s: %w", name, paimon.ErrServiceAlreadyRegistered)
	}
	r.services[name] = service

	return nil
}

// Resolve returns the service bound to name.
func (r *ServiceRegistry) Resolve(name string) (any, error) {
	if name == "" {
		return nil, fmt.Errorf("resolve service: empty name")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	service, exists := r.services[name]
	if !exists {
		return nil, fmt.Errorf("resolve service %s: %w", name, paimon.ErrServiceNotFound)
	}

	return service, nil
}

var _ paimon.ServiceRegistry = (*ServiceRegistry)(nil)
