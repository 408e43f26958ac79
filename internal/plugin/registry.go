package plugin

import (
	"context"
	"fmt"
	"sync"
)

// Registry manages plugin factories in registration order
type Registry interface {
	// Register adds a new plugin factory
	Register(factory Factory) error

	// Get retrieves a plugin factory by name
	Get(name string) (Factory, bool)

	// List returns all registered factories in registration order
	List() []Factory

	// CreateSet attaches every registered plugin, in order, into a new Set
	CreateSet(ctx context.Context, config Config) (Set, error)
}

// defaultRegistry is the concrete implementation
type defaultRegistry struct {
	factories []Factory
	byName    map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry creates a new plugin registry
func NewRegistry() Registry {
	return &defaultRegistry{
		byName: make(map[string]Factory),
	}
}

// Register adds a new plugin factory
func (r *defaultRegistry) Register(factory Factory) error {
	if factory == nil {
		return ErrNilFactory
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := factory.Name()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("plugin %s already registered", name)
	}

	r.factories = append(r.factories, factory)
	r.byName[name] = factory
	return nil
}

// Get retrieves a plugin factory by name
func (r *defaultRegistry) Get(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.byName[name]
	return factory, ok
}

// List returns all registered factories in registration order
func (r *defaultRegistry) List() []Factory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factories := make([]Factory, len(r.factories))
	copy(factories, r.factories)
	return factories
}

// CreateSet attaches every registered plugin, in order, into a new Set.
// If one plugin fails, the ones already attached are closed.
func (r *defaultRegistry) CreateSet(ctx context.Context, config Config) (Set, error) {
	set := NewSet(config)

	for _, factory := range r.List() {
		if err := set.Attach(ctx, factory); err != nil {
			set.Close()
			return nil, err
		}
	}

	return set, nil
}
