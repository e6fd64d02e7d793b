package provider

import (
	"fmt"
	"sync"
)

// Registry holds the adapters registered at startup. Dispatch by Kind goes
// through here; registering the same kind twice is a programming error and
// is rejected.
type Registry struct {
	mu        sync.RWMutex
	providers map[Kind]SearchProvider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[Kind]SearchProvider)}
}

// Register adds an adapter. Duplicate kinds are rejected.
func (r *Registry) Register(p SearchProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[p.Kind()]; exists {
		return fmt.Errorf("provider %s already registered", p.Kind())
	}
	r.providers[p.Kind()] = p
	return nil
}

// Get returns the adapter for a kind.
func (r *Registry) Get(kind Kind) (SearchProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[kind]
	if !ok {
		return nil, fmt.Errorf("provider %s not registered", kind)
	}
	return p, nil
}
