// Package registry maps worker type names to worker constructors.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nmslite/hostgatherer/internal/worker"
)

// Factory builds a fresh, unconfigured worker.
type Factory func() worker.Worker

// Descriptor describes a registered worker type. It is captured once at registration.
type Descriptor struct {
	Type       string                 `json:"type"`
	Parameters worker.ParameterSchema `json:"parameters"`
	Available  bool                   `json:"available"`
}

type entry struct {
	factory    Factory
	descriptor Descriptor
}

// Registry holds every known worker type. Registration happens at start up, lookups are
// safe for concurrent use afterwards.
type Registry struct {
	entries map[string]entry
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]entry),
	}
}

// Register associates typeName with factory. A prototype worker is built once to capture
// its parameter schema and to probe its runtime prerequisites; the result is cached.
func (r *Registry) Register(typeName string, factory Factory) error {
	key := normalize(typeName)
	if key == "" {
		return fmt.Errorf("worker type name cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("worker %s: factory cannot be nil", key)
	}

	prototype := factory()
	if prototype == nil {
		return fmt.Errorf("worker %s: factory returned nil", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[key]; exists {
		return fmt.Errorf("worker %s already registered", key)
	}

	r.entries[key] = entry{
		factory: factory,
		descriptor: Descriptor{
			Type:       key,
			Parameters: prototype.Parameters(),
			Available:  prototype.Valid(),
		},
	}
	return nil
}

// MustRegister is Register for package initialization; it panics on error.
func (r *Registry) MustRegister(typeName string, factory Factory) {
	if err := r.Register(typeName, factory); err != nil {
		panic(err)
	}
}

// Create returns a new worker of the given type or a *worker.LookupError.
func (r *Registry) Create(typeName string) (worker.Worker, error) {
	r.mu.RLock()
	e, ok := r.entries[normalize(typeName)]
	r.mu.RUnlock()

	if !ok {
		return nil, &worker.LookupError{Type: typeName}
	}
	return e.factory(), nil
}

// Descriptor returns the descriptor of a registered type.
func (r *Registry) Descriptor(typeName string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[normalize(typeName)]
	if !ok {
		return Descriptor{}, &worker.LookupError{Type: typeName}
	}
	return e.descriptor, nil
}

// Available reports the cached capability flag of a registered type.
func (r *Registry) Available(typeName string) bool {
	d, err := r.Descriptor(typeName)
	return err == nil && d.Available
}

// List returns all descriptors sorted by type name
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Descriptor, 0, len(r.entries))
	for _, e := range r.entries {
		result = append(result, e.descriptor)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Type < result[j].Type
	})
	return result
}

func normalize(typeName string) string {
	return strings.ToLower(strings.TrimSpace(typeName))
}
