package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/podcast2transcript/p2t/internal/worker"
)

// ErrBackendNotRegistered is returned by [Registry.Create] when no factory has
// been registered under the requested backend name.
var ErrBackendNotRegistered = errors.New("config: backend not registered")

// BackendFactory builds an inference backend from the worker settings.
type BackendFactory func(WorkerConfig) (worker.Backend, error)

// Registry maps backend names to their constructors. It is safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]BackendFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]BackendFactory)}
}

// Register registers a backend factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) Register(name string, factory BackendFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = factory
}

// Names returns the registered backend names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for n := range r.backends {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Create instantiates the backend selected by cfg.Backend.
// Returns [ErrBackendNotRegistered] if the name is unknown.
func (r *Registry) Create(cfg WorkerConfig) (worker.Backend, error) {
	r.mu.RLock()
	f, ok := r.backends[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrBackendNotRegistered, cfg.Backend, r.Names())
	}
	return f(cfg)
}
