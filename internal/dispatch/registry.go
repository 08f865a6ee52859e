package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Registry is a concurrency-safe Resolver over a map of named targets.
type Registry struct {
	mu      sync.RWMutex
	targets map[string]Target
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{targets: make(map[string]Target)}
}

// Register adds or replaces the target under id.
func (r *Registry) Register(id string, target Target) error {
	if id == "" {
		return errors.New("dispatch: target id must not be empty")
	}
	if target == nil {
		return fmt.Errorf("dispatch: target %q is nil", id)
	}
	r.mu.Lock()
	r.targets[id] = target
	r.mu.Unlock()
	return nil
}

// Unregister removes id, reporting whether it was present.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.targets[id]
	delete(r.targets, id)
	return ok
}

// Lookup returns the target registered under id.
func (r *Registry) Lookup(id string) (Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.targets[id]
	return t, ok
}

// Resolve implements Resolver.
func (r *Registry) Resolve(_ context.Context, id string) (Target, error) {
	if t, ok := r.Lookup(id); ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNoSuchTarget, id)
}

// Names returns the registered ids, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.targets))
	for id := range r.targets {
		names = append(names, id)
	}
	sort.Strings(names)
	return names
}
