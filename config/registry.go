package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dcshock/imgpipe/model"
	"github.com/dcshock/imgpipe/pipeline"
)

// Factory builds an estimator from its stage entry.
type Factory func(ref StageRef) (model.Estimator, error)

// Registry maps estimator kinds to factories. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under the given kind. Overwrites any existing
// registration.
func (r *Registry) Register(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.factories == nil {
		r.factories = make(map[string]Factory)
	}
	r.factories[kind] = f
}

// Get returns the factory for kind, or nil and false if not found.
func (r *Registry) Get(kind string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[kind]
	return f, ok
}

// MustGet returns the factory for kind, or panics if not found.
func (r *Registry) MustGet(kind string) Factory {
	f, ok := r.Get(kind)
	if !ok {
		panic(fmt.Sprintf("config: estimator %q not registered", kind))
	}
	return f
}

// Names returns all registered kinds, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ObserverRegistry maps names to run observers. Safe for concurrent use.
type ObserverRegistry struct {
	mu        sync.RWMutex
	observers map[string]pipeline.Observer
}

// NewObserverRegistry returns an empty observer registry.
func NewObserverRegistry() *ObserverRegistry {
	return &ObserverRegistry{observers: make(map[string]pipeline.Observer)}
}

// Register adds an observer under the given name.
func (r *ObserverRegistry) Register(name string, o pipeline.Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.observers == nil {
		r.observers = make(map[string]pipeline.Observer)
	}
	r.observers[name] = o
}

// Get returns the observer for name.
func (r *ObserverRegistry) Get(name string) (pipeline.Observer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.observers[name]
	return o, ok
}
