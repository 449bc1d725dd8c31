package providers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Factory builds a provider of type P from its config entry C.
type Factory[C any, P any] func(ctx context.Context, cfg C) (P, error)

// Registry maps a config "type" value to the factory that serves it.
type Registry[C any, P any] struct {
	mu        sync.RWMutex
	kind      string
	factories map[string]Factory[C, P]
}

// NewRegistry creates an empty registry; kind names the capability in errors.
func NewRegistry[C any, P any](kind string) *Registry[C, P] {
	return &Registry[C, P]{
		kind:      kind,
		factories: make(map[string]Factory[C, P]),
	}
}

// Register adds a factory for typ.
func (r *Registry[C, P]) Register(typ string, factory Factory[C, P]) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if factory == nil {
		return errors.New(r.kind + " provider factory cannot be nil")
	}
	if _, exists := r.factories[typ]; exists {
		return fmt.Errorf("%s provider already registered: %s", r.kind, typ)
	}
	r.factories[typ] = factory
	return nil
}

// MustRegister is Register for package-level wiring.
func (r *Registry[C, P]) MustRegister(typ string, factory Factory[C, P]) {
	if err := r.Register(typ, factory); err != nil {
		panic(err)
	}
}

// Create builds the provider registered for typ.
func (r *Registry[C, P]) Create(ctx context.Context, typ string, cfg C) (P, error) {
	r.mu.RLock()
	factory, ok := r.factories[typ]
	r.mu.RUnlock()

	if !ok {
		var zero P
		return zero, fmt.Errorf("%s provider not found: %q", r.kind, typ)
	}
	return factory(ctx, cfg)
}

// Types lists registered type names in sorted order.
func (r *Registry[C, P]) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.factories))
	for typ := range r.factories {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}
