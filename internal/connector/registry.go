package connector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownType is returned when no factory is registered for a type.
var ErrUnknownType = errors.New("connector: unknown type")

// SourceFactory opens a Source for spec.
type SourceFactory func(ctx context.Context, spec Spec) (Source, error)

// DestinationFactory opens a Destination for spec.
type DestinationFactory func(ctx context.Context, spec Spec) (Destination, error)

// Registry maps connector type names to factories. Build one at startup and
// pass it to whatever needs to open connectors.
type Registry struct {
	mu           sync.RWMutex
	sources      map[string]SourceFactory
	destinations map[string]DestinationFactory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sources:      make(map[string]SourceFactory),
		destinations: make(map[string]DestinationFactory),
	}
}

func key(kind string) string { return strings.ToLower(strings.TrimSpace(kind)) }

// RegisterSource installs f for kind, replacing any previous factory.
func (r *Registry) RegisterSource(kind string, f SourceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[key(kind)] = f
}

// RegisterDestination installs f for kind, replacing any previous factory.
func (r *Registry) RegisterDestination(kind string, f DestinationFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destinations[key(kind)] = f
}

// OpenSource instantiates the source registered for spec.Type.
func (r *Registry) OpenSource(ctx context.Context, spec Spec) (Source, error) {
	r.mu.RLock()
	f, ok := r.sources[key(spec.Type)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: source %q (available: %s)", ErrUnknownType, spec.Type, strings.Join(r.SourceTypes(), ", "))
	}
	return f(ctx, spec)
}

// OpenDestination instantiates the destination registered for spec.Type.
func (r *Registry) OpenDestination(ctx context.Context, spec Spec) (Destination, error) {
	r.mu.RLock()
	f, ok := r.destinations[key(spec.Type)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: destination %q (available: %s)", ErrUnknownType, spec.Type, strings.Join(r.DestinationTypes(), ", "))
	}
	return f(ctx, spec)
}

// HasSource reports whether kind has a source factory.
func (r *Registry) HasSource(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sources[key(kind)]
	return ok
}

// HasDestination reports whether kind has a destination factory.
func (r *Registry) HasDestination(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.destinations[key(kind)]
	return ok
}

// SourceTypes lists registered source types, sorted.
func (r *Registry) SourceTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.sources)
}

// DestinationTypes lists registered destination types, sorted.
func (r *Registry) DestinationTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.destinations)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
