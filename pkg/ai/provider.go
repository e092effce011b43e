package ai

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Request is everything a provider needs for one streaming call.
type Request struct {
	Messages []Turn
	Config   ProviderConfig
	// Tools are the hosted tools the caller asked for. Providers merge them
	// with their own defaults.
	Tools []ToolType
}

// Provider streams a model response for a request.
//
// Stream returns a channel of canonical events. The channel carries at most
// one terminal event (done or error) and is always closed, including when
// ctx is cancelled, so callers can range over it safely. A cancelled stream
// closes without a terminal event.
type Provider interface {
	// Kind returns the provider identifier, e.g. "openai".
	Kind() ProviderKind

	// ValidateConfig reports whether cfg can be served by this provider.
	// It does no I/O.
	ValidateConfig(cfg ProviderConfig) bool

	Stream(ctx context.Context, req Request) <-chan StreamEvent
}

// Registry is the dispatch table from provider kind to implementation.
type Registry struct {
	mu        sync.RWMutex
	providers map[ProviderKind]Provider
}

// NewRegistry returns a registry holding the given providers.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[ProviderKind]Provider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds a provider. Panics if its kind is already registered.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kind := p.Kind()
	if _, exists := r.providers[kind]; exists {
		panic(fmt.Sprintf("ai: provider %q already registered", kind))
	}
	r.providers[kind] = p
}

// Lookup returns the provider for kind.
func (r *Registry) Lookup(kind ProviderKind) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[kind]
	return p, ok
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []ProviderKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]ProviderKind, 0, len(r.providers))
	for k := range r.providers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
