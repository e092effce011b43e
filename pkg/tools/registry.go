package tools

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/bitop-dev/chatstream/pkg/ai"
)

// Registry holds the hosted tools, keyed by type.
type Registry struct {
	mu     sync.RWMutex
	tools  map[ai.ToolType]Tool
	byItem map[string]Tool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:  make(map[ai.ToolType]Tool),
		byItem: make(map[string]Tool),
	}
}

// Register adds a tool. Panics if a tool with the same type is already registered.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	typ := t.Type()
	if _, exists := r.tools[typ]; exists {
		panic(fmt.Sprintf("tools: tool %q already registered", typ))
	}
	r.tools[typ] = t
	r.byItem[t.ItemType()] = t
}

// Get retrieves a tool by type. Returns nil if not found.
func (r *Registry) Get(typ ai.ToolType) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[typ]
}

// ByItemType retrieves the tool whose calls carry the given output item type.
// Returns nil for item types no registered tool produces.
func (r *Registry) ByItemType(itemType string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byItem[itemType]
}

// Types returns the registered tool types in sorted order.
func (r *Registry) Types() []ai.ToolType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]ai.ToolType, 0, len(r.tools))
	for t := range r.tools {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Resolve merges defaults with requested, keeping first-seen order and
// dropping duplicates. Unknown types and tools whose requirements cfg does
// not meet are dropped with a warning.
func (r *Registry) Resolve(defaults, requested []ai.ToolType, cfg ai.ProviderConfig, logger *slog.Logger) []Tool {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	seen := make(map[ai.ToolType]bool)
	var out []Tool
	for _, typ := range append(append([]ai.ToolType(nil), defaults...), requested...) {
		if seen[typ] {
			continue
		}
		seen[typ] = true

		t := r.Get(typ)
		if t == nil {
			logger.Warn("tools: unknown tool dropped", "tool", typ)
			continue
		}
		if err := t.Check(cfg); err != nil {
			logger.Warn("tools: tool dropped", "tool", typ, "reason", err)
			continue
		}
		out = append(out, t)
	}
	return out
}
