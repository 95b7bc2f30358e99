package scraper

import (
	"fmt"
	"sync"

	"surfcast/internal/types"
)

// Registry dispatches to an Extractor by source identifier.
type Registry struct {
	mu         sync.RWMutex
	extractors map[types.SourceID]Extractor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{extractors: make(map[types.SourceID]Extractor)}
}

// Register adds or replaces the extractor for a source.
func (r *Registry) Register(source types.SourceID, e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[source] = e
}

// Get returns the extractor for a source.
func (r *Registry) Get(source types.SourceID) (Extractor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.extractors[source]
	if !ok {
		return nil, fmt.Errorf("no extractor registered for source %q", source)
	}
	return e, nil
}

// Sources lists registered source identifiers.
func (r *Registry) Sources() []types.SourceID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.SourceID, 0, len(r.extractors))
	for s := range r.extractors {
		out = append(out, s)
	}
	return out
}
