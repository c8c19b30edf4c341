package memory

import (
	"context"
	"sort"
	"sync"

	"genescore/domain/core"
	"genescore/domain/source"
)

// SourceRepository keeps definitions in a map
type SourceRepository struct {
	mu   sync.RWMutex
	defs map[core.SourceName]*source.Definition
}

// NewSourceRepository creates an empty repository
func NewSourceRepository() *SourceRepository {
	return &SourceRepository{defs: make(map[core.SourceName]*source.Definition)}
}

// List returns copies of every definition ordered by name
func (r *SourceRepository) List(ctx context.Context) ([]*source.Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*source.Definition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Get returns a copy of one definition
func (r *SourceRepository) Get(ctx context.Context, name core.SourceName) (*source.Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[name]
	if !ok {
		return nil, core.ErrSourceNotFound
	}
	return def.Clone(), nil
}

// Save stores a copy of def
func (r *SourceRepository) Save(ctx context.Context, def *source.Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.defs[def.Name] = def.Clone()
	return nil
}
