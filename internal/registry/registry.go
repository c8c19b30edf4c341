package registry

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"genescore/domain/core"
	"genescore/domain/source"
	"genescore/internal"
	"genescore/ports"
)

// Registry is the authority on source definitions. It caches the repository
// contents and enforces name and display-label uniqueness on every write.
type Registry struct {
	repo   ports.SourceRepository
	logger *internal.Logger

	mu     sync.RWMutex
	loaded bool
	defs   map[core.SourceName]*source.Definition
}

// New creates a registry over repo
func New(repo ports.SourceRepository, logger *internal.Logger) *Registry {
	if logger == nil {
		logger = internal.DefaultLogger.With("registry")
	}
	return &Registry{repo: repo, logger: logger, defs: make(map[core.SourceName]*source.Definition)}
}

// Load fills the cache from the repository
func (r *Registry) Load(ctx context.Context) error {
	defs, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sources: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs = make(map[core.SourceName]*source.Definition, len(defs))
	for _, def := range defs {
		r.defs[def.Name] = def
	}
	r.loaded = true
	return nil
}

func (r *Registry) ensureLoaded(ctx context.Context) error {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()
	if loaded {
		return nil
	}
	return r.Load(ctx)
}

// List returns copies of every definition ordered by name
func (r *Registry) List(ctx context.Context) ([]*source.Definition, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}
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
func (r *Registry) Get(ctx context.Context, name core.SourceName) (*source.Definition, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrSourceNotFound, name)
	}
	return def.Clone(), nil
}

// Create registers a new source
func (r *Registry) Create(ctx context.Context, def *source.Definition) (*source.Definition, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	if err := validateDefinition(def); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[def.Name]; exists {
		return nil, fmt.Errorf("%w: %s", core.ErrDuplicateSource, def.Name)
	}
	if err := r.checkLabel(def); err != nil {
		return nil, err
	}

	stored := def.Clone()
	now := time.Now().UTC()
	stored.CreatedAt, stored.UpdatedAt = now, now
	if err := r.repo.Save(ctx, stored); err != nil {
		return nil, err
	}
	r.defs[stored.Name] = stored
	r.logger.Info("registered %s source %s (%s rule)", stored.Origin, stored.Name, stored.Rule.Kind())
	return stored.Clone(), nil
}

// Update replaces an existing definition. It reports whether anything that
// affects scoring changed.
func (r *Registry) Update(ctx context.Context, def *source.Definition) (*source.Definition, bool, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, false, err
	}
	if err := validateDefinition(def); err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, exists := r.defs[def.Name]
	if !exists {
		return nil, false, fmt.Errorf("%w: %s", core.ErrSourceNotFound, def.Name)
	}
	if err := r.checkLabel(def); err != nil {
		return nil, false, err
	}
	if same(prev, def) {
		return prev.Clone(), false, nil
	}

	stored := def.Clone()
	stored.CreatedAt = prev.CreatedAt
	stored.UpdatedAt = time.Now().UTC()
	if err := r.repo.Save(ctx, stored); err != nil {
		return nil, false, err
	}
	r.defs[stored.Name] = stored
	r.logger.Info("updated source %s", stored.Name)
	return stored.Clone(), true, nil
}

// SetActive activates or deactivates a source. It reports whether the flag
// actually changed.
func (r *Registry) SetActive(ctx context.Context, name core.SourceName, active bool) (*source.Definition, bool, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, exists := r.defs[name]
	if !exists {
		return nil, false, fmt.Errorf("%w: %s", core.ErrSourceNotFound, name)
	}
	if prev.IsActive == active {
		return prev.Clone(), false, nil
	}

	stored := prev.Clone()
	stored.IsActive = active
	stored.UpdatedAt = time.Now().UTC()
	if err := r.repo.Save(ctx, stored); err != nil {
		return nil, false, err
	}
	r.defs[name] = stored
	r.logger.Info("source %s active=%t", name, active)
	return stored.Clone(), true, nil
}

// checkLabel rejects a display label already used by another source.
// Caller holds r.mu.
func (r *Registry) checkLabel(def *source.Definition) error {
	label := normalizeLabel(def.Label())
	for name, other := range r.defs {
		if name == def.Name {
			continue
		}
		if normalizeLabel(other.Label()) == label {
			return fmt.Errorf("%w: %q is used by %s", core.ErrDuplicateDisplayName, def.Label(), name)
		}
	}
	return nil
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

func validateDefinition(def *source.Definition) error {
	if def == nil {
		return core.NewValidationError("source", "missing definition")
	}
	if _, err := core.ParseSourceName(def.Name.String()); err != nil {
		return err
	}
	if !def.Origin.Valid() {
		return core.NewValidationError("origin", fmt.Sprintf("unknown origin %q", def.Origin))
	}
	spec, err := source.SpecOf(def.Rule)
	if err != nil {
		return err
	}
	return spec.Validate()
}

// same compares the persisted fields of two definitions
func same(a, b *source.Definition) bool {
	sa, errA := source.SpecFromDefinition(a)
	sb, errB := source.SpecFromDefinition(b)
	if errA != nil || errB != nil {
		return false
	}
	return reflect.DeepEqual(sa, sb)
}
