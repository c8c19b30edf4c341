package app

import (
	"context"
	"fmt"

	"genescore/domain/core"
	"genescore/domain/source"
	"genescore/internal"
	"genescore/internal/registry"
)

// FullTrigger schedules a recompute of every source
type FullTrigger interface {
	TriggerFull(reason string)
}

// SourceService manages source definitions. Every change that affects
// scoring schedules a full recompute.
type SourceService struct {
	registry *registry.Registry
	trigger  FullTrigger
	logger   *internal.Logger
}

// NewSourceService creates a source service
func NewSourceService(reg *registry.Registry, trigger FullTrigger, logger *internal.Logger) *SourceService {
	if logger == nil {
		logger = internal.DefaultLogger.With("sources")
	}
	return &SourceService{registry: reg, trigger: trigger, logger: logger}
}

// List returns every source
func (s *SourceService) List(ctx context.Context) ([]*source.Definition, error) {
	defs, err := s.registry.List(ctx)
	return defs, classify(err)
}

// Get returns one source
func (s *SourceService) Get(ctx context.Context, name core.SourceName) (*source.Definition, error) {
	def, err := s.registry.Get(ctx, name)
	return def, classify(err)
}

// Create registers a source from its serializable form
func (s *SourceService) Create(ctx context.Context, spec source.Spec) (*source.Definition, error) {
	def, err := spec.Definition()
	if err != nil {
		return nil, classify(err)
	}
	created, err := s.registry.Create(ctx, def)
	if err != nil {
		return nil, classify(err)
	}
	if created.IsActive {
		s.trigger.TriggerFull(fmt.Sprintf("source %s created", created.Name))
	}
	return created, nil
}

// Update replaces a source definition. The name in the path wins over the
// one in the body.
func (s *SourceService) Update(ctx context.Context, name core.SourceName, spec source.Spec) (*source.Definition, error) {
	spec.Name = name.String()
	def, err := spec.Definition()
	if err != nil {
		return nil, classify(err)
	}
	if spec.Active == nil {
		current, err := s.registry.Get(ctx, name)
		if err != nil {
			return nil, classify(err)
		}
		def.IsActive = current.IsActive
	}
	updated, changed, err := s.registry.Update(ctx, def)
	if err != nil {
		return nil, classify(err)
	}
	if changed {
		s.trigger.TriggerFull(fmt.Sprintf("source %s updated", name))
	}
	return updated, nil
}

// Activate includes a source in scoring
func (s *SourceService) Activate(ctx context.Context, name core.SourceName) (*source.Definition, error) {
	return s.setActive(ctx, name, true)
}

// Deactivate removes a source from scoring and from the percentage
// denominator. Its evidence is kept.
func (s *SourceService) Deactivate(ctx context.Context, name core.SourceName) (*source.Definition, error) {
	return s.setActive(ctx, name, false)
}

func (s *SourceService) setActive(ctx context.Context, name core.SourceName, active bool) (*source.Definition, error) {
	def, changed, err := s.registry.SetActive(ctx, name, active)
	if err != nil {
		return nil, classify(err)
	}
	if changed {
		verb := "deactivated"
		if active {
			verb = "activated"
		}
		s.logger.Info("source %s %s", name, verb)
		s.trigger.TriggerFull(fmt.Sprintf("source %s %s", name, verb))
	}
	return def, nil
}

// Seed applies a parsed seed file
func (s *SourceService) Seed(ctx context.Context, seed *registry.SeedFile) (registry.SeedResult, error) {
	res, err := s.registry.Seed(ctx, seed)
	if err != nil {
		return res, classify(err)
	}
	if res.Changed() {
		s.trigger.TriggerFull("seed applied")
	}
	return res, nil
}

// SeedFromFile loads and applies a seed file
func (s *SourceService) SeedFromFile(ctx context.Context, path string) (registry.SeedResult, error) {
	seed, err := registry.LoadSeedFile(path)
	if err != nil {
		return registry.SeedResult{}, classify(err)
	}
	return s.Seed(ctx, seed)
}
