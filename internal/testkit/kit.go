package testkit

import (
	"context"
	"fmt"

	"genescore/adapters/memory"
	"genescore/domain/source"
)

// TestKit bundles in-memory stores preloaded with synthetic evidence
type TestKit struct {
	Sources   *memory.SourceRepository
	Evidence  *memory.EvidenceRepository
	Cache     *memory.AggregateCache
	Generator *EvidenceGenerator
}

// NewTestKit creates stores and fills them from a generator
func NewTestKit(ctx context.Context, config EvidenceGeneratorConfig) (*TestKit, error) {
	kit := &TestKit{
		Sources:   memory.NewSourceRepository(),
		Evidence:  memory.NewEvidenceRepository(),
		Cache:     memory.NewAggregateCache(),
		Generator: NewEvidenceGenerator(config),
	}
	if err := kit.Load(ctx, kit.Generator.Sources(), kit.Generator); err != nil {
		return nil, err
	}
	return kit, nil
}

// Load saves the given definitions and the generator's records
func (k *TestKit) Load(ctx context.Context, defs []*source.Definition, gen *EvidenceGenerator) error {
	for _, def := range defs {
		if err := k.Sources.Save(ctx, def); err != nil {
			return fmt.Errorf("failed to save source %s: %w", def.Name, err)
		}
	}
	if _, err := k.Evidence.InsertBatch(ctx, gen.GenerateRecords()); err != nil {
		return fmt.Errorf("failed to insert synthetic evidence: %w", err)
	}
	return nil
}
