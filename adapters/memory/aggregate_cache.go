package memory

import (
	"context"
	"sync"

	"genescore/domain/score"
)

// AggregateCache holds the last stored generation
type AggregateCache struct {
	mu         sync.RWMutex
	generation uint64
	aggregates []score.GeneScoreAggregate
}

// NewAggregateCache creates an empty cache
func NewAggregateCache() *AggregateCache {
	return &AggregateCache{}
}

// Store replaces the cached aggregates
func (c *AggregateCache) Store(ctx context.Context, generation uint64, aggregates []score.GeneScoreAggregate) error {
	cp := make([]score.GeneScoreAggregate, len(aggregates))
	copy(cp, aggregates)

	c.mu.Lock()
	c.generation = generation
	c.aggregates = cp
	c.mu.Unlock()
	return nil
}

// Load returns the cached aggregates
func (c *AggregateCache) Load(ctx context.Context) (uint64, []score.GeneScoreAggregate, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cp := make([]score.GeneScoreAggregate, len(c.aggregates))
	copy(cp, c.aggregates)
	return c.generation, cp, nil
}
