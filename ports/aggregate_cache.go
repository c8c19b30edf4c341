package ports

import (
	"context"

	"genescore/domain/score"
)

// AggregateCache keeps the last published aggregates so a restart can serve
// scores before its first recompute. It is fully regenerable.
type AggregateCache interface {
	// Store replaces the cached table with the aggregates of one generation
	Store(ctx context.Context, generation uint64, aggregates []score.GeneScoreAggregate) error
	// Load returns the cached generation; zero and no aggregates when empty
	Load(ctx context.Context) (uint64, []score.GeneScoreAggregate, error)
}
