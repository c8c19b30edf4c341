package ports

import (
	"context"

	"genescore/domain/evidence"
)

// EvidenceRepository stores evidence records. Mutations that rewrite a unit
// (a source, or one detail within it) hold an exclusive lock on that unit for
// their duration; plain inserts do not.
type EvidenceRepository interface {
	// List returns the records matching filter ordered by source, gene, id
	List(ctx context.Context, filter evidence.Filter) ([]*evidence.Record, error)
	// InsertBatch appends records and returns how many were stored
	InsertBatch(ctx context.Context, records []*evidence.Record) (int, error)
	// ReplaceUnit atomically swaps every record of unit for records
	ReplaceUnit(ctx context.Context, unit evidence.Unit, records []*evidence.Record) (evidence.Mutation, error)
	// DeleteUnit removes every record of unit
	DeleteUnit(ctx context.Context, unit evidence.Unit) (evidence.Mutation, error)
}
