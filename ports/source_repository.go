package ports

import (
	"context"

	"genescore/domain/core"
	"genescore/domain/source"
)

// SourceRepository persists source definitions
type SourceRepository interface {
	// List returns every definition, active or not, ordered by name
	List(ctx context.Context) ([]*source.Definition, error)
	// Get returns core.ErrSourceNotFound when the name is unknown
	Get(ctx context.Context, name core.SourceName) (*source.Definition, error)
	// Save inserts or replaces a definition by name
	Save(ctx context.Context, def *source.Definition) error
}
