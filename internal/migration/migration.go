package migration

import (
	"context"

	"genescore/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createSourceDefinitionsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create source_definitions table")
	}

	if err := r.createEvidenceRecordsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create evidence_records table")
	}

	if err := r.createGeneScoreAggregatesTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create gene_score_aggregates table")
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	return nil
}

func (r *MigrationRunner) createSourceDefinitionsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS source_definitions (
			name VARCHAR(100) PRIMARY KEY,
			display_name VARCHAR(200),
			origin VARCHAR(20) NOT NULL CHECK (origin IN ('pipeline', 'hybrid')),
			is_active BOOLEAN NOT NULL DEFAULT true,
			description TEXT NOT NULL DEFAULT '',
			rule JSONB NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	return err
}

func (r *MigrationRunner) createEvidenceRecordsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS evidence_records (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			gene_id VARCHAR(64) NOT NULL,
			gene_symbol VARCHAR(64) NOT NULL DEFAULT '',
			source_name VARCHAR(100) NOT NULL REFERENCES source_definitions(name) ON UPDATE CASCADE,
			detail TEXT NOT NULL DEFAULT '',
			payload JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	return err
}

func (r *MigrationRunner) createGeneScoreAggregatesTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS gene_score_aggregates (
			gene_id VARCHAR(64) PRIMARY KEY,
			gene_symbol VARCHAR(64) NOT NULL DEFAULT '',
			source_count INTEGER NOT NULL DEFAULT 0,
			evidence_count INTEGER NOT NULL DEFAULT 0,
			raw_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			percentage_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			tier VARCHAR(20) NOT NULL,
			evidence_group VARCHAR(30) NOT NULL,
			breakdown JSONB NOT NULL DEFAULT '{}'::jsonb,
			generation BIGINT NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_source_definitions_display_name
			ON source_definitions(display_name) WHERE display_name IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_evidence_records_gene_id ON evidence_records(gene_id)`,
		`CREATE INDEX IF NOT EXISTS idx_evidence_records_unit ON evidence_records(source_name, detail)`,
		`CREATE INDEX IF NOT EXISTS idx_gene_score_aggregates_percentage
			ON gene_score_aggregates(percentage_score DESC)`,
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
