package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"genescore/domain/core"
	"genescore/domain/source"
	"genescore/ports"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// sourceRow mirrors source_definitions
type sourceRow struct {
	Name        string         `db:"name"`
	DisplayName sql.NullString `db:"display_name"`
	Origin      string         `db:"origin"`
	IsActive    bool           `db:"is_active"`
	Description string         `db:"description"`
	Rule        []byte         `db:"rule"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r sourceRow) definition() (*source.Definition, error) {
	var spec source.RuleSpec
	if err := json.Unmarshal(r.Rule, &spec); err != nil {
		return nil, fmt.Errorf("failed to decode rule of source %s: %w", r.Name, err)
	}
	rule, err := spec.Rule()
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", r.Name, err)
	}
	return &source.Definition{
		Name:        core.SourceName(r.Name),
		DisplayName: r.DisplayName.String,
		Origin:      source.Origin(r.Origin),
		IsActive:    r.IsActive,
		Description: r.Description,
		Rule:        rule,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}

// SourceRepositoryImpl implements ports.SourceRepository for PostgreSQL
type SourceRepositoryImpl struct {
	db *sqlx.DB
}

// NewSourceRepository creates a new PostgreSQL source repository
func NewSourceRepository(db *sqlx.DB) ports.SourceRepository {
	return &SourceRepositoryImpl{db: db}
}

const sourceColumns = `name, display_name, origin, is_active, description, rule, created_at, updated_at`

// List returns every definition ordered by name
func (r *SourceRepositoryImpl) List(ctx context.Context) ([]*source.Definition, error) {
	var rows []sourceRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+sourceColumns+`
		FROM source_definitions
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}

	defs := make([]*source.Definition, 0, len(rows))
	for _, row := range rows {
		def, err := row.definition()
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Get retrieves one definition by name
func (r *SourceRepositoryImpl) Get(ctx context.Context, name core.SourceName) (*source.Definition, error) {
	var row sourceRow
	err := r.db.GetContext(ctx, &row, `
		SELECT `+sourceColumns+`
		FROM source_definitions
		WHERE name = $1
	`, name.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrSourceNotFound
		}
		return nil, fmt.Errorf("failed to get source %s: %w", name, err)
	}
	return row.definition()
}

// Save upserts a definition by name
func (r *SourceRepositoryImpl) Save(ctx context.Context, def *source.Definition) error {
	spec, err := source.SpecOf(def.Rule)
	if err != nil {
		return err
	}
	ruleJSON, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("failed to marshal rule: %w", err)
	}

	var displayName sql.NullString
	if def.DisplayName != "" {
		displayName = sql.NullString{String: def.DisplayName, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO source_definitions (name, display_name, origin, is_active, description, rule, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, NOW(), NOW())
		ON CONFLICT (name) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			origin = EXCLUDED.origin,
			is_active = EXCLUDED.is_active,
			description = EXCLUDED.description,
			rule = EXCLUDED.rule,
			updated_at = NOW()
	`, def.Name.String(), displayName, string(def.Origin), def.IsActive, def.Description, string(ruleJSON))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation on display_name
			return fmt.Errorf("%w: %s", core.ErrDuplicateDisplayName, def.DisplayName)
		}
		return fmt.Errorf("failed to save source %s: %w", def.Name, err)
	}
	return nil
}
