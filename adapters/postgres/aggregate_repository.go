package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"genescore/domain/core"
	"genescore/domain/score"
	"genescore/ports"

	"github.com/jmoiron/sqlx"
)

type aggregateRow struct {
	GeneID          string  `db:"gene_id"`
	GeneSymbol      string  `db:"gene_symbol"`
	SourceCount     int     `db:"source_count"`
	EvidenceCount   int     `db:"evidence_count"`
	RawScore        float64 `db:"raw_score"`
	PercentageScore float64 `db:"percentage_score"`
	Tier            string  `db:"tier"`
	Group           string  `db:"evidence_group"`
	Breakdown       []byte  `db:"breakdown"`
	Generation      int64   `db:"generation"`
}

// AggregateRepositoryImpl implements ports.AggregateCache on gene_score_aggregates
type AggregateRepositoryImpl struct {
	db *sqlx.DB
}

// NewAggregateRepository creates a new PostgreSQL aggregate cache
func NewAggregateRepository(db *sqlx.DB) ports.AggregateCache {
	return &AggregateRepositoryImpl{db: db}
}

// Store replaces the table contents with one generation
func (r *AggregateRepositoryImpl) Store(ctx context.Context, generation uint64, aggregates []score.GeneScoreAggregate) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM gene_score_aggregates`); err != nil {
		return fmt.Errorf("failed to clear aggregates: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO gene_score_aggregates (
			gene_id, gene_symbol, source_count, evidence_count, raw_score,
			percentage_score, tier, evidence_group, breakdown, generation, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10, NOW())
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare aggregate insert: %w", err)
	}
	defer stmt.Close()

	for _, agg := range aggregates {
		breakdown, err := json.Marshal(agg.Breakdown)
		if err != nil {
			return fmt.Errorf("failed to marshal breakdown: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			agg.GeneID.String(),
			agg.GeneSymbol,
			agg.SourceCount,
			agg.EvidenceCount,
			agg.RawScore,
			agg.PercentageScore,
			string(agg.Tier),
			string(agg.Group),
			string(breakdown),
			int64(generation),
		); err != nil {
			return fmt.Errorf("failed to insert aggregate for gene %s: %w", agg.GeneID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit aggregates: %w", err)
	}
	return nil
}

// Load reads the cached aggregates in published order
func (r *AggregateRepositoryImpl) Load(ctx context.Context) (uint64, []score.GeneScoreAggregate, error) {
	var rows []aggregateRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT gene_id, gene_symbol, source_count, evidence_count, raw_score,
			   percentage_score, tier, evidence_group, breakdown, generation
		FROM gene_score_aggregates
		ORDER BY percentage_score DESC, gene_id ASC
	`)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to load aggregates: %w", err)
	}

	var generation uint64
	out := make([]score.GeneScoreAggregate, 0, len(rows))
	for _, row := range rows {
		agg := score.GeneScoreAggregate{
			GeneID:          core.GeneID(row.GeneID),
			GeneSymbol:      row.GeneSymbol,
			SourceCount:     row.SourceCount,
			EvidenceCount:   row.EvidenceCount,
			RawScore:        row.RawScore,
			PercentageScore: row.PercentageScore,
			Tier:            score.Tier(row.Tier),
			Group:           score.Group(row.Group),
			Breakdown:       map[string]float64{},
		}
		if len(row.Breakdown) > 0 {
			if err := json.Unmarshal(row.Breakdown, &agg.Breakdown); err != nil {
				return 0, nil, fmt.Errorf("failed to decode breakdown of gene %s: %w", row.GeneID, err)
			}
		}
		if uint64(row.Generation) > generation {
			generation = uint64(row.Generation)
		}
		out = append(out, agg)
	}
	return generation, out, nil
}
