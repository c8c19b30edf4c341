package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"genescore/domain/core"
	"genescore/domain/evidence"
	"genescore/ports"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// recordRow mirrors evidence_records
type recordRow struct {
	ID         string    `db:"id"`
	GeneID     string    `db:"gene_id"`
	GeneSymbol string    `db:"gene_symbol"`
	SourceName string    `db:"source_name"`
	Detail     string    `db:"detail"`
	Payload    []byte    `db:"payload"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r recordRow) record() *evidence.Record {
	return &evidence.Record{
		ID:         core.RecordID(r.ID),
		GeneID:     core.GeneID(r.GeneID),
		GeneSymbol: r.GeneSymbol,
		SourceName: core.SourceName(r.SourceName),
		Detail:     r.Detail,
		Payload:    r.Payload,
		CreatedAt:  r.CreatedAt,
	}
}

// EvidenceRepositoryImpl implements ports.EvidenceRepository for PostgreSQL.
// Unit rewrites take a transaction-scoped advisory lock on the unit key and
// lock the rows they rewrite.
type EvidenceRepositoryImpl struct {
	db *sqlx.DB
}

// NewEvidenceRepository creates a new PostgreSQL evidence repository
func NewEvidenceRepository(db *sqlx.DB) ports.EvidenceRepository {
	return &EvidenceRepositoryImpl{db: db}
}

// List returns matching records ordered by source, gene, id
func (r *EvidenceRepositoryImpl) List(ctx context.Context, filter evidence.Filter) ([]*evidence.Record, error) {
	var (
		where []string
		args  []interface{}
	)
	if len(filter.Sources) > 0 {
		names := make([]string, len(filter.Sources))
		for i, s := range filter.Sources {
			names[i] = s.String()
		}
		args = append(args, pq.Array(names))
		where = append(where, fmt.Sprintf("source_name = ANY($%d)", len(args)))
	}
	if len(filter.Genes) > 0 {
		genes := make([]string, len(filter.Genes))
		for i, g := range filter.Genes {
			genes[i] = g.String()
		}
		args = append(args, pq.Array(genes))
		where = append(where, fmt.Sprintf("gene_id = ANY($%d)", len(args)))
	}

	query := `
		SELECT id, gene_id, gene_symbol, source_name, detail, payload, created_at
		FROM evidence_records`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY source_name, gene_id, id"

	var rows []recordRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list evidence: %w", err)
	}
	out := make([]*evidence.Record, len(rows))
	for i, row := range rows {
		out[i] = row.record()
	}
	return out, nil
}

// InsertBatch inserts records in one transaction
func (r *EvidenceRepositoryImpl) InsertBatch(ctx context.Context, records []*evidence.Record) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertRecords(ctx, tx, records); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit evidence batch: %w", err)
	}
	return len(records), nil
}

// ReplaceUnit deletes the unit's records and inserts the new ones atomically
func (r *EvidenceRepositoryImpl) ReplaceUnit(ctx context.Context, unit evidence.Unit, records []*evidence.Record) (evidence.Mutation, error) {
	return r.rewriteUnit(ctx, unit, records)
}

// DeleteUnit removes the unit's records
func (r *EvidenceRepositoryImpl) DeleteUnit(ctx context.Context, unit evidence.Unit) (evidence.Mutation, error) {
	return r.rewriteUnit(ctx, unit, nil)
}

func (r *EvidenceRepositoryImpl) rewriteUnit(ctx context.Context, unit evidence.Unit, records []*evidence.Record) (evidence.Mutation, error) {
	mut := evidence.Mutation{Unit: unit}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return mut, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, unit.LockKey()); err != nil {
		return mut, fmt.Errorf("failed to lock unit %s: %w", unit.Source, err)
	}

	var old []string
	err = tx.SelectContext(ctx, &old, `
		SELECT gene_id
		FROM evidence_records
		WHERE source_name = $1 AND ($2::text IS NULL OR detail = $2)
		FOR UPDATE
	`, unit.Source.String(), unit.Detail)
	if err != nil {
		return mut, fmt.Errorf("failed to lock unit rows: %w", err)
	}

	genes := make(evidence.GeneSet)
	for _, g := range old {
		genes.Add(core.GeneID(g))
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM evidence_records
		WHERE source_name = $1 AND ($2::text IS NULL OR detail = $2)
	`, unit.Source.String(), unit.Detail)
	if err != nil {
		return mut, fmt.Errorf("failed to delete unit records: %w", err)
	}
	deleted, _ := res.RowsAffected()

	if err := insertRecords(ctx, tx, records); err != nil {
		return mut, err
	}
	for _, rec := range records {
		genes.Add(rec.GeneID)
	}

	if err := tx.Commit(); err != nil {
		return mut, fmt.Errorf("failed to commit unit rewrite: %w", err)
	}

	mut.Inserted = len(records)
	mut.Deleted = int(deleted)
	mut.AffectedGenes = genes.Sorted()
	return mut, nil
}

func insertRecords(ctx context.Context, tx *sqlx.Tx, records []*evidence.Record) error {
	if len(records) == 0 {
		return nil
	}
	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO evidence_records (id, gene_id, gene_symbol, source_name, detail, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare evidence insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = core.NewRecordID()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		payload := string(rec.Payload)
		if payload == "" {
			payload = "{}"
		}
		if _, err := stmt.ExecContext(ctx,
			rec.ID.String(),
			rec.GeneID.String(),
			rec.GeneSymbol,
			rec.SourceName.String(),
			rec.Detail,
			payload,
			rec.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert evidence for gene %s: %w", rec.GeneID, err)
		}
	}
	return nil
}
