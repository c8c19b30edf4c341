package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"genescore/domain/core"
	"genescore/domain/evidence"
)

// EvidenceRepository keeps records in memory. Unit rewrites serialize on a
// per-unit mutex; the record table itself sits behind an RWMutex.
type EvidenceRepository struct {
	mu      sync.RWMutex
	records []*evidence.Record

	unitsMu sync.Mutex
	units   map[string]*sync.Mutex
}

// NewEvidenceRepository creates an empty repository
func NewEvidenceRepository() *EvidenceRepository {
	return &EvidenceRepository{units: make(map[string]*sync.Mutex)}
}

func (r *EvidenceRepository) lockUnit(unit evidence.Unit) func() {
	r.unitsMu.Lock()
	m, ok := r.units[unit.LockKey()]
	if !ok {
		m = &sync.Mutex{}
		r.units[unit.LockKey()] = m
	}
	r.unitsMu.Unlock()

	m.Lock()
	return m.Unlock
}

// List returns copies of matching records ordered by source, gene, id
func (r *EvidenceRepository) List(ctx context.Context, filter evidence.Filter) ([]*evidence.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sources := make(map[core.SourceName]bool, len(filter.Sources))
	for _, s := range filter.Sources {
		sources[s] = true
	}
	genes := make(map[core.GeneID]bool, len(filter.Genes))
	for _, g := range filter.Genes {
		genes[g] = true
	}

	r.mu.RLock()
	out := make([]*evidence.Record, 0, len(r.records))
	for _, rec := range r.records {
		if len(sources) > 0 && !sources[rec.SourceName] {
			continue
		}
		if len(genes) > 0 && !genes[rec.GeneID] {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	r.mu.RUnlock()

	sortRecords(out)
	return out, nil
}

// InsertBatch appends records, assigning ids and timestamps where missing
func (r *EvidenceRepository) InsertBatch(ctx context.Context, records []*evidence.Record) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	prepared := prepare(records)

	r.mu.Lock()
	r.records = append(r.records, prepared...)
	r.mu.Unlock()
	return len(prepared), nil
}

// ReplaceUnit swaps the unit's records for the given ones
func (r *EvidenceRepository) ReplaceUnit(ctx context.Context, unit evidence.Unit, records []*evidence.Record) (evidence.Mutation, error) {
	unlock := r.lockUnit(unit)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return evidence.Mutation{Unit: unit}, err
	}
	prepared := prepare(records)

	r.mu.Lock()
	defer r.mu.Unlock()

	genes := make(evidence.GeneSet)
	kept, deleted := r.without(unit, genes)
	for _, rec := range prepared {
		genes.Add(rec.GeneID)
	}
	r.records = append(kept, prepared...)

	return evidence.Mutation{
		Unit:          unit,
		Inserted:      len(prepared),
		Deleted:       deleted,
		AffectedGenes: genes.Sorted(),
	}, nil
}

// DeleteUnit removes every record of the unit
func (r *EvidenceRepository) DeleteUnit(ctx context.Context, unit evidence.Unit) (evidence.Mutation, error) {
	unlock := r.lockUnit(unit)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return evidence.Mutation{Unit: unit}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	genes := make(evidence.GeneSet)
	kept, deleted := r.without(unit, genes)
	r.records = kept

	return evidence.Mutation{
		Unit:          unit,
		Deleted:       deleted,
		AffectedGenes: genes.Sorted(),
	}, nil
}

// without returns the records outside unit, collecting genes of the removed
// ones. Caller holds r.mu.
func (r *EvidenceRepository) without(unit evidence.Unit, genes evidence.GeneSet) ([]*evidence.Record, int) {
	kept := make([]*evidence.Record, 0, len(r.records))
	deleted := 0
	for _, rec := range r.records {
		if unit.Matches(rec) {
			genes.Add(rec.GeneID)
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	return kept, deleted
}

func prepare(records []*evidence.Record) []*evidence.Record {
	now := time.Now().UTC()
	out := make([]*evidence.Record, len(records))
	for i, rec := range records {
		cp := *rec
		if cp.ID == "" {
			cp.ID = core.NewRecordID()
		}
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = now
		}
		if len(cp.Payload) == 0 {
			cp.Payload = []byte("{}")
		}
		out[i] = &cp
	}
	return out
}

func sortRecords(records []*evidence.Record) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.SourceName != b.SourceName {
			return a.SourceName < b.SourceName
		}
		if a.GeneID != b.GeneID {
			return a.GeneID < b.GeneID
		}
		return a.ID < b.ID
	})
}
