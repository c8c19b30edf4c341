package evidence

import (
	"encoding/json"
	"sort"
	"time"

	"genescore/domain/core"
)

// Record is one piece of evidence linking a gene to a source. Several records
// may exist for the same (gene, source) pair; they are never deduplicated.
type Record struct {
	ID         core.RecordID   `json:"id" db:"id"`
	GeneID     core.GeneID     `json:"gene_id" db:"gene_id"`
	GeneSymbol string          `json:"gene_symbol,omitempty" db:"gene_symbol"`
	SourceName core.SourceName `json:"source_name" db:"source_name"`
	Detail     string          `json:"detail,omitempty" db:"detail"`
	Payload    json.RawMessage `json:"payload" db:"payload"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// Unit addresses the records one ingestion step owns: a whole source, or one
// detail (provider, publication) within it when Detail is set.
type Unit struct {
	Source core.SourceName `json:"source"`
	Detail *string         `json:"detail,omitempty"`
}

// Matches reports whether a record belongs to the unit
func (u Unit) Matches(r *Record) bool {
	if r.SourceName != u.Source {
		return false
	}
	return u.Detail == nil || *u.Detail == r.Detail
}

// LockKey is a stable key identifying the unit for exclusive locking
func (u Unit) LockKey() string {
	if u.Detail == nil {
		return u.Source.String()
	}
	return u.Source.String() + "\x1f" + *u.Detail
}

// Filter narrows an evidence listing. Empty slices mean "no restriction".
type Filter struct {
	Sources []core.SourceName
	Genes   []core.GeneID
}

// Mutation reports what an ingestion step changed
type Mutation struct {
	Unit          Unit          `json:"unit"`
	Inserted      int           `json:"inserted"`
	Deleted       int           `json:"deleted"`
	AffectedGenes []core.GeneID `json:"affected_genes"`
}

// AffectedGeneCount is the number of distinct genes touched
func (m Mutation) AffectedGeneCount() int {
	return len(m.AffectedGenes)
}

// GeneSet collects distinct gene ids
type GeneSet map[core.GeneID]struct{}

// Add inserts ids into the set
func (s GeneSet) Add(ids ...core.GeneID) {
	for _, id := range ids {
		s[id] = struct{}{}
	}
}

// Sorted returns the ids in ascending order
func (s GeneSet) Sorted() []core.GeneID {
	out := make([]core.GeneID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// GenesOf returns the distinct sorted genes of a batch
func GenesOf(records []*Record) []core.GeneID {
	set := make(GeneSet, len(records))
	for _, r := range records {
		set.Add(r.GeneID)
	}
	return set.Sorted()
}
