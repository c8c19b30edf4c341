package score

import (
	"sort"
	"time"

	"genescore/domain/core"
)

// Mode tells how a snapshot was produced
type Mode string

const (
	ModeFull     Mode = "full"
	ModeTargeted Mode = "targeted"
	// ModeRestored snapshots are loaded from the aggregate cache; they carry no
	// per-source rows and cannot serve as a base for targeted runs.
	ModeRestored Mode = "restored"
)

// RowKey addresses one (gene, source) row
type RowKey struct {
	Gene   core.GeneID
	Source core.SourceName
}

// Snapshot is an immutable published score table. Nothing mutates a
// snapshot after it is built; recomputes derive new ones.
type Snapshot struct {
	Generation         uint64            `json:"generation"`
	ID                 core.SnapshotID   `json:"id"`
	Mode               Mode              `json:"mode"`
	ComputedAt         time.Time         `json:"computed_at"`
	Duration           time.Duration     `json:"duration"`
	ActiveSources      []core.SourceName `json:"active_sources"`
	TotalActiveSources int               `json:"total_active_sources"`
	Fingerprint        core.Fingerprint  `json:"fingerprint"`

	rows       map[core.GeneID]map[core.SourceName]NormalizedScore
	aggregates map[core.GeneID]GeneScoreAggregate
	ordered    []GeneScoreAggregate
}

// NewSnapshot assembles a snapshot. The maps are owned by the snapshot afterwards.
func NewSnapshot(rows map[core.GeneID]map[core.SourceName]NormalizedScore, aggregates map[core.GeneID]GeneScoreAggregate) *Snapshot {
	if rows == nil {
		rows = map[core.GeneID]map[core.SourceName]NormalizedScore{}
	}
	if aggregates == nil {
		aggregates = map[core.GeneID]GeneScoreAggregate{}
	}
	ordered := make([]GeneScoreAggregate, 0, len(aggregates))
	for _, agg := range aggregates {
		ordered = append(ordered, agg)
	}
	SortAggregates(ordered, SortByPercentage, true)
	return &Snapshot{
		rows:       rows,
		aggregates: aggregates,
		ordered:    ordered,
	}
}

// Empty returns the snapshot readers see before the first publish
func Empty() *Snapshot {
	return NewSnapshot(nil, nil)
}

// Aggregate looks up one gene
func (s *Snapshot) Aggregate(gene core.GeneID) (GeneScoreAggregate, bool) {
	agg, ok := s.aggregates[gene]
	return agg, ok
}

// Aggregates returns the aggregates ordered by percentage descending, gene
// ascending. The slice is shared; callers must not modify it.
func (s *Snapshot) Aggregates() []GeneScoreAggregate {
	return s.ordered
}

// GeneCount is the number of genes with an aggregate
func (s *Snapshot) GeneCount() int {
	return len(s.aggregates)
}

// Rows returns the per-source rows of one gene. The map is shared.
func (s *Snapshot) Rows(gene core.GeneID) map[core.SourceName]NormalizedScore {
	return s.rows[gene]
}

// RowTable exposes every row; shared, read-only
func (s *Snapshot) RowTable() map[core.GeneID]map[core.SourceName]NormalizedScore {
	return s.rows
}

// AggregateTable exposes every aggregate; shared, read-only
func (s *Snapshot) AggregateTable() map[core.GeneID]GeneScoreAggregate {
	return s.aggregates
}

// CanBaseTargeted reports whether a targeted run may derive from this snapshot
func (s *Snapshot) CanBaseTargeted() bool {
	return s != nil && s.Generation > 0 && s.Mode != ModeRestored
}

// SortField selects the ordering of a listing
type SortField string

const (
	SortByPercentage  SortField = "percentage_score"
	SortByTier        SortField = "tier"
	SortBySourceCount SortField = "source_count"
)

// SortAggregates sorts in place; ties fall back to percentage then gene id so
// every ordering is total and reproducible.
func SortAggregates(aggs []GeneScoreAggregate, field SortField, desc bool) {
	sort.SliceStable(aggs, func(i, j int) bool {
		a, b := aggs[i], aggs[j]
		var cmp int
		switch field {
		case SortByTier:
			// Lower rank is stronger; "descending" lists strongest first
			cmp = compareInt(b.Tier.Rank(), a.Tier.Rank())
		case SortBySourceCount:
			cmp = compareInt(a.SourceCount, b.SourceCount)
		}
		if cmp == 0 {
			cmp = compareFloat(a.PercentageScore, b.PercentageScore)
		}
		if cmp != 0 {
			if desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return a.GeneID < b.GeneID
	})
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
