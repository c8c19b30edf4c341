package scoring

import (
	"sort"

	"genescore/domain/core"
	"genescore/domain/evidence"
	"genescore/domain/score"
	"genescore/domain/source"
)

// SourceSet is the registry as one run sees it: every known definition and
// the active subset in name order
type SourceSet struct {
	all    map[core.SourceName]*source.Definition
	active []*source.Definition
}

// NewSourceSet indexes definitions; later duplicates of a name win
func NewSourceSet(defs []*source.Definition) *SourceSet {
	s := &SourceSet{all: make(map[core.SourceName]*source.Definition, len(defs))}
	for _, d := range defs {
		if d == nil || d.Rule == nil {
			continue
		}
		s.all[d.Name] = d
	}
	for _, d := range s.all {
		if d.IsActive {
			s.active = append(s.active, d)
		}
	}
	sort.Slice(s.active, func(i, j int) bool { return s.active[i].Name < s.active[j].Name })
	return s
}

// Active returns the definition if the source exists and is active
func (s *SourceSet) Active(name core.SourceName) (*source.Definition, bool) {
	d, ok := s.all[name]
	if !ok || !d.IsActive {
		return nil, false
	}
	return d, true
}

// ActiveDefinitions lists active sources in name order
func (s *SourceSet) ActiveDefinitions() []*source.Definition {
	return s.active
}

// ActiveNames lists active source names in order
func (s *SourceSet) ActiveNames() []core.SourceName {
	names := make([]core.SourceName, len(s.active))
	for i, d := range s.active {
		names[i] = d.Name
	}
	return names
}

// Count is the shared percentage denominator
func (s *SourceSet) Count() int {
	return len(s.active)
}

// partition groups records by active source. Records of unknown or inactive
// sources are dropped and counted per source name.
func partition(set *SourceSet, records []*evidence.Record) (map[core.SourceName][]*evidence.Record, map[core.SourceName]int) {
	bySource := make(map[core.SourceName][]*evidence.Record)
	excluded := make(map[core.SourceName]int)
	for _, rec := range records {
		if _, ok := set.Active(rec.SourceName); !ok {
			excluded[rec.SourceName]++
			continue
		}
		bySource[rec.SourceName] = append(bySource[rec.SourceName], rec)
	}
	return bySource, excluded
}

// Combine folds per-source tables (pipeline and hybrid alike) into one table
// keyed by gene then source. Each (gene, source) pair keeps exactly one row;
// rows are never merged across sources.
func Combine(tables ...map[core.GeneID]score.NormalizedScore) map[core.GeneID]map[core.SourceName]score.NormalizedScore {
	out := make(map[core.GeneID]map[core.SourceName]score.NormalizedScore)
	for _, table := range tables {
		for gene, row := range table {
			CombineRow(out, gene, row)
		}
	}
	return out
}

// CombineRow inserts one row; a second row for the same pair keeps the stronger
func CombineRow(out map[core.GeneID]map[core.SourceName]score.NormalizedScore, gene core.GeneID, row score.NormalizedScore) {
	bySource, ok := out[gene]
	if !ok {
		bySource = make(map[core.SourceName]score.NormalizedScore)
		out[gene] = bySource
	}
	if prev, exists := bySource[row.SourceName]; exists && prev.Score >= row.Score {
		return
	}
	bySource[row.SourceName] = row
}
