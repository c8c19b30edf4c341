package app

import (
	"context"
	"sort"

	"genescore/domain/core"
	"genescore/domain/score"
	"genescore/internal/refresh"
)

// Publisher is the read side of the refresh coordinator
type Publisher interface {
	Snapshot() *score.Snapshot
	Status() refresh.Status
	Refresh(ctx context.Context) error
}

// GeneScore is the read model of one gene
type GeneScore struct {
	score.GeneScoreAggregate
	Sources    []score.NormalizedScore `json:"sources"`
	Generation uint64                  `json:"generation"`
}

// ScoreService serves reads from the last published snapshot. Reads never
// wait on a recompute and never fail because of one.
type ScoreService struct {
	publisher Publisher
}

// NewScoreService creates a score service
func NewScoreService(publisher Publisher) *ScoreService {
	return &ScoreService{publisher: publisher}
}

// Get returns the aggregate of one gene, or an explicit no-evidence
// aggregate when the gene has no scored evidence
func (s *ScoreService) Get(gene string) (GeneScore, error) {
	id, err := core.ParseGeneID(gene)
	if err != nil {
		return GeneScore{}, classify(err)
	}
	snap := s.publisher.Snapshot()
	agg, ok := snap.Aggregate(id)
	if !ok {
		agg = score.NoEvidence(id)
	}

	rows := snap.Rows(id)
	out := GeneScore{
		GeneScoreAggregate: agg,
		Sources:            make([]score.NormalizedScore, 0, len(rows)),
		Generation:         snap.Generation,
	}
	for _, row := range rows {
		out.Sources = append(out.Sources, row)
	}
	sort.Slice(out.Sources, func(i, j int) bool {
		return out.Sources[i].SourceName < out.Sources[j].SourceName
	})
	return out, nil
}

// List filters, sorts and pages the published aggregates
func (s *ScoreService) List(q score.Query) (score.Page, error) {
	if err := validateQuery(q); err != nil {
		return score.Page{}, classify(err)
	}
	return q.Apply(s.publisher.Snapshot()), nil
}

// Status reports the coordinator state
func (s *ScoreService) Status() refresh.Status {
	return s.publisher.Status()
}

// Refresh runs a full recompute and waits for it
func (s *ScoreService) Refresh(ctx context.Context) error {
	return s.publisher.Refresh(ctx)
}

func validateQuery(q score.Query) error {
	switch q.Sort {
	case "", score.SortByPercentage, score.SortByTier, score.SortBySourceCount:
	default:
		return core.NewValidationError("sort", "must be percentage_score, tier or source_count")
	}
	if q.Tier != "" && !q.Tier.Valid() {
		return core.NewValidationError("tier", "unknown tier "+string(q.Tier))
	}
	switch q.Group {
	case "", score.GroupWellSupported, score.GroupEmerging, score.GroupInsufficient:
	default:
		return core.NewValidationError("group", "unknown group "+string(q.Group))
	}
	if q.MinPercentage < 0 || q.MinPercentage > 100 {
		return core.NewValidationError("min_percentage", "must be between 0 and 100")
	}
	if q.Limit < 0 || q.Offset < 0 || q.MinSources < 0 {
		return core.NewValidationError("query", "limit, offset and min_sources cannot be negative")
	}
	return nil
}
