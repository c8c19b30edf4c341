package score

import (
	"genescore/domain/core"
	"genescore/domain/source"
)

// NormalizedScore is one source's contribution to one gene, in [0,1].
// It is derived data: recomputable from sources and evidence at any time.
type NormalizedScore struct {
	GeneID        core.GeneID     `json:"gene_id"`
	GeneSymbol    string          `json:"gene_symbol,omitempty"`
	SourceName    core.SourceName `json:"source_name"`
	Score         float64         `json:"score"`
	Label         string          `json:"label"`
	Origin        source.Origin   `json:"origin"`
	EvidenceCount int             `json:"evidence_count"`
}

// Tier is the discrete confidence label of a gene
type Tier string

const (
	TierComprehensive Tier = "comprehensive"
	TierMultiSource   Tier = "multi_source"
	TierEstablished   Tier = "established"
	TierPreliminary   Tier = "preliminary"
	TierMinimal       Tier = "minimal"
	TierNoEvidence    Tier = "no_evidence"
)

// Group is the coarse bucket above tiers
type Group string

const (
	GroupWellSupported Group = "well_supported"
	GroupEmerging      Group = "emerging_evidence"
	GroupInsufficient  Group = "insufficient"
)

// TierThreshold is one row of the tier table. Both bounds are inclusive.
type TierThreshold struct {
	Tier          Tier
	Group         Group
	MinSources    int
	MinPercentage float64
}

// TierThresholds are evaluated in order; the first match wins
var TierThresholds = []TierThreshold{
	{Tier: TierComprehensive, Group: GroupWellSupported, MinSources: 4, MinPercentage: 50},
	{Tier: TierMultiSource, Group: GroupWellSupported, MinSources: 3, MinPercentage: 35},
	{Tier: TierEstablished, Group: GroupWellSupported, MinSources: 2, MinPercentage: 20},
	{Tier: TierPreliminary, Group: GroupEmerging, MinSources: 1, MinPercentage: 10},
	{Tier: TierMinimal, Group: GroupEmerging, MinSources: 1, MinPercentage: 0},
}

// Classify returns the tier and group for a gene
func Classify(sourceCount int, percentage float64) (Tier, Group) {
	for _, th := range TierThresholds {
		if sourceCount >= th.MinSources && percentage >= th.MinPercentage {
			return th.Tier, th.Group
		}
	}
	return TierNoEvidence, GroupInsufficient
}

// Rank orders tiers from strongest (0) to no evidence
func (t Tier) Rank() int {
	for i, th := range TierThresholds {
		if th.Tier == t {
			return i
		}
	}
	return len(TierThresholds)
}

// Valid reports whether t is a known tier
func (t Tier) Valid() bool {
	return t == TierNoEvidence || t.Rank() < len(TierThresholds)
}

// GeneScoreAggregate is the published per-gene result
type GeneScoreAggregate struct {
	GeneID          core.GeneID        `json:"gene_id" db:"gene_id"`
	GeneSymbol      string             `json:"gene_symbol,omitempty" db:"gene_symbol"`
	SourceCount     int                `json:"source_count" db:"source_count"`
	EvidenceCount   int                `json:"evidence_count" db:"evidence_count"`
	RawScore        float64            `json:"raw_score" db:"raw_score"`
	PercentageScore float64            `json:"percentage_score" db:"percentage_score"`
	Tier            Tier               `json:"tier" db:"tier"`
	Group           Group              `json:"group" db:"evidence_group"`
	Breakdown       map[string]float64 `json:"breakdown" db:"-"`
}

// NoEvidence is the explicit aggregate for a gene without scored evidence
func NoEvidence(gene core.GeneID) GeneScoreAggregate {
	return GeneScoreAggregate{
		GeneID:    gene,
		Tier:      TierNoEvidence,
		Group:     GroupInsufficient,
		Breakdown: map[string]float64{},
	}
}
