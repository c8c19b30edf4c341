package source

import (
	"strings"
)

// RuleKind tags the variant of a ScoringRule
type RuleKind string

const (
	KindCount          RuleKind = "count"
	KindClassification RuleKind = "classification"
	KindFixed          RuleKind = "fixed"
)

// Accumulate selects how several records' magnitudes form one gene magnitude
type Accumulate string

const (
	AccumulateMax Accumulate = "max"
	AccumulateSum Accumulate = "sum"
)

// ScoringRule is the closed set {*CountRule, *ClassificationRule, *FixedRule}.
// Consumers dispatch with a type switch; the unexported method keeps the set closed.
type ScoringRule interface {
	Kind() RuleKind
	scoringRule()
}

// CountRule scores a source by the size of a collection in each record,
// rank-normalized across all genes of the source.
type CountRule struct {
	// Field is a gjson path into the payload; empty counts every record as 1
	Field      string
	Weight     float64
	Accumulate Accumulate
}

// ClassificationRule maps discrete labels to fixed scores
type ClassificationRule struct {
	Field         string
	Weight        float64
	WeightMap     map[string]float64
	UnmappedScore float64
}

// FixedRule assigns the same score to every gene with a record
type FixedRule struct {
	Score float64
}

func (*CountRule) Kind() RuleKind          { return KindCount }
func (*ClassificationRule) Kind() RuleKind { return KindClassification }
func (*FixedRule) Kind() RuleKind          { return KindFixed }

func (*CountRule) scoringRule()          {}
func (*ClassificationRule) scoringRule() {}
func (*FixedRule) scoringRule()          {}

// NewCountRule builds a count rule; a zero weight means 1
func NewCountRule(field string, weight float64, acc Accumulate) *CountRule {
	if weight == 0 {
		weight = 1
	}
	if acc == "" {
		acc = AccumulateMax
	}
	return &CountRule{Field: field, Weight: weight, Accumulate: acc}
}

// NewClassificationRule builds a classification rule with case-normalized keys
func NewClassificationRule(field string, weight float64, weightMap map[string]float64, unmapped float64) *ClassificationRule {
	if weight == 0 {
		weight = 1
	}
	normalized := make(map[string]float64, len(weightMap))
	for label, score := range weightMap {
		key := NormalizeLabel(label)
		// Two spellings of one label keep the stronger score
		if prev, ok := normalized[key]; !ok || score > prev {
			normalized[key] = score
		}
	}
	return &ClassificationRule{
		Field:         field,
		Weight:        weight,
		WeightMap:     normalized,
		UnmappedScore: unmapped,
	}
}

// NewFixedRule builds a fixed rule
func NewFixedRule(score float64) *FixedRule {
	return &FixedRule{Score: score}
}

// Lookup returns the mapped score for a label and whether it was mapped.
// Unmapped labels return the rule's UnmappedScore.
func (r *ClassificationRule) Lookup(label string) (float64, bool) {
	if score, ok := r.WeightMap[NormalizeLabel(label)]; ok {
		return score, true
	}
	return r.UnmappedScore, false
}

// NormalizeLabel folds case and surrounding whitespace
func NormalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
