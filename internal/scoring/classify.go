package scoring

import (
	"genescore/domain/source"
)

// Classification is the mapped score of one record plus the labels that fell
// back to the rule's unmapped score
type Classification struct {
	Score    float64
	Unmapped []string
	// Fallback is set when the record had no usable label at all
	Fallback bool
}

// MapClassification scores a record's labels: best mapped label wins, unmapped
// labels score the rule's UnmappedScore, and a record with no label at all
// falls back to UnmappedScore too. The weight applies last.
func MapClassification(rule *source.ClassificationRule, labels []string) Classification {
	if len(labels) == 0 {
		return Classification{Score: clamp01(rule.UnmappedScore * rule.Weight), Fallback: true}
	}
	var out Classification
	best := 0.0
	for i, label := range labels {
		score, mapped := rule.Lookup(label)
		if !mapped {
			out.Unmapped = append(out.Unmapped, label)
		}
		if i == 0 || score > best {
			best = score
		}
	}
	out.Score = clamp01(best * rule.Weight)
	return out
}

// FixedScore is the constant contribution of a fixed rule
func FixedScore(rule *source.FixedRule) float64 {
	return clamp01(rule.Score)
}
