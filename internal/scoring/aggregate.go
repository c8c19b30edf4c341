package scoring

import (
	"math"
	"sort"

	"genescore/domain/core"
	"genescore/domain/score"

	"gonum.org/v1/gonum/floats"
)

// AggregateGene reduces one gene's rows to its published aggregate.
// Scores are summed in source-name order so repeated runs agree to the bit.
func AggregateGene(gene core.GeneID, rows map[core.SourceName]score.NormalizedScore, totalActive int) score.GeneScoreAggregate {
	if len(rows) == 0 {
		return score.NoEvidence(gene)
	}

	names := make([]core.SourceName, 0, len(rows))
	for name := range rows {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	agg := score.GeneScoreAggregate{
		GeneID:      gene,
		SourceCount: len(names),
		Breakdown:   make(map[string]float64, len(names)),
	}
	scores := make([]float64, len(names))
	for i, name := range names {
		row := rows[name]
		scores[i] = row.Score
		agg.EvidenceCount += row.EvidenceCount
		agg.Breakdown[row.Label] = round(row.Score, 3)
		if row.GeneSymbol != "" && (agg.GeneSymbol == "" || row.GeneSymbol < agg.GeneSymbol) {
			agg.GeneSymbol = row.GeneSymbol
		}
	}
	agg.RawScore = floats.Sum(scores)
	exact := percentage(agg.RawScore, totalActive)
	agg.PercentageScore = round(exact, 2)
	// tiers see the exact value; rounding is for display only
	agg.Tier, agg.Group = score.Classify(agg.SourceCount, exact)
	return agg
}

// Percentage is raw/total*100 rounded to two decimals and clamped to
// [0,100]; a zero denominator yields 0.
func Percentage(raw float64, totalActive int) float64 {
	return round(percentage(raw, totalActive), 2)
}

func percentage(raw float64, totalActive int) float64 {
	if totalActive <= 0 {
		return 0
	}
	pct := raw / float64(totalActive) * 100
	switch {
	case pct < 0 || math.IsNaN(pct):
		return 0
	case pct > 100:
		return 100
	}
	return pct
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
