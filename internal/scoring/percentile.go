package scoring

import (
	"sort"

	"genescore/domain/core"
	"genescore/domain/source"
)

// PercentileRanks converts values into average-rank percentiles in [0,1]:
// (avgRank-1)/(n-1), ties sharing the mean of their ranks. A single value
// ranks 1.0 since it is the strongest evidence the source holds.
func PercentileRanks(values []float64) []float64 {
	n := len(values)
	if n == 0 {
		return []float64{}
	}
	if n == 1 {
		return []float64{1}
	}

	type pair struct {
		value float64
		index int
	}
	pairs := make([]pair, n)
	for i, v := range values {
		pairs[i] = pair{value: v, index: i}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].value < pairs[j].value
	})

	ranks := make([]float64, n)
	i := 0
	for i < n {
		j := i + 1
		for j < n && pairs[j].value == pairs[i].value {
			j++
		}
		// Ranks i+1..j averaged over the tie group
		avgRank := float64(i+1) + float64(j-i-1)/2.0
		pct := (avgRank - 1) / float64(n-1)
		for k := i; k < j; k++ {
			ranks[pairs[k].index] = pct
		}
		i = j
	}
	return ranks
}

// NormalizeCounts ranks the nonzero gene magnitudes of one count source.
// Genes with zero magnitude get no entry at all. The weight scales the
// percentile after ranking and the result is clamped to [0,1].
func NormalizeCounts(rule *source.CountRule, magnitudes map[core.GeneID]float64) map[core.GeneID]float64 {
	genes := make([]core.GeneID, 0, len(magnitudes))
	for gene, m := range magnitudes {
		if m > 0 {
			genes = append(genes, gene)
		}
	}
	sort.Slice(genes, func(i, j int) bool { return genes[i] < genes[j] })

	values := make([]float64, len(genes))
	for i, gene := range genes {
		values[i] = magnitudes[gene]
	}
	ranks := PercentileRanks(values)

	out := make(map[core.GeneID]float64, len(genes))
	for i, gene := range genes {
		out[gene] = clamp01(ranks[i] * rule.Weight)
	}
	return out
}

// accumulate folds one record's magnitude into a gene magnitude
func accumulate(mode source.Accumulate, current float64, next int) float64 {
	if mode == source.AccumulateSum {
		return current + float64(next)
	}
	if float64(next) > current {
		return float64(next)
	}
	return current
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
