package scoring

import (
	"genescore/domain/score"

	"github.com/montanaflynn/stats"
)

// Summary describes the percentage-score distribution of a snapshot
type Summary struct {
	Genes  int                `json:"genes"`
	Mean   float64            `json:"mean"`
	Median float64            `json:"median"`
	P90    float64            `json:"p90"`
	Max    float64            `json:"max"`
	Tiers  map[score.Tier]int `json:"tiers"`
}

// Summarize computes distribution statistics over a snapshot. An empty
// snapshot yields zeros rather than an error.
func Summarize(snap *score.Snapshot) Summary {
	aggs := snap.Aggregates()
	sum := Summary{Genes: len(aggs), Tiers: make(map[score.Tier]int)}
	if len(aggs) == 0 {
		return sum
	}

	data := make(stats.Float64Data, len(aggs))
	for i, agg := range aggs {
		data[i] = agg.PercentageScore
		sum.Tiers[agg.Tier]++
	}
	sum.Mean, _ = data.Mean()
	sum.Median, _ = data.Median()
	sum.P90, _ = data.Percentile(90)
	sum.Max, _ = data.Max()

	sum.Mean = round(sum.Mean, 2)
	sum.Median = round(sum.Median, 2)
	sum.P90 = round(sum.P90, 2)
	return sum
}
