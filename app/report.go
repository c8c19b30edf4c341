package app

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"genescore/domain/score"
)

// Report renders a Markdown summary of the published snapshot: its status,
// the tier distribution and the top genes with their breakdowns
func (s *ScoreService) Report(top int) string {
	if top <= 0 {
		top = 25
	}
	st := s.publisher.Status()
	page := score.Query{Limit: top}.Apply(s.publisher.Snapshot())

	var b strings.Builder
	b.WriteString("# Gene evidence scores\n\n")
	if st.Generation == 0 {
		b.WriteString("_No snapshot has been published yet._\n")
		return b.String()
	}

	fmt.Fprintf(&b, "Generation **%d** (%s)", st.Generation, st.Mode)
	if st.ComputedAt != nil {
		fmt.Fprintf(&b, ", computed %s", st.ComputedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, ", %d active sources, %d genes.\n\n", st.TotalActiveSources, st.Summary.Genes)
	if st.LastError != "" {
		fmt.Fprintf(&b, "> Last recompute error: %s\n\n", st.LastError)
	}

	b.WriteString("## Distribution\n\n")
	b.WriteString("| Mean | Median | P90 | Max |\n|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %.2f | %.2f | %.2f | %.2f |\n\n", st.Summary.Mean, st.Summary.Median, st.Summary.P90, st.Summary.Max)

	b.WriteString("| Tier | Genes |\n|---|---|\n")
	for _, th := range score.TierThresholds {
		fmt.Fprintf(&b, "| %s | %d |\n", th.Tier, st.Summary.Tiers[th.Tier])
	}

	fmt.Fprintf(&b, "\n## Top %d genes\n\n", len(page.Items))
	b.WriteString("| # | Gene | Symbol | Percentage | Sources | Tier | Breakdown |\n|---|---|---|---|---|---|---|\n")
	for i, agg := range page.Items {
		fmt.Fprintf(&b, "| %d | %s | %s | %.2f | %d | %s | %s |\n",
			i+1, agg.GeneID, agg.GeneSymbol, agg.PercentageScore, agg.SourceCount, agg.Tier, breakdownLine(agg.Breakdown))
	}
	return b.String()
}

func breakdownLine(breakdown map[string]float64) string {
	labels := make([]string, 0, len(breakdown))
	for label, v := range breakdown {
		if v > 0 {
			labels = append(labels, label)
		}
	}
	sort.Strings(labels)
	parts := make([]string, len(labels))
	for i, label := range labels {
		parts[i] = fmt.Sprintf("%s %.3g", label, breakdown[label])
	}
	return strings.Join(parts, ", ")
}
