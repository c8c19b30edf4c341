package scoring

import (
	"genescore/domain/core"
	"genescore/domain/evidence"
	"genescore/domain/score"
	"genescore/domain/source"
)

// sourceResult is the normalized table of one source plus what went wrong
// while building it
type sourceResult struct {
	name       core.SourceName
	rows       map[core.GeneID]score.NormalizedScore
	unresolved int
	unmapped   map[string]int
}

// geneAccumulator gathers one gene's evidence within a single source
type geneAccumulator struct {
	symbol    string
	records   int
	magnitude float64
	best      float64
	seen      bool
}

func (g *geneAccumulator) addSymbol(symbol string) {
	if symbol == "" {
		return
	}
	if g.symbol == "" || symbol < g.symbol {
		g.symbol = symbol
	}
}

// scoreSource normalizes every record of one source into one row per gene.
// Several records of a gene collapse to their maximum; count sources are
// ranked over the whole set of genes passed in.
func scoreSource(def *source.Definition, records []*evidence.Record) sourceResult {
	res := sourceResult{
		name:     def.Name,
		rows:     make(map[core.GeneID]score.NormalizedScore),
		unmapped: make(map[string]int),
	}
	genes := make(map[core.GeneID]*geneAccumulator)
	acc := func(gene core.GeneID) *geneAccumulator {
		g, ok := genes[gene]
		if !ok {
			g = &geneAccumulator{}
			genes[gene] = g
		}
		return g
	}

	switch rule := def.Rule.(type) {
	case *source.CountRule:
		for _, rec := range records {
			g := acc(rec.GeneID)
			g.records++
			g.addSymbol(rec.GeneSymbol)
			ex := Extract(rec, rule)
			if !ex.Resolved {
				res.unresolved++
			}
			g.magnitude = accumulate(rule.Accumulate, g.magnitude, ex.Magnitude)
		}
		magnitudes := make(map[core.GeneID]float64, len(genes))
		for gene, g := range genes {
			magnitudes[gene] = g.magnitude
		}
		for gene, pct := range NormalizeCounts(rule, magnitudes) {
			g := genes[gene]
			g.best, g.seen = pct, true
		}

	case *source.ClassificationRule:
		for _, rec := range records {
			g := acc(rec.GeneID)
			g.records++
			g.addSymbol(rec.GeneSymbol)
			ex := Extract(rec, rule)
			c := MapClassification(rule, ex.Labels)
			if c.Fallback {
				res.unresolved++
			}
			for _, label := range c.Unmapped {
				res.unmapped[source.NormalizeLabel(label)]++
			}
			if !g.seen || c.Score > g.best {
				g.best, g.seen = c.Score, true
			}
		}

	case *source.FixedRule:
		fixed := FixedScore(rule)
		for _, rec := range records {
			g := acc(rec.GeneID)
			g.records++
			g.addSymbol(rec.GeneSymbol)
			g.best, g.seen = fixed, true
		}
	}

	for gene, g := range genes {
		if !g.seen {
			continue
		}
		res.rows[gene] = score.NormalizedScore{
			GeneID:        gene,
			GeneSymbol:    g.symbol,
			SourceName:    def.Name,
			Score:         g.best,
			Label:         def.Label(),
			Origin:        def.Origin,
			EvidenceCount: g.records,
		}
	}
	return res
}
