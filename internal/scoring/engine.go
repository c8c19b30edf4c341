package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"genescore/domain/core"
	"genescore/domain/evidence"
	"genescore/domain/score"
	"genescore/domain/source"
	"genescore/internal"
	"genescore/internal/errors"

	"golang.org/x/sync/errgroup"
)

// Options tunes the engine
type Options struct {
	// MaxParallelSources bounds the per-source fan-out inside one run
	MaxParallelSources int
	Logger             *internal.Logger
}

// Engine turns sources and evidence into snapshots. It holds no state
// between runs; every call is a pure function of its inputs.
type Engine struct {
	maxParallel int
	logger      *internal.Logger
}

// NewEngine creates an engine
func NewEngine(opts Options) *Engine {
	if opts.MaxParallelSources <= 0 {
		opts.MaxParallelSources = 4
	}
	if opts.Logger == nil {
		opts.Logger = internal.DefaultLogger.With("scoring")
	}
	return &Engine{maxParallel: opts.MaxParallelSources, logger: opts.Logger}
}

// Scope is what a bounded evidence mutation touched
type Scope struct {
	Sources []core.SourceName `json:"sources"`
	Genes   []core.GeneID     `json:"genes"`
}

// Plan is the evidence a targeted run needs: every record of WholeSources
// (count rules rank globally) and the records of Genes for GeneSources.
type Plan struct {
	WholeSources []core.SourceName
	GeneSources  []core.SourceName
	Genes        []core.GeneID
}

// Empty reports whether the plan has nothing to recompute
func (p Plan) Empty() bool {
	return len(p.WholeSources) == 0 && len(p.GeneSources) == 0
}

// Filters converts the plan into repository filters
func (p Plan) Filters() []evidence.Filter {
	var filters []evidence.Filter
	if len(p.WholeSources) > 0 {
		filters = append(filters, evidence.Filter{Sources: p.WholeSources})
	}
	if len(p.GeneSources) > 0 && len(p.Genes) > 0 {
		filters = append(filters, evidence.Filter{Sources: p.GeneSources, Genes: p.Genes})
	}
	return filters
}

// Report summarizes one run for logs, metrics and status
type Report struct {
	Mode              score.Mode                         `json:"mode"`
	SourcesRecomputed []core.SourceName                  `json:"sources_recomputed"`
	GenesRecomputed   int                                `json:"genes_recomputed"`
	RecordsScored     int                                `json:"records_scored"`
	ExcludedRecords   map[core.SourceName]int            `json:"excluded_records,omitempty"`
	UnresolvedFields  map[core.SourceName]int            `json:"unresolved_fields,omitempty"`
	UnmappedLabels    map[core.SourceName]map[string]int `json:"unmapped_labels,omitempty"`
	Duration          time.Duration                      `json:"duration"`
}

// PlanTargeted decides which sources must be re-ranked in full and which can
// be recomputed for the affected genes only.
func (e *Engine) PlanTargeted(set *SourceSet, scope Scope) Plan {
	var plan Plan
	seen := make(map[core.SourceName]bool)
	for _, name := range scope.Sources {
		if seen[name] {
			continue
		}
		seen[name] = true
		def, ok := set.Active(name)
		if !ok {
			continue
		}
		if _, isCount := def.Rule.(*source.CountRule); isCount {
			plan.WholeSources = append(plan.WholeSources, name)
		} else {
			plan.GeneSources = append(plan.GeneSources, name)
		}
	}
	sort.Slice(plan.WholeSources, func(i, j int) bool { return plan.WholeSources[i] < plan.WholeSources[j] })
	sort.Slice(plan.GeneSources, func(i, j int) bool { return plan.GeneSources[i] < plan.GeneSources[j] })
	genes := make(evidence.GeneSet, len(scope.Genes))
	genes.Add(scope.Genes...)
	plan.Genes = genes.Sorted()
	return plan
}

// Full recomputes every source and every gene
func (e *Engine) Full(ctx context.Context, set *SourceSet, records []*evidence.Record) (*score.Snapshot, Report, error) {
	start := time.Now()
	report := newReport(score.ModeFull)

	bySource, excluded := partition(set, records)
	report.ExcludedRecords = excluded

	results, err := e.scoreSources(ctx, set.ActiveDefinitions(), bySource)
	if err != nil {
		return nil, report, err
	}

	tables := make([]map[core.GeneID]score.NormalizedScore, len(results))
	for i, res := range results {
		tables[i] = res.rows
		report.absorb(res)
	}
	for _, recs := range bySource {
		report.RecordsScored += len(recs)
	}
	rows := Combine(tables...)

	aggregates := make(map[core.GeneID]score.GeneScoreAggregate, len(rows))
	total := set.Count()
	for gene, geneRows := range rows {
		aggregates[gene] = AggregateGene(gene, geneRows, total)
	}
	report.GenesRecomputed = len(aggregates)

	if err := ctx.Err(); err != nil {
		return nil, report, err
	}
	snap := e.assemble(set, rows, aggregates, score.ModeFull)
	report.Duration = time.Since(start)
	e.logReport(set, report)
	return snap, report, nil
}

// Targeted derives a new snapshot from base by recomputing only the plan.
// base is never modified. The result equals a full run over the same inputs.
func (e *Engine) Targeted(ctx context.Context, base *score.Snapshot, set *SourceSet, plan Plan, records []*evidence.Record) (*score.Snapshot, Report, error) {
	start := time.Now()
	report := newReport(score.ModeTargeted)

	if !base.CanBaseTargeted() {
		return nil, report, fmt.Errorf("snapshot generation %d (%s) cannot base a targeted run", base.Generation, base.Mode)
	}
	if !SameSources(base.ActiveSources, set.ActiveNames()) {
		return nil, report, fmt.Errorf("active sources changed since generation %d", base.Generation)
	}

	wanted := make(map[core.GeneID]bool, len(plan.Genes))
	for _, g := range plan.Genes {
		wanted[g] = true
	}
	whole := make(map[core.SourceName]bool, len(plan.WholeSources))
	for _, s := range plan.WholeSources {
		whole[s] = true
	}
	partial := make(map[core.SourceName]bool, len(plan.GeneSources))
	for _, s := range plan.GeneSources {
		partial[s] = true
	}

	// Keep only records the plan asked for; anything else would skew ranks
	scoped := make([]*evidence.Record, 0, len(records))
	for _, rec := range records {
		if whole[rec.SourceName] || (partial[rec.SourceName] && wanted[rec.GeneID]) {
			scoped = append(scoped, rec)
		}
	}
	bySource, excluded := partition(set, scoped)
	report.ExcludedRecords = excluded
	for _, recs := range bySource {
		report.RecordsScored += len(recs)
	}

	var defs []*source.Definition
	for _, name := range append(append([]core.SourceName{}, plan.WholeSources...), plan.GeneSources...) {
		if def, ok := set.Active(name); ok {
			defs = append(defs, def)
		}
	}
	results, err := e.scoreSources(ctx, defs, bySource)
	if err != nil {
		return nil, report, err
	}

	cow := newCopyOnWrite(base.RowTable())
	for _, res := range results {
		report.absorb(res)
		if whole[res.name] {
			cow.dropSource(res.name, nil)
		} else {
			cow.dropSource(res.name, wanted)
		}
		for gene, row := range res.rows {
			cow.put(gene, row)
		}
	}
	for gene := range wanted {
		cow.touch(gene)
	}

	if err := ctx.Err(); err != nil {
		return nil, report, err
	}

	aggregates := make(map[core.GeneID]score.GeneScoreAggregate, len(base.AggregateTable()))
	for gene, agg := range base.AggregateTable() {
		aggregates[gene] = agg
	}
	total := set.Count()
	for gene := range cow.touched {
		geneRows := cow.rows[gene]
		if len(geneRows) == 0 {
			delete(cow.rows, gene)
			delete(aggregates, gene)
			continue
		}
		aggregates[gene] = AggregateGene(gene, geneRows, total)
	}
	report.GenesRecomputed = len(cow.touched)

	snap := e.assemble(set, cow.rows, aggregates, score.ModeTargeted)
	report.Duration = time.Since(start)
	e.logReport(set, report)
	return snap, report, nil
}

// scoreSources normalizes each source on a bounded pool. Results keep the
// order of defs so the combined table is built deterministically.
func (e *Engine) scoreSources(ctx context.Context, defs []*source.Definition, bySource map[core.SourceName][]*evidence.Record) ([]sourceResult, error) {
	results := make([]sourceResult, len(defs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxParallel)
	for i, def := range defs {
		i, def := i, def
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = scoreSource(def, bySource[def.Name])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Engine) assemble(set *SourceSet, rows map[core.GeneID]map[core.SourceName]score.NormalizedScore, aggregates map[core.GeneID]score.GeneScoreAggregate, mode score.Mode) *score.Snapshot {
	snap := score.NewSnapshot(rows, aggregates)
	snap.Mode = mode
	snap.ActiveSources = set.ActiveNames()
	snap.TotalActiveSources = set.Count()
	snap.Fingerprint = Fingerprint(snap.Aggregates())
	return snap
}

// Fingerprint hashes the canonical JSON of ordered aggregates
func Fingerprint(aggs []score.GeneScoreAggregate) core.Fingerprint {
	data, err := json.Marshal(aggs)
	if err != nil {
		return ""
	}
	return core.NewFingerprint(data)
}

func (e *Engine) logReport(set *SourceSet, report Report) {
	if set.Count() == 0 {
		e.logger.Warn("%v", errors.DenominatorError())
	}
	for name, n := range report.ExcludedRecords {
		e.logger.Debug("%v", errors.InconsistentReference(name.String(), n))
	}
	for name, n := range report.UnresolvedFields {
		e.logger.Warn("%v", errors.ConfigurationError(name.String(),
			fmt.Sprintf("%d records without a resolvable rule field; scored with the rule default", n)))
	}
	for name, labels := range report.UnmappedLabels {
		e.logger.Warn("%v", errors.ConfigurationError(name.String(),
			fmt.Sprintf("%d distinct labels missing from weight_map; scored with unmapped_score", len(labels))))
	}
}

func newReport(mode score.Mode) Report {
	return Report{
		Mode:             mode,
		ExcludedRecords:  map[core.SourceName]int{},
		UnresolvedFields: map[core.SourceName]int{},
		UnmappedLabels:   map[core.SourceName]map[string]int{},
	}
}

func (r *Report) absorb(res sourceResult) {
	r.SourcesRecomputed = append(r.SourcesRecomputed, res.name)
	if res.unresolved > 0 {
		r.UnresolvedFields[res.name] = res.unresolved
	}
	if len(res.unmapped) > 0 {
		r.UnmappedLabels[res.name] = res.unmapped
	}
}

// SameSources reports whether two ordered source lists are identical
func SameSources(a, b []core.SourceName) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// copyOnWrite derives a row table from an immutable base, cloning a gene's
// inner map only the first time that gene is modified
type copyOnWrite struct {
	rows    map[core.GeneID]map[core.SourceName]score.NormalizedScore
	cloned  map[core.GeneID]bool
	touched map[core.GeneID]bool
}

func newCopyOnWrite(base map[core.GeneID]map[core.SourceName]score.NormalizedScore) *copyOnWrite {
	rows := make(map[core.GeneID]map[core.SourceName]score.NormalizedScore, len(base))
	for gene, bySource := range base {
		rows[gene] = bySource
	}
	return &copyOnWrite{rows: rows, cloned: map[core.GeneID]bool{}, touched: map[core.GeneID]bool{}}
}

func (c *copyOnWrite) mutable(gene core.GeneID) map[core.SourceName]score.NormalizedScore {
	c.touched[gene] = true
	if c.cloned[gene] {
		return c.rows[gene]
	}
	clone := make(map[core.SourceName]score.NormalizedScore, len(c.rows[gene])+1)
	for name, row := range c.rows[gene] {
		clone[name] = row
	}
	c.rows[gene] = clone
	c.cloned[gene] = true
	return clone
}

func (c *copyOnWrite) touch(gene core.GeneID) {
	c.mutable(gene)
}

// dropSource removes a source's rows, from every gene when only is nil
func (c *copyOnWrite) dropSource(name core.SourceName, only map[core.GeneID]bool) {
	for gene, bySource := range c.rows {
		if only != nil && !only[gene] {
			continue
		}
		if _, ok := bySource[name]; ok {
			delete(c.mutable(gene), name)
		}
	}
}

func (c *copyOnWrite) put(gene core.GeneID, row score.NormalizedScore) {
	bySource := c.mutable(gene)
	if prev, ok := bySource[row.SourceName]; ok && prev.Score >= row.Score {
		return
	}
	bySource[row.SourceName] = row
}
