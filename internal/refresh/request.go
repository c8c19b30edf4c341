package refresh

import (
	"sort"

	"genescore/domain/core"
	"genescore/internal/scoring"
)

// request is one pending recompute. Triggers that arrive while a request is
// pending merge into it: full dominates, scopes union.
type request struct {
	full    bool
	sources map[core.SourceName]struct{}
	genes   map[core.GeneID]struct{}
	reasons []string
	waiters []chan error
}

func fullRequest(reason string) *request {
	return &request{full: true, reasons: []string{reason}}
}

func targetedRequest(scope scoring.Scope, reason string) *request {
	r := &request{
		sources: make(map[core.SourceName]struct{}, len(scope.Sources)),
		genes:   make(map[core.GeneID]struct{}, len(scope.Genes)),
		reasons: []string{reason},
	}
	for _, s := range scope.Sources {
		r.sources[s] = struct{}{}
	}
	for _, g := range scope.Genes {
		r.genes[g] = struct{}{}
	}
	return r
}

func (r *request) merge(o *request) {
	r.reasons = append(r.reasons, o.reasons...)
	r.waiters = append(r.waiters, o.waiters...)
	if r.full || o.full {
		r.full = true
		r.sources, r.genes = nil, nil
		return
	}
	for s := range o.sources {
		r.sources[s] = struct{}{}
	}
	for g := range o.genes {
		r.genes[g] = struct{}{}
	}
}

// scope returns the targeted scope in sorted order
func (r *request) scope() scoring.Scope {
	var sc scoring.Scope
	for s := range r.sources {
		sc.Sources = append(sc.Sources, s)
	}
	for g := range r.genes {
		sc.Genes = append(sc.Genes, g)
	}
	sort.Slice(sc.Sources, func(i, j int) bool { return sc.Sources[i] < sc.Sources[j] })
	sort.Slice(sc.Genes, func(i, j int) bool { return sc.Genes[i] < sc.Genes[j] })
	return sc
}

func (r *request) notify(err error) {
	for _, w := range r.waiters {
		w <- err
	}
	r.waiters = nil
}
