package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"genescore/domain/core"
	"genescore/domain/evidence"
	"genescore/domain/source"
	"genescore/internal"
	"genescore/internal/registry"
	"genescore/internal/scoring"
	"genescore/ports"
)

// TargetedTrigger schedules a recompute bounded to what a mutation touched
type TargetedTrigger interface {
	TriggerTargeted(scope scoring.Scope, reason string)
}

// IngestResult reports an insert batch
type IngestResult struct {
	Inserted      int               `json:"inserted"`
	Sources       []core.SourceName `json:"sources"`
	AffectedGenes []core.GeneID     `json:"affected_genes"`
}

// IngestionService writes evidence and schedules targeted recomputes. It
// never waits for the recompute.
type IngestionService struct {
	registry *registry.Registry
	evidence ports.EvidenceRepository
	parser   ports.UploadParser
	trigger  TargetedTrigger
	logger   *internal.Logger
}

// NewIngestionService creates an ingestion service
func NewIngestionService(reg *registry.Registry, evidenceRepo ports.EvidenceRepository, parser ports.UploadParser, trigger TargetedTrigger, logger *internal.Logger) *IngestionService {
	if logger == nil {
		logger = internal.DefaultLogger.With("ingestion")
	}
	return &IngestionService{
		registry: reg,
		evidence: evidenceRepo,
		parser:   parser,
		trigger:  trigger,
		logger:   logger,
	}
}

// InsertBatch appends records. Every record must name a gene and a
// registered source.
func (s *IngestionService) InsertBatch(ctx context.Context, records []*evidence.Record) (IngestResult, error) {
	if len(records) == 0 {
		return IngestResult{}, classify(core.NewValidationError("records", "batch is empty"))
	}
	sources := make(map[core.SourceName]struct{})
	for i, rec := range records {
		if rec == nil {
			return IngestResult{}, classify(nullRecord(i))
		}
		if err := s.validateRecord(ctx, rec); err != nil {
			return IngestResult{}, classify(fmt.Errorf("record %d: %w", i, err))
		}
		sources[rec.SourceName] = struct{}{}
	}

	n, err := s.evidence.InsertBatch(ctx, records)
	if err != nil {
		return IngestResult{}, classify(err)
	}

	res := IngestResult{Inserted: n, AffectedGenes: evidence.GenesOf(records)}
	for name := range sources {
		res.Sources = append(res.Sources, name)
	}
	sortSources(res.Sources)
	s.trigger.TriggerTargeted(scoring.Scope{Sources: res.Sources, Genes: res.AffectedGenes},
		fmt.Sprintf("inserted %d records", n))
	return res, nil
}

// ReplaceUnit atomically swaps the records of a (source, detail) unit
func (s *IngestionService) ReplaceUnit(ctx context.Context, unit evidence.Unit, records []*evidence.Record) (evidence.Mutation, error) {
	if _, err := s.registry.Get(ctx, unit.Source); err != nil {
		return evidence.Mutation{}, classify(err)
	}
	for i, rec := range records {
		if rec == nil {
			return evidence.Mutation{}, classify(nullRecord(i))
		}
		if rec.SourceName == "" {
			rec.SourceName = unit.Source
		}
		if unit.Detail != nil && rec.Detail == "" {
			rec.Detail = *unit.Detail
		}
		if !unit.Matches(rec) {
			return evidence.Mutation{}, classify(core.NewValidationError("records",
				fmt.Sprintf("record %d does not belong to unit %s", i, unit.LockKey())))
		}
		if err := s.validateRecord(ctx, rec); err != nil {
			return evidence.Mutation{}, classify(fmt.Errorf("record %d: %w", i, err))
		}
	}

	mut, err := s.evidence.ReplaceUnit(ctx, unit, records)
	if err != nil {
		return mut, classify(err)
	}
	s.afterMutation(mut, "replaced")
	return mut, nil
}

// DeleteUnit removes the records of a unit and reports the affected genes
func (s *IngestionService) DeleteUnit(ctx context.Context, unit evidence.Unit) (evidence.Mutation, error) {
	mut, err := s.evidence.DeleteUnit(ctx, unit)
	if err != nil {
		return mut, classify(err)
	}
	s.afterMutation(mut, "deleted")
	return mut, nil
}

// ImportUpload parses an upload and replaces the whole content of a hybrid
// source with it
func (s *IngestionService) ImportUpload(ctx context.Context, name core.SourceName, filename string, r io.Reader) (evidence.Mutation, error) {
	def, err := s.registry.Get(ctx, name)
	if err != nil {
		return evidence.Mutation{}, classify(err)
	}
	if def.Origin != source.OriginHybrid {
		return evidence.Mutation{}, classify(core.NewValidationError("source",
			fmt.Sprintf("%s is a %s source; uploads go to hybrid sources", name, def.Origin)))
	}
	records, err := s.parser.Parse(filename, r, name)
	if err != nil {
		return evidence.Mutation{}, classify(err)
	}
	s.logger.Info("importing %d records from %s into %s", len(records), filename, name)
	return s.ReplaceUnit(ctx, evidence.Unit{Source: name}, records)
}

func (s *IngestionService) afterMutation(mut evidence.Mutation, verb string) {
	if mut.Inserted == 0 && mut.Deleted == 0 {
		return
	}
	s.logger.Debug("unit %s %s: +%d -%d, %d genes", mut.Unit.LockKey(), verb, mut.Inserted, mut.Deleted, mut.AffectedGeneCount())
	s.trigger.TriggerTargeted(scoring.Scope{
		Sources: []core.SourceName{mut.Unit.Source},
		Genes:   mut.AffectedGenes,
	}, fmt.Sprintf("unit %s %s", mut.Unit.Source, verb))
}

func nullRecord(i int) error {
	return core.NewValidationError("records", fmt.Sprintf("record %d is null", i))
}

func (s *IngestionService) validateRecord(ctx context.Context, rec *evidence.Record) error {
	gene, err := core.ParseGeneID(rec.GeneID.String())
	if err != nil {
		return err
	}
	rec.GeneID = gene
	if _, err := s.registry.Get(ctx, rec.SourceName); err != nil {
		return err
	}
	if len(rec.Payload) > 0 && !json.Valid(rec.Payload) {
		return core.NewValidationError("payload", "not valid JSON")
	}
	return nil
}

func sortSources(names []core.SourceName) {
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
}
