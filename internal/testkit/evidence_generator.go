package testkit

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"genescore/domain/core"
	"genescore/domain/evidence"
	"genescore/domain/source"
)

// EvidenceGeneratorConfig configures the synthetic evidence generator
type EvidenceGeneratorConfig struct {
	GeneCount int   `json:"gene_count"`
	Seed      int64 `json:"seed"`
	// Coverage is the share of genes each source has evidence for
	Coverage float64 `json:"coverage"`
	// MaxRecordsPerGene bounds repeated records of one (gene, source) pair
	MaxRecordsPerGene int      `json:"max_records_per_gene"`
	Providers         []string `json:"providers"`
}

// DefaultEvidenceConfig returns sensible defaults for evidence generation
func DefaultEvidenceConfig() EvidenceGeneratorConfig {
	return EvidenceGeneratorConfig{
		GeneCount:         500,
		Seed:              42,
		Coverage:          0.4,
		MaxRecordsPerGene: 3,
		Providers:         []string{"blueprint", "invitae", "genedx", "mayo"},
	}
}

var classificationLabels = []string{"Definitive", "Strong", "Moderate", "Limited", "Disputed", "Refuted", "No Known Disease Relationship"}

// EvidenceGenerator produces a deterministic source registry and evidence set
type EvidenceGenerator struct {
	config EvidenceGeneratorConfig
	rng    *rand.Rand
	clock  time.Time
}

// NewEvidenceGenerator creates a new evidence generator
func NewEvidenceGenerator(config EvidenceGeneratorConfig) *EvidenceGenerator {
	if config.MaxRecordsPerGene <= 0 {
		config.MaxRecordsPerGene = 1
	}
	if len(config.Providers) == 0 {
		config.Providers = DefaultEvidenceConfig().Providers
	}
	return &EvidenceGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
		clock:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Sources returns one source per rule variant and accumulate mode
func (g *EvidenceGenerator) Sources() []*source.Definition {
	return []*source.Definition{
		{
			Name: "panels", DisplayName: "Diagnostic Panels", Origin: source.OriginPipeline, IsActive: true,
			Rule: source.NewCountRule("panels", 1, source.AccumulateMax),
		},
		{
			Name: "providers", DisplayName: "Panel Providers", Origin: source.OriginPipeline, IsActive: true,
			Rule: source.NewCountRule("", 1, source.AccumulateSum),
		},
		{
			Name: "clinical", DisplayName: "Clinical Validity", Origin: source.OriginPipeline, IsActive: true,
			Rule: source.NewClassificationRule("classifications", 1, map[string]float64{
				"definitive": 1.0, "strong": 0.8, "moderate": 0.6, "limited": 0.3,
				"disputed": 0.1, "refuted": 0,
			}, 0.05),
		},
		{
			Name: "literature", DisplayName: "Literature", Origin: source.OriginPipeline, IsActive: true,
			Rule: source.NewCountRule("pmids", 0.5, source.AccumulateMax),
		},
		{
			Name: "curated", DisplayName: "Curated List", Origin: source.OriginHybrid, IsActive: true,
			Rule: source.NewFixedRule(0.5),
		},
	}
}

// GeneID returns the id of the i-th synthetic gene
func GeneID(i int) core.GeneID {
	return core.GeneID(fmt.Sprintf("HGNC:%d", 1000+i))
}

// GenerateRecords returns evidence for every source in Sources
func (g *EvidenceGenerator) GenerateRecords() []*evidence.Record {
	var records []*evidence.Record
	defs := g.Sources()
	for i := 0; i < g.config.GeneCount; i++ {
		gene := GeneID(i)
		symbol := fmt.Sprintf("GENE%d", i)
		for _, def := range defs {
			if g.rng.Float64() >= g.config.Coverage {
				continue
			}
			records = append(records, g.recordsFor(gene, symbol, def.Name)...)
		}
	}
	return records
}

// RecordsFor returns fresh evidence for one gene and source, as an
// incremental update would deliver it
func (g *EvidenceGenerator) RecordsFor(gene core.GeneID, src core.SourceName) []*evidence.Record {
	return g.recordsFor(gene, "", src)
}

func (g *EvidenceGenerator) recordsFor(gene core.GeneID, symbol string, src core.SourceName) []*evidence.Record {
	n := 1 + g.rng.Intn(g.config.MaxRecordsPerGene)
	out := make([]*evidence.Record, 0, n)
	for j := 0; j < n; j++ {
		detail := ""
		var payload map[string]interface{}
		switch src {
		case "panels":
			payload = map[string]interface{}{"panels": g.names("panel", 1+g.rng.Intn(12))}
		case "providers":
			detail = g.config.Providers[g.rng.Intn(len(g.config.Providers))]
			payload = map[string]interface{}{"provider": detail}
		case "clinical":
			payload = map[string]interface{}{"classifications": g.labels()}
		case "literature":
			payload = map[string]interface{}{"pmids": g.names("PMID", g.rng.Intn(40))}
		default:
			payload = map[string]interface{}{}
		}
		raw, _ := json.Marshal(payload)
		g.clock = g.clock.Add(time.Minute)
		out = append(out, &evidence.Record{
			ID:         core.NewRecordID(),
			GeneID:     gene,
			GeneSymbol: symbol,
			SourceName: src,
			Detail:     detail,
			Payload:    raw,
			CreatedAt:  g.clock,
		})
	}
	return out
}

func (g *EvidenceGenerator) names(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s-%d", prefix, g.rng.Intn(200))
	}
	return out
}

func (g *EvidenceGenerator) labels() []string {
	n := 1 + g.rng.Intn(2)
	out := make([]string, n)
	for i := range out {
		out[i] = classificationLabels[g.rng.Intn(len(classificationLabels))]
	}
	return out
}
