package scoring

import (
	"encoding/json"
	"fmt"

	"genescore/domain/core"
	"genescore/domain/evidence"
	"genescore/domain/source"
)

func rec(gene, src string, payload map[string]interface{}) *evidence.Record {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return &evidence.Record{
		ID:         core.NewRecordID(),
		GeneID:     core.GeneID(gene),
		GeneSymbol: "SYM-" + gene,
		SourceName: core.SourceName(src),
		Payload:    data,
	}
}

func panels(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("panel-%d", i)
	}
	return out
}

func countSource(name string) *source.Definition {
	return &source.Definition{
		Name:     core.SourceName(name),
		Origin:   source.OriginPipeline,
		IsActive: true,
		Rule:     source.NewCountRule("panels", 1, source.AccumulateMax),
	}
}

func clinicalSource(name string) *source.Definition {
	return &source.Definition{
		Name:        core.SourceName(name),
		DisplayName: "Clinical Review",
		Origin:      source.OriginPipeline,
		IsActive:    true,
		Rule: source.NewClassificationRule("classifications", 1,
			map[string]float64{"Definitive": 1.0, "Strong": 0.8, "Limited": 0.3}, 0.3),
	}
}

func fixedSource(name string, s float64) *source.Definition {
	return &source.Definition{
		Name:        core.SourceName(name),
		DisplayName: name + " (uploaded)",
		Origin:      source.OriginHybrid,
		IsActive:    true,
		Rule:        source.NewFixedRule(s),
	}
}
