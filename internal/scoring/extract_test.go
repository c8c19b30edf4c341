package scoring

import (
	"testing"

	"genescore/domain/evidence"
	"genescore/domain/source"

	"github.com/stretchr/testify/assert"
)

func TestExtractCount(t *testing.T) {
	rule := source.NewCountRule("panels", 1, source.AccumulateMax)

	tests := []struct {
		name      string
		payload   map[string]interface{}
		magnitude int
		resolved  bool
	}{
		{"array", map[string]interface{}{"panels": []string{"a", "b", "c"}}, 3, true},
		{"empty array", map[string]interface{}{"panels": []string{}}, 0, true},
		{"object", map[string]interface{}{"panels": map[string]int{"a": 1, "b": 2}}, 2, true},
		{"number", map[string]interface{}{"panels": 7}, 7, true},
		{"negative number", map[string]interface{}{"panels": -2}, 0, true},
		{"huge number", map[string]interface{}{"panels": 1e19}, MaxMagnitude, true},
		{"string", map[string]interface{}{"panels": "single"}, 1, true},
		{"blank string", map[string]interface{}{"panels": "  "}, 0, true},
		{"missing", map[string]interface{}{"other": []int{1}}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := Extract(rec("G1", "S", tt.payload), rule)
			assert.Equal(t, tt.magnitude, ex.Magnitude)
			assert.Equal(t, tt.resolved, ex.Resolved)
		})
	}
}

func TestExtractCountSaturatesRawNumbers(t *testing.T) {
	rule := source.NewCountRule("n", 1, source.AccumulateMax)
	for _, raw := range []string{`{"n": 1e19}`, `{"n": 1e400}`, `{"n": 9223372036854775808}`} {
		r := &evidence.Record{GeneID: "G1", SourceName: "S", Payload: []byte(raw)}
		assert.Equal(t, MaxMagnitude, Extract(r, rule).Magnitude, raw)
	}
}

func TestExtractCountNestedPath(t *testing.T) {
	rule := source.NewCountRule("evidence.publications", 1, source.AccumulateMax)
	ex := Extract(rec("G1", "S", map[string]interface{}{
		"evidence": map[string]interface{}{"publications": []int{1, 2}},
	}), rule)
	assert.Equal(t, 2, ex.Magnitude)
}

func TestExtractCountWithoutFieldCountsRecord(t *testing.T) {
	rule := source.NewCountRule("", 1, source.AccumulateSum)
	ex := Extract(rec("G1", "S", map[string]interface{}{}), rule)
	assert.Equal(t, 1, ex.Magnitude)
	assert.True(t, ex.Resolved)
}

func TestExtractCountMalformedPayload(t *testing.T) {
	rule := source.NewCountRule("panels", 1, source.AccumulateMax)
	r := &evidence.Record{GeneID: "G1", SourceName: "S", Payload: []byte("{not json")}
	assert.NotPanics(t, func() {
		ex := Extract(r, rule)
		assert.Equal(t, 0, ex.Magnitude)
	})
}

func TestExtractLabelsSurfacesAll(t *testing.T) {
	rule := source.NewClassificationRule("classifications", 1, nil, 0)

	ex := Extract(rec("G1", "S", map[string]interface{}{
		"classifications": []interface{}{"Limited", "Definitive", 3, " ", "Strong"},
	}), rule)
	assert.True(t, ex.Resolved)
	assert.Equal(t, []string{"Limited", "Definitive", "Strong"}, ex.Labels)

	ex = Extract(rec("G1", "S", map[string]interface{}{"classifications": "Moderate"}), rule)
	assert.Equal(t, []string{"Moderate"}, ex.Labels)

	ex = Extract(rec("G1", "S", map[string]interface{}{}), rule)
	assert.False(t, ex.Resolved)
	assert.Empty(t, ex.Labels)
}

func TestExtractFixed(t *testing.T) {
	ex := Extract(rec("G1", "S", map[string]interface{}{}), source.NewFixedRule(0.5))
	assert.True(t, ex.Resolved)
	assert.Equal(t, 0, ex.Magnitude)
	assert.Empty(t, ex.Labels)
}
