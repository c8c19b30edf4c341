package scoring

import (
	"math"
	"strings"

	"genescore/domain/evidence"
	"genescore/domain/source"

	"github.com/tidwall/gjson"
)

// Extraction is the raw signal one record yields under its source's rule
type Extraction struct {
	// Magnitude is set for count rules; 0 means no evidence from this record
	Magnitude int
	// Labels holds every category label found for classification rules
	Labels []string
	// Resolved is false when the rule's field is absent from the payload
	Resolved bool
}

// Extract evaluates a rule against one record. It never fails: an absent or
// malformed field yields the rule's fallback (zero magnitude, no labels).
func Extract(rec *evidence.Record, rule source.ScoringRule) Extraction {
	switch r := rule.(type) {
	case *source.CountRule:
		return extractCount(rec, r.Field)
	case *source.ClassificationRule:
		return extractLabels(rec, r.Field)
	case *source.FixedRule:
		return Extraction{Resolved: true}
	}
	return Extraction{}
}

func extractCount(rec *evidence.Record, field string) Extraction {
	if field == "" {
		return Extraction{Magnitude: 1, Resolved: true}
	}
	res := gjson.GetBytes(rec.Payload, field)
	if !res.Exists() {
		return Extraction{}
	}
	return Extraction{Magnitude: magnitudeOf(res), Resolved: true}
}

// MaxMagnitude caps numeric counts so they stay representable once summed
const MaxMagnitude = math.MaxInt32

// magnitudeOf sizes a collection; scalars count as one item, numbers are taken as-is
func magnitudeOf(res gjson.Result) int {
	switch {
	case res.IsArray():
		return len(res.Array())
	case res.IsObject():
		return len(res.Map())
	}
	switch res.Type {
	case gjson.Number:
		f := res.Float()
		switch {
		case f <= 0 || math.IsNaN(f):
			return 0
		case f >= MaxMagnitude:
			return MaxMagnitude
		}
		return int(math.Floor(f))
	case gjson.String:
		if strings.TrimSpace(res.Str) == "" {
			return 0
		}
		return 1
	case gjson.True:
		return 1
	}
	return 0
}

func extractLabels(rec *evidence.Record, field string) Extraction {
	res := gjson.GetBytes(rec.Payload, field)
	if !res.Exists() {
		return Extraction{}
	}
	var labels []string
	add := func(v gjson.Result) {
		if v.Type != gjson.String {
			return
		}
		if label := strings.TrimSpace(v.Str); label != "" {
			labels = append(labels, label)
		}
	}
	if res.IsArray() {
		for _, item := range res.Array() {
			add(item)
		}
	} else {
		add(res)
	}
	return Extraction{Labels: labels, Resolved: true}
}
