package source

import (
	"fmt"
	"sort"
	"strings"

	"genescore/domain/core"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// RuleSpec is the flat, serializable form of a ScoringRule used by the seed
// file, the rule JSONB column and the admin API.
type RuleSpec struct {
	Type          string             `json:"type" yaml:"type" validate:"required,oneof=count classification fixed"`
	Field         string             `json:"field,omitempty" yaml:"field,omitempty" validate:"required_if=Type classification"`
	Weight        *float64           `json:"weight,omitempty" yaml:"weight,omitempty" validate:"omitempty,gt=0,lte=1"`
	Accumulate    string             `json:"accumulate,omitempty" yaml:"accumulate,omitempty" validate:"omitempty,oneof=max sum"`
	WeightMap     map[string]float64 `json:"weight_map,omitempty" yaml:"weight_map,omitempty" validate:"required_if=Type classification,dive,keys,required,endkeys,gte=0,lte=1"`
	UnmappedScore *float64           `json:"unmapped_score,omitempty" yaml:"unmapped_score,omitempty" validate:"required_if=Type classification,omitempty,gte=0,lte=1"`
	Score         *float64           `json:"score,omitempty" yaml:"score,omitempty" validate:"required_if=Type fixed,omitempty,gte=0,lte=1"`
}

// Spec is the serializable form of a Definition
type Spec struct {
	Name        string   `json:"name" yaml:"name" validate:"required,max=100"`
	DisplayName string   `json:"display_name,omitempty" yaml:"display_name,omitempty" validate:"omitempty,max=200"`
	Origin      string   `json:"origin" yaml:"origin" validate:"required,oneof=pipeline hybrid"`
	Active      *bool    `json:"is_active,omitempty" yaml:"is_active,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Rule        RuleSpec `json:"rule" yaml:"rule"`
}

// Validate checks a rule spec
func (s RuleSpec) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %s", core.ErrInvalidRule, describe(err))
	}
	return nil
}

// Rule converts the RuleSpec into its rule variant
func (s RuleSpec) Rule() (ScoringRule, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	weight := 1.0
	if s.Weight != nil {
		weight = *s.Weight
	}
	switch RuleKind(s.Type) {
	case KindCount:
		return NewCountRule(s.Field, weight, Accumulate(s.Accumulate)), nil
	case KindClassification:
		return NewClassificationRule(s.Field, weight, s.WeightMap, *s.UnmappedScore), nil
	case KindFixed:
		return NewFixedRule(*s.Score), nil
	}
	return nil, fmt.Errorf("%w: unknown type %q", core.ErrInvalidRule, s.Type)
}

// SpecOf converts a rule variant back into its serializable form
func SpecOf(rule ScoringRule) (RuleSpec, error) {
	switch r := rule.(type) {
	case *CountRule:
		w := r.Weight
		return RuleSpec{Type: string(KindCount), Field: r.Field, Weight: &w, Accumulate: string(r.Accumulate)}, nil
	case *ClassificationRule:
		w, u := r.Weight, r.UnmappedScore
		m := make(map[string]float64, len(r.WeightMap))
		for k, v := range r.WeightMap {
			m[k] = v
		}
		return RuleSpec{Type: string(KindClassification), Field: r.Field, Weight: &w, WeightMap: m, UnmappedScore: &u}, nil
	case *FixedRule:
		sc := r.Score
		return RuleSpec{Type: string(KindFixed), Score: &sc}, nil
	case nil:
		return RuleSpec{}, fmt.Errorf("%w: missing rule", core.ErrInvalidRule)
	}
	return RuleSpec{}, fmt.Errorf("%w: unsupported rule %T", core.ErrInvalidRule, rule)
}

// Definition validates s and builds a Definition. Active defaults to true.
func (s Spec) Definition() (*Definition, error) {
	if err := validate.Struct(s); err != nil {
		return nil, core.NewValidationError("source", describe(err))
	}
	name, err := core.ParseSourceName(s.Name)
	if err != nil {
		return nil, err
	}
	rule, err := s.Rule.Rule()
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", name, err)
	}
	active := true
	if s.Active != nil {
		active = *s.Active
	}
	return &Definition{
		Name:        name,
		DisplayName: strings.TrimSpace(s.DisplayName),
		Origin:      Origin(s.Origin),
		IsActive:    active,
		Description: s.Description,
		Rule:        rule,
	}, nil
}

// SpecFromDefinition is the inverse of Spec.Definition
func SpecFromDefinition(d *Definition) (Spec, error) {
	rs, err := SpecOf(d.Rule)
	if err != nil {
		return Spec{}, err
	}
	active := d.IsActive
	return Spec{
		Name:        d.Name.String(),
		DisplayName: d.DisplayName,
		Origin:      string(d.Origin),
		Active:      &active,
		Description: d.Description,
		Rule:        rs,
	}, nil
}

// describe flattens validator errors into one stable line
func describe(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}
