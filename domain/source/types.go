package source

import (
	"time"

	"genescore/domain/core"
)

// Origin tells where a source's evidence comes from
type Origin string

const (
	// OriginPipeline sources are filled by automated scrapers
	OriginPipeline Origin = "pipeline"
	// OriginHybrid sources are configured by an administrator and fed by uploads
	OriginHybrid Origin = "hybrid"
)

// Valid reports whether o is a known origin
func (o Origin) Valid() bool {
	return o == OriginPipeline || o == OriginHybrid
}

// Definition is the registry record for one evidence source
type Definition struct {
	Name        core.SourceName `json:"name"`
	DisplayName string          `json:"display_name"`
	Origin      Origin          `json:"origin"`
	IsActive    bool            `json:"is_active"`
	Description string          `json:"description,omitempty"`
	Rule        ScoringRule     `json:"-"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Label returns the display label used in score breakdowns
func (d *Definition) Label() string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return d.Name.String()
}

// Clone returns a copy safe to hand out of a registry cache
func (d *Definition) Clone() *Definition {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}
