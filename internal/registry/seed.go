package registry

import (
	"context"
	"errors"
	"fmt"
	"os"

	"genescore/domain/core"
	"genescore/domain/source"

	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML layout of the pipeline source file
type SeedFile struct {
	Sources []source.Spec `yaml:"sources"`
}

// LoadSeedFile reads and parses a seed file
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed parses seed YAML
func ParseSeed(data []byte) (*SeedFile, error) {
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &seed, nil
}

// SeedResult counts what a seed pass changed
type SeedResult struct {
	Created   int      `json:"created"`
	Updated   int      `json:"updated"`
	Unchanged int      `json:"unchanged"`
	Errors    []string `json:"errors,omitempty"`
}

// Changed reports whether any definition was written
func (s SeedResult) Changed() bool {
	return s.Created+s.Updated > 0
}

// Seed upserts every entry. An existing source keeps its active flag unless
// the entry sets is_active explicitly. Invalid entries are skipped and reported;
// the rest still apply.
func (r *Registry) Seed(ctx context.Context, seed *SeedFile) (SeedResult, error) {
	var res SeedResult
	for _, spec := range seed.Sources {
		def, err := spec.Definition()
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", spec.Name, err))
			continue
		}

		existing, err := r.Get(ctx, def.Name)
		if err != nil && !errors.Is(err, core.ErrSourceNotFound) {
			return res, err
		}
		if existing == nil {
			if _, err := r.Create(ctx, def); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", spec.Name, err))
				continue
			}
			res.Created++
			continue
		}

		if spec.Active == nil {
			def.IsActive = existing.IsActive
		}
		_, changed, err := r.Update(ctx, def)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", spec.Name, err))
			continue
		}
		if changed {
			res.Updated++
		} else {
			res.Unchanged++
		}
	}

	for _, msg := range res.Errors {
		r.logger.Warn("seed: %s", msg)
	}
	r.logger.Info("seed applied: %d created, %d updated, %d unchanged, %d rejected",
		res.Created, res.Updated, res.Unchanged, len(res.Errors))
	return res, nil
}
