package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"genescore/adapters/memory"
	"genescore/domain/core"
	"genescore/domain/source"
	"genescore/internal"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = internal.NewLogger(internal.LogLevelError)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New(memory.NewSourceRepository(), quiet)
	require.NoError(t, r.Load(context.Background()))
	return r
}

func hybrid(name, display string) *source.Definition {
	return &source.Definition{
		Name:        core.SourceName(name),
		DisplayName: display,
		Origin:      source.OriginHybrid,
		IsActive:    true,
		Rule:        source.NewFixedRule(0.5),
	}
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)

	created, err := r.Create(ctx, hybrid("curated_list", "Curated List"))
	require.NoError(t, err)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := r.Get(ctx, "curated_list")
	require.NoError(t, err)
	assert.Equal(t, "Curated List", got.Label())

	_, err = r.Create(ctx, hybrid("curated_list", "Other"))
	assert.ErrorIs(t, err, core.ErrDuplicateSource)

	_, err = r.Get(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrSourceNotFound)
}

func TestDisplayLabelsAreUnique(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)

	_, err := r.Create(ctx, hybrid("a", "Expert Panel"))
	require.NoError(t, err)

	_, err = r.Create(ctx, hybrid("b", " expert panel "))
	assert.ErrorIs(t, err, core.ErrDuplicateDisplayName)

	// a display name may not shadow another source's key either
	_, err = r.Create(ctx, hybrid("c", ""))
	require.NoError(t, err)
	_, err = r.Create(ctx, hybrid("d", "c"))
	assert.ErrorIs(t, err, core.ErrDuplicateDisplayName)
}

func TestCreateRejectsInvalidDefinitions(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)

	bad := hybrid("x", "")
	bad.Origin = "scraped"
	_, err := r.Create(ctx, bad)
	assert.Error(t, err)

	bad = hybrid("y", "")
	bad.Rule = nil
	_, err = r.Create(ctx, bad)
	assert.ErrorIs(t, err, core.ErrInvalidRule)

	bad = hybrid(" ", "")
	_, err = r.Create(ctx, bad)
	assert.Error(t, err)
}

func TestUpdateAndSetActive(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)
	_, err := r.Create(ctx, hybrid("a", "A"))
	require.NoError(t, err)

	_, changed, err := r.Update(ctx, hybrid("a", "A"))
	require.NoError(t, err)
	assert.False(t, changed, "identical definition is a no-op")

	updated, changed, err := r.Update(ctx, hybrid("a", "Renamed"))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "Renamed", updated.DisplayName)

	def, changed, err := r.SetActive(ctx, "a", false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, def.IsActive)

	_, changed, err = r.SetActive(ctx, "a", false)
	require.NoError(t, err)
	assert.False(t, changed)

	_, _, err = r.SetActive(ctx, "nope", true)
	assert.ErrorIs(t, err, core.ErrSourceNotFound)
}

func TestSetActiveDoesNotLoseConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewSourceRepository()
	r := New(repo, quiet)
	_, err := r.Create(ctx, hybrid("a", "A"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, _, err := r.SetActive(ctx, "a", i%2 == 0)
			assert.NoError(t, err)
		}(i)
		go func(i int) {
			defer wg.Done()
			_, _, err := r.Update(ctx, hybrid("a", fmt.Sprintf("Label %d", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	cached, err := r.Get(ctx, "a")
	require.NoError(t, err)
	persisted, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, persisted.DisplayName, cached.DisplayName)
	assert.Equal(t, persisted.IsActive, cached.IsActive)

	// a toggle keeps the rename that preceded it
	_, _, err = r.Update(ctx, hybrid("a", "Final"))
	require.NoError(t, err)
	def, changed, err := r.SetActive(ctx, "a", false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "Final", def.DisplayName)

	stored, err := r.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Final", stored.DisplayName)
	assert.False(t, stored.IsActive)
}

func TestListReturnsCopies(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)
	_, err := r.Create(ctx, hybrid("b", ""))
	require.NoError(t, err)
	_, err = r.Create(ctx, hybrid("a", ""))
	require.NoError(t, err)

	defs, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, core.SourceName("a"), defs[0].Name)

	defs[0].IsActive = false
	again, _ := r.Get(ctx, "a")
	assert.True(t, again.IsActive)
}

const seedYAML = `
sources:
  - name: panels
    display_name: Panel Membership
    origin: pipeline
    rule:
      type: count
      field: panels
  - name: clinical
    display_name: Clinical Review
    origin: pipeline
    rule:
      type: classification
      field: classifications
      weight_map:
        Definitive: 1.0
        Strong: 0.8
        Limited: 0.3
      unmapped_score: 0.1
  - name: broken
    origin: pipeline
    rule:
      type: classification
      field: classifications
`

func TestSeed(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)

	seed, err := ParseSeed([]byte(seedYAML))
	require.NoError(t, err)
	require.Len(t, seed.Sources, 3)

	res, err := r.Seed(ctx, seed)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Len(t, res.Errors, 1)
	assert.True(t, res.Changed())

	clinical, err := r.Get(ctx, "clinical")
	require.NoError(t, err)
	rule, ok := clinical.Rule.(*source.ClassificationRule)
	require.True(t, ok)
	assert.Equal(t, 0.8, rule.WeightMap["strong"])

	// an admin deactivation survives a reseed without is_active
	_, _, err = r.SetActive(ctx, "panels", false)
	require.NoError(t, err)
	res, err = r.Seed(ctx, seed)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Unchanged)
	assert.False(t, res.Changed())
	panels, _ := r.Get(ctx, "panels")
	assert.False(t, panels.IsActive)
}

func TestLoadSeedFileMissing(t *testing.T) {
	_, err := LoadSeedFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestSeedWatcherFiresOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o644))

	var calls atomic.Int32
	w, err := NewSeedWatcher(path, 20*time.Millisecond, func() { calls.Add(1) }, quiet)
	require.NoError(t, err)
	w.Start()
	t.Cleanup(w.Stop)

	require.NoError(t, os.WriteFile(path, []byte(seedYAML+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o644))

	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
}
