package postgres

import (
	"context"
	"os"
	"testing"

	"genescore/domain/core"
	"genescore/domain/evidence"
	"genescore/domain/score"
	"genescore/domain/source"
	"genescore/internal/migration"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestDB connects to TEST_DATABASE_URL, migrates and truncates. Tests
// are skipped when the variable is unset.
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, migration.NewRunner().Run(ctx, db))
	_, err = db.ExecContext(ctx, `TRUNCATE gene_score_aggregates, evidence_records, source_definitions`)
	require.NoError(t, err)
	return db
}

func TestSourceRepositoryRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewSourceRepository(db)

	def := &source.Definition{
		Name:        "clinical",
		DisplayName: "Clinical Review",
		Origin:      source.OriginPipeline,
		IsActive:    true,
		Rule: source.NewClassificationRule("classifications", 1,
			map[string]float64{"Definitive": 1, "Limited": 0.3}, 0.2),
	}
	require.NoError(t, repo.Save(ctx, def))

	got, err := repo.Get(ctx, "clinical")
	require.NoError(t, err)
	assert.Equal(t, "Clinical Review", got.DisplayName)
	rule, ok := got.Rule.(*source.ClassificationRule)
	require.True(t, ok)
	assert.Equal(t, 0.2, rule.UnmappedScore)
	assert.Equal(t, 1.0, rule.WeightMap["definitive"])

	def.IsActive = false
	require.NoError(t, repo.Save(ctx, def))
	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].IsActive)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrSourceNotFound)

	err = repo.Save(ctx, &source.Definition{
		Name: "other", DisplayName: "Clinical Review", Origin: source.OriginHybrid, Rule: source.NewFixedRule(1),
	})
	assert.ErrorIs(t, err, core.ErrDuplicateDisplayName)
}

func TestEvidenceRepositoryUnitRewrite(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, NewSourceRepository(db).Save(ctx, &source.Definition{
		Name: "gencc", Origin: source.OriginPipeline, IsActive: true,
		Rule: source.NewCountRule("", 1, source.AccumulateSum),
	}))
	repo := NewEvidenceRepository(db)

	n, err := repo.InsertBatch(ctx, []*evidence.Record{
		{GeneID: "G1", SourceName: "gencc", Detail: "lab-a", Payload: []byte(`{"x":1}`)},
		{GeneID: "G2", SourceName: "gencc", Detail: "lab-b"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	lab := "lab-a"
	mut, err := repo.ReplaceUnit(ctx, evidence.Unit{Source: "gencc", Detail: &lab}, []*evidence.Record{
		{GeneID: "G3", SourceName: "gencc", Detail: "lab-a"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, mut.Deleted)
	assert.Equal(t, []core.GeneID{"G1", "G3"}, mut.AffectedGenes)

	recs, err := repo.List(ctx, evidence.Filter{Sources: []core.SourceName{"gencc"}})
	require.NoError(t, err)
	assert.Equal(t, []core.GeneID{"G2", "G3"}, evidence.GenesOf(recs))

	mut, err = repo.DeleteUnit(ctx, evidence.Unit{Source: "gencc"})
	require.NoError(t, err)
	assert.Equal(t, 2, mut.Deleted)
}

func TestAggregateRepositoryStoreLoad(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	cache := NewAggregateRepository(db)

	require.NoError(t, cache.Store(ctx, 7, []score.GeneScoreAggregate{
		{GeneID: "G1", SourceCount: 2, RawScore: 1.4, PercentageScore: 28, Tier: score.TierEstablished,
			Group: score.GroupWellSupported, Breakdown: map[string]float64{"A": 0.8, "B": 0.6}},
	}))
	gen, aggs, err := cache.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), gen)
	require.Len(t, aggs, 1)
	assert.Equal(t, 0.6, aggs[0].Breakdown["B"])
}
