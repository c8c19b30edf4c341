package refresh

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"genescore/adapters/memory"
	"genescore/domain/core"
	"genescore/domain/evidence"
	"genescore/domain/score"
	"genescore/domain/source"
	"genescore/internal"
	"genescore/internal/errors"
	"genescore/internal/scoring"
	"genescore/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockEvidenceRepository struct {
	mock.Mock
}

func (m *MockEvidenceRepository) List(ctx context.Context, filter evidence.Filter) ([]*evidence.Record, error) {
	args := m.Called(ctx, filter)
	recs, _ := args.Get(0).([]*evidence.Record)
	return recs, args.Error(1)
}

func (m *MockEvidenceRepository) InsertBatch(ctx context.Context, records []*evidence.Record) (int, error) {
	args := m.Called(ctx, records)
	return args.Int(0), args.Error(1)
}

func (m *MockEvidenceRepository) ReplaceUnit(ctx context.Context, unit evidence.Unit, records []*evidence.Record) (evidence.Mutation, error) {
	args := m.Called(ctx, unit, records)
	return args.Get(0).(evidence.Mutation), args.Error(1)
}

func (m *MockEvidenceRepository) DeleteUnit(ctx context.Context, unit evidence.Unit) (evidence.Mutation, error) {
	args := m.Called(ctx, unit)
	return args.Get(0).(evidence.Mutation), args.Error(1)
}

// blockingEvidence waits for the run context to expire when armed
type blockingEvidence struct {
	*memory.EvidenceRepository
	armed atomic.Bool
}

func (b *blockingEvidence) List(ctx context.Context, filter evidence.Filter) ([]*evidence.Record, error) {
	if b.armed.Load() {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return b.EvidenceRepository.List(ctx, filter)
}

var quiet = internal.NewLogger(internal.LogLevelError)

type fixture struct {
	sources  *memory.SourceRepository
	evidence *memory.EvidenceRepository
	cache    *memory.AggregateCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		sources:  memory.NewSourceRepository(),
		evidence: memory.NewEvidenceRepository(),
		cache:    memory.NewAggregateCache(),
	}
	require.NoError(t, f.sources.Save(ctx, &source.Definition{
		Name: "panels", Origin: source.OriginPipeline, IsActive: true,
		Rule: source.NewCountRule("panels", 1, source.AccumulateMax),
	}))
	require.NoError(t, f.sources.Save(ctx, &source.Definition{
		Name: "clinical", DisplayName: "Clinical Review", Origin: source.OriginPipeline, IsActive: true,
		Rule: source.NewClassificationRule("classifications", 1, map[string]float64{"definitive": 1, "limited": 0.3}, 0.1),
	}))
	f.insert(t,
		rec("G1", "panels", `{"panels":["a"]}`),
		rec("G2", "panels", `{"panels":["a","b","c"]}`),
		rec("G1", "clinical", `{"classifications":["Definitive"]}`),
	)
	return f
}

func rec(gene, src, payload string) *evidence.Record {
	return &evidence.Record{GeneID: core.GeneID(gene), SourceName: core.SourceName(src), Payload: []byte(payload)}
}

func (f *fixture) insert(t *testing.T, recs ...*evidence.Record) {
	t.Helper()
	_, err := f.evidence.InsertBatch(context.Background(), recs)
	require.NoError(t, err)
}

func (f *fixture) coordinator(cfg Config) *Coordinator {
	cfg.Logger = quiet
	return New(scoring.NewEngine(scoring.Options{Logger: quiet}), f.sources, f.evidence, f.cache, cfg)
}

func start(t *testing.T, c *Coordinator) {
	t.Helper()
	c.Start(context.Background())
	t.Cleanup(c.Stop)
}

func TestSnapshotBeforeFirstRun(t *testing.T) {
	c := newFixture(t).coordinator(Config{})
	snap := c.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, uint64(0), snap.Generation)
	assert.Equal(t, StateStale, c.Status().State)
}

func TestRefreshPublishes(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(Config{})
	start(t, c)

	require.NoError(t, c.Refresh(context.Background()))

	snap := c.Snapshot()
	assert.Equal(t, uint64(1), snap.Generation)
	assert.Equal(t, score.ModeFull, snap.Mode)
	g1, ok := snap.Aggregate("G1")
	require.True(t, ok)
	assert.Equal(t, 2, g1.SourceCount)
	assert.Equal(t, 50.0, g1.PercentageScore)

	st := c.Status()
	assert.Equal(t, StatePublished, st.State)
	assert.Equal(t, uint64(1), st.Generation)
	assert.Equal(t, 2, st.Summary.Genes)
	assert.Empty(t, st.LastError)

	// write-through
	gen, cached, err := f.cache.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)
	assert.Equal(t, snap.Aggregates(), cached)
}

func TestTargetedRunMatchesFull(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(Config{})
	start(t, c)
	require.NoError(t, c.Refresh(context.Background()))
	base := c.Snapshot()

	f.insert(t, rec("G3", "clinical", `{"classifications":["Limited"]}`))
	c.TriggerTargeted(scoring.Scope{Sources: []core.SourceName{"clinical"}, Genes: []core.GeneID{"G3"}}, "test")
	require.NoError(t, c.Flush(context.Background()))

	targeted := c.Snapshot()
	assert.Equal(t, uint64(2), targeted.Generation)
	assert.Equal(t, score.ModeTargeted, targeted.Mode)
	_, hadG3 := base.Aggregate("G3")
	assert.False(t, hadG3, "published snapshots are immutable")

	require.NoError(t, c.Refresh(context.Background()))
	full := c.Snapshot()
	assert.Equal(t, full.Fingerprint, targeted.Fingerprint)
}

func TestTargetedWithoutBaseIsPromoted(t *testing.T) {
	c := newFixture(t).coordinator(Config{})
	start(t, c)

	c.TriggerTargeted(scoring.Scope{Sources: []core.SourceName{"panels"}, Genes: []core.GeneID{"G1"}}, "test")
	require.NoError(t, c.Flush(context.Background()))

	snap := c.Snapshot()
	assert.Equal(t, uint64(1), snap.Generation)
	assert.Equal(t, score.ModeFull, snap.Mode)
	assert.Equal(t, 2, snap.GeneCount())
}

func TestTriggersCoalesce(t *testing.T) {
	c := newFixture(t).coordinator(Config{})

	c.TriggerTargeted(scoring.Scope{Sources: []core.SourceName{"panels"}, Genes: []core.GeneID{"G1"}}, "a")
	c.TriggerFull("b")
	c.TriggerTargeted(scoring.Scope{Sources: []core.SourceName{"clinical"}, Genes: []core.GeneID{"G2"}}, "c")

	start(t, c)
	require.NoError(t, c.Flush(context.Background()))

	assert.Equal(t, uint64(1), c.Snapshot().Generation, "three triggers, one run")
	assert.Equal(t, score.ModeFull, c.Snapshot().Mode)
}

func TestRequestMerge(t *testing.T) {
	a := targetedRequest(scoring.Scope{Sources: []core.SourceName{"b"}, Genes: []core.GeneID{"G2"}}, "x")
	a.merge(targetedRequest(scoring.Scope{Sources: []core.SourceName{"a"}, Genes: []core.GeneID{"G1", "G2"}}, "y"))
	assert.False(t, a.full)
	assert.Equal(t, scoring.Scope{Sources: []core.SourceName{"a", "b"}, Genes: []core.GeneID{"G1", "G2"}}, a.scope())
	assert.Equal(t, []string{"x", "y"}, a.reasons)

	a.merge(fullRequest("z"))
	assert.True(t, a.full)
	a.merge(targetedRequest(scoring.Scope{Sources: []core.SourceName{"c"}}, "w"))
	assert.True(t, a.full, "full dominates later targeted triggers")
	assert.Empty(t, a.scope().Sources)
}

func TestFailureKeepsPublishedSnapshot(t *testing.T) {
	f := newFixture(t)
	records, err := f.evidence.List(context.Background(), evidence.Filter{})
	require.NoError(t, err)

	repo := new(MockEvidenceRepository)
	repo.On("List", mock.Anything, mock.Anything).Return(records, nil).Once()
	repo.On("List", mock.Anything, mock.Anything).Return(nil, stderrors.New("connection reset")).Once()

	c := New(scoring.NewEngine(scoring.Options{Logger: quiet}), f.sources, repo, nil, Config{Logger: quiet})
	start(t, c)

	require.NoError(t, c.Refresh(context.Background()))
	published := c.Snapshot()

	err = c.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeRecomputeFailure))
	assert.Same(t, published, c.Snapshot())

	st := c.Status()
	assert.Equal(t, StatePublished, st.State)
	assert.Contains(t, st.LastError, "connection reset")
	require.NotNil(t, st.LastErrorAt)
	repo.AssertExpectations(t)
}

func TestTimeoutKeepsPublishedSnapshot(t *testing.T) {
	f := newFixture(t)
	slow := &blockingEvidence{EvidenceRepository: f.evidence}
	c := New(scoring.NewEngine(scoring.Options{Logger: quiet}), f.sources, slow, nil,
		Config{Timeout: 20 * time.Millisecond, Logger: quiet})
	start(t, c)

	require.NoError(t, c.Refresh(context.Background()))
	published := c.Snapshot()

	slow.armed.Store(true)
	err := c.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Same(t, published, c.Snapshot())
}

func TestRestoreServesCacheUntilRecompute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.cache.Store(ctx, 5, []score.GeneScoreAggregate{
		{GeneID: "G9", SourceCount: 1, PercentageScore: 12, Tier: score.TierPreliminary, Group: score.GroupEmerging},
	}))

	c := f.coordinator(Config{})
	ok, err := c.Restore(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	snap := c.Snapshot()
	assert.Equal(t, score.ModeRestored, snap.Mode)
	assert.Equal(t, uint64(5), snap.Generation)
	_, found := snap.Aggregate("G9")
	assert.True(t, found)

	start(t, c)
	c.TriggerTargeted(scoring.Scope{Sources: []core.SourceName{"panels"}, Genes: []core.GeneID{"G1"}}, "test")
	require.NoError(t, c.Flush(ctx))

	snap = c.Snapshot()
	assert.Equal(t, uint64(6), snap.Generation)
	assert.Equal(t, score.ModeFull, snap.Mode, "a restored snapshot cannot base a targeted run")
	_, found = snap.Aggregate("G9")
	assert.False(t, found)

	ok, err = c.Restore(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "restore never replaces a computed snapshot")
}

func TestDeactivationDropsSource(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(Config{})
	start(t, c)
	require.NoError(t, c.Refresh(context.Background()))

	def, err := f.sources.Get(context.Background(), "clinical")
	require.NoError(t, err)
	def.IsActive = false
	require.NoError(t, f.sources.Save(context.Background(), def))
	c.TriggerFull("deactivate")
	require.NoError(t, c.Flush(context.Background()))

	snap := c.Snapshot()
	assert.Equal(t, 1, snap.TotalActiveSources)
	g1, _ := snap.Aggregate("G1")
	assert.NotContains(t, g1.Breakdown, "Clinical Review")
	assert.Equal(t, 1, g1.SourceCount)
}

func TestStoppedCoordinatorRejectsRequests(t *testing.T) {
	c := newFixture(t).coordinator(Config{})
	c.Start(context.Background())
	c.Stop()

	err := c.Refresh(context.Background())
	assert.ErrorIs(t, err, core.ErrCoordinatorStopped)
}

func TestScheduledRefresh(t *testing.T) {
	c := newFixture(t).coordinator(Config{Interval: 10 * time.Millisecond})
	start(t, c)

	assert.Eventually(t, func() bool {
		return c.Snapshot().Generation >= 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestReadersNeverSeeGenerationGoBackwards(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(Config{})
	start(t, c)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last uint64
			for ctx.Err() == nil {
				gen := c.Snapshot().Generation
				if gen < last {
					t.Errorf("generation went from %d to %d", last, gen)
					return
				}
				last = gen
			}
		}()
	}

	for i := 0; i < 10; i++ {
		f.insert(t, rec("G5", "panels", `{"panels":["x"]}`))
		c.TriggerTargeted(scoring.Scope{Sources: []core.SourceName{"panels"}, Genes: []core.GeneID{"G5"}}, "load")
	}
	require.NoError(t, c.Flush(context.Background()))
	cancel()
	wg.Wait()
	assert.GreaterOrEqual(t, c.Snapshot().Generation, uint64(1))
}

func TestEventsFollowRuns(t *testing.T) {
	f := newFixture(t)
	records, err := f.evidence.List(context.Background(), evidence.Filter{})
	require.NoError(t, err)

	repo := new(MockEvidenceRepository)
	repo.On("List", mock.Anything, mock.Anything).Return(records, nil).Once()
	repo.On("List", mock.Anything, mock.Anything).Return(nil, stderrors.New("connection reset")).Once()

	var (
		mu     sync.Mutex
		events []Event
	)
	c := New(scoring.NewEngine(scoring.Options{Logger: quiet}), f.sources, repo, nil, Config{
		Logger: quiet,
		OnEvent: func(ev Event) {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
		},
	})
	start(t, c)

	require.NoError(t, c.Refresh(context.Background()))
	require.Error(t, c.Refresh(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	assert.Equal(t, EventPublished, events[0].Type)
	assert.Equal(t, uint64(1), events[0].Generation)
	assert.Equal(t, 2, events[0].Genes)
	assert.Equal(t, []string{"manual"}, events[0].Reasons)
	assert.Equal(t, EventFailed, events[1].Type)
	assert.Equal(t, uint64(1), events[1].Generation)
	assert.Contains(t, events[1].Error, "connection reset")
}

func TestTargetedMatchesFullOnSyntheticEvidence(t *testing.T) {
	ctx := context.Background()
	config := testkit.DefaultEvidenceConfig()
	config.GeneCount = 120
	kit, err := testkit.NewTestKit(ctx, config)
	require.NoError(t, err)

	engine := scoring.NewEngine(scoring.Options{Logger: quiet})
	c := New(engine, kit.Sources, kit.Evidence, kit.Cache, Config{Logger: quiet})
	start(t, c)
	require.NoError(t, c.Refresh(ctx))

	updates := []struct {
		gene core.GeneID
		src  core.SourceName
	}{
		{testkit.GeneID(3), "panels"},
		{testkit.GeneID(200), "clinical"},
		{testkit.GeneID(7), "providers"},
		{testkit.GeneID(7), "curated"},
	}
	for _, u := range updates {
		recs := kit.Generator.RecordsFor(u.gene, u.src)
		_, err := kit.Evidence.InsertBatch(ctx, recs)
		require.NoError(t, err)
		c.TriggerTargeted(scoring.Scope{Sources: []core.SourceName{u.src}, Genes: []core.GeneID{u.gene}}, "synthetic update")
		require.NoError(t, c.Flush(ctx))
		require.Equal(t, score.ModeTargeted, c.Snapshot().Mode)
	}

	defs, err := kit.Sources.List(ctx)
	require.NoError(t, err)
	all, err := kit.Evidence.List(ctx, evidence.Filter{})
	require.NoError(t, err)
	full, _, err := engine.Full(ctx, scoring.NewSourceSet(defs), all)
	require.NoError(t, err)

	targeted := c.Snapshot()
	assert.Equal(t, full.AggregateTable(), targeted.AggregateTable())
	assert.Equal(t, full.RowTable(), targeted.RowTable())
	assert.Equal(t, full.Fingerprint, targeted.Fingerprint)
}
