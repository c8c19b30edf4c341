package refresh

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"genescore/domain/core"
	"genescore/domain/evidence"
	"genescore/domain/score"
	"genescore/domain/source"
	"genescore/internal"
	"genescore/internal/errors"
	"genescore/internal/scoring"
	"genescore/ports"
)

// State is the coordinator lifecycle as readers see it
type State string

const (
	StateStale       State = "stale"
	StateRecomputing State = "recomputing"
	StatePublished   State = "published"
)

// SourceLister supplies the current source definitions
type SourceLister interface {
	List(ctx context.Context) ([]*source.Definition, error)
}

// Config tunes the coordinator
type Config struct {
	// Timeout cancels a run that takes longer; 0 disables it
	Timeout time.Duration
	// Interval schedules a full recompute; 0 disables it
	Interval time.Duration
	// OnEvent is called from the worker after each run; it must not block
	OnEvent func(Event)
	Logger  *internal.Logger
}

// Coordinator owns the published snapshot and the single worker that
// replaces it. Readers load the snapshot without locking.
type Coordinator struct {
	engine   *scoring.Engine
	sources  SourceLister
	evidence ports.EvidenceRepository
	cache    ports.AggregateCache
	timeout  time.Duration
	interval time.Duration
	onEvent  func(Event)
	logger   *internal.Logger

	snap atomic.Pointer[score.Snapshot]

	mu         sync.Mutex
	pending    *request
	running    *request
	started    bool
	stopped    bool
	lastErr    error
	lastErrAt  time.Time
	lastReport *scoring.Report

	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a coordinator publishing an empty snapshot. cache may be nil.
func New(engine *scoring.Engine, sources SourceLister, evidenceRepo ports.EvidenceRepository, cache ports.AggregateCache, cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = internal.DefaultLogger.With("refresh")
	}
	c := &Coordinator{
		engine:   engine,
		sources:  sources,
		evidence: evidenceRepo,
		cache:    cache,
		timeout:  cfg.Timeout,
		interval: cfg.Interval,
		onEvent:  cfg.OnEvent,
		logger:   cfg.Logger,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	c.snap.Store(score.Empty())
	return c
}

// Snapshot returns the last published snapshot. It never blocks and never
// returns nil.
func (c *Coordinator) Snapshot() *score.Snapshot {
	return c.snap.Load()
}

// Start launches the worker. It runs until ctx is done or Stop is called.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.stopped {
		return
	}
	c.started = true
	go c.loop(ctx)
}

// Stop ends the worker after the in-flight run. Pending requests fail with
// core.ErrCoordinatorStopped.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if started {
		<-c.done
	} else {
		c.drain(core.ErrCoordinatorStopped)
	}
}

// TriggerFull requests a recompute of every source and gene
func (c *Coordinator) TriggerFull(reason string) {
	c.enqueue(fullRequest(reason))
}

// TriggerTargeted requests a recompute bounded to scope. An empty scope is
// ignored.
func (c *Coordinator) TriggerTargeted(scope scoring.Scope, reason string) {
	if len(scope.Sources) == 0 {
		return
	}
	c.enqueue(targetedRequest(scope, reason))
}

// Refresh requests a full recompute and waits for the run that serves it
func (c *Coordinator) Refresh(ctx context.Context) error {
	req := fullRequest("manual")
	ch := make(chan error, 1)
	req.waiters = append(req.waiters, ch)
	c.enqueue(req)
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush waits until every request enqueued so far has been served
func (c *Coordinator) Flush(ctx context.Context) error {
	c.mu.Lock()
	var ch chan error
	switch {
	case c.pending != nil:
		ch = make(chan error, 1)
		c.pending.waiters = append(c.pending.waiters, ch)
	case c.running != nil:
		ch = make(chan error, 1)
		c.running.waiters = append(c.running.waiters, ch)
	}
	c.mu.Unlock()

	if ch == nil {
		return nil
	}
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) enqueue(req *request) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		req.notify(core.ErrCoordinatorStopped)
		return
	}
	if c.pending == nil {
		c.pending = req
	} else {
		c.pending.merge(req)
		coalescedTotal.Inc()
	}
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Coordinator) loop(ctx context.Context) {
	defer close(c.done)

	var tick <-chan time.Time
	if c.interval > 0 {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			c.drain(ctx.Err())
			return
		case <-c.stop:
			c.drain(core.ErrCoordinatorStopped)
			return
		case <-tick:
			c.TriggerFull("scheduled")
		case <-c.wake:
			for req := c.take(); req != nil; req = c.take() {
				c.execute(ctx, req)
			}
		}
	}
}

func (c *Coordinator) take() *request {
	c.mu.Lock()
	defer c.mu.Unlock()
	req := c.pending
	c.pending = nil
	c.running = req
	return req
}

func (c *Coordinator) drain(err error) {
	c.mu.Lock()
	c.stopped = true
	req := c.pending
	c.pending = nil
	c.mu.Unlock()
	if req != nil {
		req.notify(err)
	}
}

func (c *Coordinator) execute(ctx context.Context, req *request) {
	before := c.snap.Load().Generation
	err := c.recompute(ctx, req)
	c.emit(req, before, err)

	c.mu.Lock()
	if err != nil {
		c.lastErr = err
		c.lastErrAt = time.Now().UTC()
	}
	c.running = nil
	c.mu.Unlock()

	req.notify(err)
}

func (c *Coordinator) emit(req *request, before uint64, err error) {
	if c.onEvent == nil {
		return
	}
	snap := c.snap.Load()
	ev := Event{
		Generation: snap.Generation,
		Mode:       snap.Mode,
		Genes:      snap.GeneCount(),
		Reasons:    append([]string(nil), req.reasons...),
		Timestamp:  time.Now().UTC(),
	}
	switch {
	case err != nil:
		ev.Type = EventFailed
		ev.Error = err.Error()
	case snap.Generation != before:
		ev.Type = EventPublished
	default:
		return
	}
	c.onEvent(ev)
}

// recompute runs one request against the current snapshot and publishes the
// result. On any failure the current snapshot stays published.
func (c *Coordinator) recompute(parent context.Context, req *request) (err error) {
	start := time.Now()
	base := c.snap.Load()

	ctx, span := startRunSpan(parent, req)
	var snap *score.Snapshot
	defer func() { endRunSpan(span, snap, err) }()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	mode := score.ModeFull
	defs, err := c.sources.List(ctx)
	if err != nil {
		return c.fail(mode, base, err)
	}
	set := scoring.NewSourceSet(defs)

	if !req.full {
		if base.CanBaseTargeted() && scoring.SameSources(base.ActiveSources, set.ActiveNames()) {
			mode = score.ModeTargeted
		} else {
			promotedTotal.Inc()
			c.logger.Debug("targeted request promoted to full (base generation %d, mode %q)", base.Generation, base.Mode)
		}
	}

	var (
		records []*evidence.Record
		report  scoring.Report
	)
	if mode == score.ModeFull {
		records, err = c.evidence.List(ctx, evidence.Filter{})
		if err != nil {
			return c.fail(mode, base, err)
		}
		snap, report, err = c.engine.Full(ctx, set, records)
	} else {
		plan := c.engine.PlanTargeted(set, req.scope())
		if plan.Empty() {
			c.logger.Debug("targeted request touches no active source; nothing to recompute")
			return nil
		}
		records, err = c.load(ctx, plan.Filters())
		if err != nil {
			return c.fail(mode, base, err)
		}
		snap, report, err = c.engine.Targeted(ctx, base, set, plan, records)
	}
	if err != nil {
		snap = nil
		return c.fail(mode, base, err)
	}

	snap.Generation = base.Generation + 1
	snap.ID = core.NewSnapshotID()
	snap.ComputedAt = time.Now().UTC()
	snap.Duration = time.Since(start)
	if !c.snap.CompareAndSwap(base, snap) {
		return c.fail(mode, base, core.ErrRecomputeSuperseded)
	}

	recordRun(mode, snap.Duration.Seconds(), nil)
	recordPublished(snap)
	for name, n := range report.ExcludedRecords {
		excludedRecords.WithLabelValues(name.String()).Add(float64(n))
	}

	c.mu.Lock()
	c.lastReport = &report
	c.mu.Unlock()

	c.logger.Info("published generation %d (%s): %d genes, %d active sources, %d records in %s [%v]",
		snap.Generation, snap.Mode, snap.GeneCount(), snap.TotalActiveSources,
		report.RecordsScored, snap.Duration.Round(time.Millisecond), req.reasons)

	c.writeThrough(parent, snap)
	return nil
}

func (c *Coordinator) fail(mode score.Mode, base *score.Snapshot, cause error) error {
	err := errors.RecomputeFailure(cause)
	recordRun(mode, 0, err)
	c.logger.Error("%v; generation %d stays published", err, base.Generation)
	return err
}

// load reads the records of several filters, each record once
func (c *Coordinator) load(ctx context.Context, filters []evidence.Filter) ([]*evidence.Record, error) {
	seen := make(map[core.RecordID]bool)
	var out []*evidence.Record
	for _, f := range filters {
		recs, err := c.evidence.List(ctx, f)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			if seen[rec.ID] {
				continue
			}
			seen[rec.ID] = true
			out = append(out, rec)
		}
	}
	return out, nil
}

func (c *Coordinator) writeThrough(ctx context.Context, snap *score.Snapshot) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Store(ctx, snap.Generation, snap.Aggregates()); err != nil {
		c.logger.Warn("aggregate cache not updated for generation %d: %v", snap.Generation, err)
	}
}

// Restore publishes the cached aggregates when nothing has been computed yet.
// The restored snapshot serves reads until the first full recompute.
func (c *Coordinator) Restore(ctx context.Context) (bool, error) {
	if c.cache == nil {
		return false, nil
	}
	generation, aggs, err := c.cache.Load(ctx)
	if err != nil {
		return false, errors.Wrap(err, "failed to load aggregate cache")
	}
	if generation == 0 || len(aggs) == 0 {
		return false, nil
	}

	table := make(map[core.GeneID]score.GeneScoreAggregate, len(aggs))
	for _, agg := range aggs {
		table[agg.GeneID] = agg
	}
	snap := score.NewSnapshot(nil, table)
	snap.Generation = generation
	snap.ID = core.NewSnapshotID()
	snap.Mode = score.ModeRestored
	snap.ComputedAt = time.Now().UTC()
	snap.Fingerprint = scoring.Fingerprint(snap.Aggregates())

	current := c.snap.Load()
	if current.Generation != 0 || !c.snap.CompareAndSwap(current, snap) {
		return false, nil
	}
	recordPublished(snap)
	c.logger.Info("restored generation %d from cache: %d genes", generation, snap.GeneCount())
	return true, nil
}
