package container

import (
	"context"
	"fmt"
	"time"

	"genescore/adapters/hybrid"
	"genescore/adapters/memory"
	"genescore/adapters/postgres"
	"genescore/app"
	"genescore/internal"
	"genescore/internal/api"
	"genescore/internal/config"
	"genescore/internal/errors"
	"genescore/internal/migration"
	"genescore/internal/refresh"
	"genescore/internal/registry"
	"genescore/internal/scoring"
	"genescore/ports"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const seedDebounce = 500 * time.Millisecond

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *internal.Logger

	// Infrastructure
	DB *sqlx.DB

	// Repositories (data access layer)
	SourceRepo   ports.SourceRepository
	EvidenceRepo ports.EvidenceRepository
	Cache        ports.AggregateCache

	// Scoring
	Registry    *registry.Registry
	Engine      *scoring.Engine
	Coordinator *refresh.Coordinator
	SSEHub      *api.SSEHub

	// Services
	SourceService    *app.SourceService
	IngestionService *app.IngestionService
	ScoreService     *app.ScoreService

	watcher *registry.SeedWatcher
}

// New creates a new dependency injection container
func New(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	logger := internal.NewLogger(internal.ParseLogLevel(cfg.LogLevel))
	return &Container{Config: cfg, Logger: logger}, nil
}

// Init connects the store and builds every component. It does not start
// background work.
func (c *Container) Init(ctx context.Context) error {
	if err := c.initRepositories(ctx); err != nil {
		return fmt.Errorf("failed to initialize repositories: %w", err)
	}
	if err := c.initScoring(ctx); err != nil {
		return fmt.Errorf("failed to initialize scoring: %w", err)
	}
	c.initServices()
	c.Logger.Info("container initialized (%s store)", c.Config.Database.Store)
	return nil
}

// InitWithDatabase initializes the container on an existing connection
func (c *Container) InitWithDatabase(ctx context.Context, db *sqlx.DB) error {
	if db == nil {
		return fmt.Errorf("database connection cannot be nil")
	}
	c.DB = db
	return c.Init(ctx)
}

func (c *Container) initRepositories(ctx context.Context) error {
	if c.Config.Database.Store == config.StoreMemory {
		c.SourceRepo = memory.NewSourceRepository()
		c.EvidenceRepo = memory.NewEvidenceRepository()
		c.Cache = memory.NewAggregateCache()
		return nil
	}

	if c.DB == nil {
		db, err := Connect(ctx, c.Config.Database.URL)
		if err != nil {
			return err
		}
		c.DB = db
	}
	if err := migration.NewRunner().Run(ctx, c.DB); err != nil {
		return errors.Wrap(err, "database migration failed")
	}
	c.SourceRepo = postgres.NewSourceRepository(c.DB)
	c.EvidenceRepo = postgres.NewEvidenceRepository(c.DB)
	c.Cache = postgres.NewAggregateRepository(c.DB)
	return nil
}

// Connect opens and pings a Postgres connection
func Connect(ctx context.Context, url string) (*sqlx.DB, error) {
	if url == "" {
		return nil, errors.ConfigInvalid("DATABASE_URL is required")
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, errors.DatabaseError("failed to connect to database", err)
	}
	return db, nil
}

func (c *Container) initScoring(ctx context.Context) error {
	c.Registry = registry.New(c.SourceRepo, c.Logger.With("registry"))
	if err := c.Registry.Load(ctx); err != nil {
		return err
	}
	c.Engine = scoring.NewEngine(scoring.Options{
		MaxParallelSources: c.Config.Refresh.MaxParallelSources,
		Logger:             c.Logger.With("scoring"),
	})
	c.SSEHub = api.NewSSEHub(c.Logger.With("SSE"))
	c.Coordinator = refresh.New(c.Engine, c.Registry, c.EvidenceRepo, c.Cache, refresh.Config{
		Timeout:  c.Config.Refresh.Timeout,
		Interval: c.Config.Refresh.Interval,
		OnEvent:  c.SSEHub.Publish,
		Logger:   c.Logger.With("refresh"),
	})
	return nil
}

func (c *Container) initServices() {
	c.SourceService = app.NewSourceService(c.Registry, c.Coordinator, c.Logger.With("sources"))
	c.IngestionService = app.NewIngestionService(c.Registry, c.EvidenceRepo,
		hybrid.NewReader(c.Logger.With("DataReader")), c.Coordinator, c.Logger.With("ingestion"))
	c.ScoreService = app.NewScoreService(c.Coordinator)
}

// Start restores the cached snapshot, seeds sources, starts the refresh
// worker and schedules the startup recompute
func (c *Container) Start(ctx context.Context) error {
	if restored, err := c.Coordinator.Restore(ctx); err != nil {
		c.Logger.Warn("starting without cached scores: %v", err)
	} else if restored {
		c.Logger.Info("serving cached scores until the first recompute")
	}

	c.Coordinator.Start(ctx)

	if path := c.Config.Sources.File; path != "" {
		if _, err := c.SeedSources(ctx); err != nil {
			return err
		}
		if c.Config.Sources.Watch {
			w, err := registry.NewSeedWatcher(path, seedDebounce, func() {
				if _, err := c.SeedSources(ctx); err != nil {
					c.Logger.Error("reseed from %s failed: %v", path, err)
				}
			}, c.Logger.With("watch"))
			if err != nil {
				return err
			}
			c.watcher = w
			w.Start()
		}
	}

	c.Coordinator.TriggerFull("startup")
	return nil
}

// SeedSources applies the configured seed file
func (c *Container) SeedSources(ctx context.Context) (registry.SeedResult, error) {
	res, err := c.SourceService.SeedFromFile(ctx, c.Config.Sources.File)
	if err != nil {
		return res, err
	}
	for _, msg := range res.Errors {
		c.Logger.Warn("seed: %s", msg)
	}
	c.Logger.Info("seeded sources from %s: %d created, %d updated, %d unchanged",
		c.Config.Sources.File, res.Created, res.Updated, res.Unchanged)
	return res, nil
}

// Shutdown stops background work and closes the database
func (c *Container) Shutdown(ctx context.Context) error {
	if c.watcher != nil {
		c.watcher.Stop()
	}
	if c.Coordinator != nil {
		c.Coordinator.Stop()
	}
	if c.SSEHub != nil {
		c.SSEHub.Close()
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			return errors.DatabaseError("failed to close database", err)
		}
	}
	return nil
}
