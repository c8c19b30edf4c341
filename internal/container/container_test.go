package container

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"genescore/domain/core"
	"genescore/domain/evidence"
	"genescore/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seed = `
sources:
  - name: panels
    origin: pipeline
    rule: {type: count, field: panels}
`

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))
	return &config.Config{
		Database: config.DatabaseConfig{Store: config.StoreMemory},
		Server:   config.ServerConfig{AdminPort: "8080", ReadPort: "8081"},
		Sources:  config.SourcesConfig{File: path},
		Refresh:  config.RefreshConfig{MaxParallelSources: 2, Timeout: time.Minute},
		LogLevel: "ERROR",
	}
}

func TestMemoryContainerLifecycle(t *testing.T) {
	ctx := context.Background()
	c, err := New(memoryConfig(t))
	require.NoError(t, err)
	require.NoError(t, c.Init(ctx))
	require.NoError(t, c.Start(ctx))
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })

	defs, err := c.SourceService.List(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 1)

	_, err = c.IngestionService.InsertBatch(ctx, []*evidence.Record{{
		GeneID: "G1", SourceName: "panels", Payload: []byte(`{"panels":["a"]}`),
	}})
	require.NoError(t, err)

	flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, c.Coordinator.Flush(flushCtx))

	g, err := c.ScoreService.Get("G1")
	require.NoError(t, err)
	assert.Equal(t, core.GeneID("G1"), g.GeneID)
	assert.Equal(t, 100.0, g.PercentageScore)

	_, cached, err := c.Cache.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, cached, 1)
}

func TestNewRejectsNilConfig(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}
