package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"genescore/adapters/hybrid"
	"genescore/adapters/memory"
	"genescore/app"
	"genescore/internal"
	"genescore/internal/refresh"
	"genescore/internal/registry"
	"genescore/internal/scoring"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

var quiet = internal.NewLogger(internal.LogLevelError)

type stack struct {
	coord *refresh.Coordinator
	hub   *SSEHub
	admin *gin.Engine
	read  http.Handler
}

func newStack(t *testing.T) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	reg := registry.New(memory.NewSourceRepository(), quiet)
	require.NoError(t, reg.Load(ctx))
	evidenceRepo := memory.NewEvidenceRepository()
	hub := NewSSEHub(quiet)
	coord := refresh.New(scoring.NewEngine(scoring.Options{Logger: quiet}), reg, evidenceRepo,
		memory.NewAggregateCache(), refresh.Config{Logger: quiet, OnEvent: hub.Publish})
	coord.Start(ctx)
	t.Cleanup(func() {
		coord.Stop()
		hub.Close()
	})

	sources := app.NewSourceService(reg, coord, quiet)
	ingestion := app.NewIngestionService(reg, evidenceRepo, hybrid.NewReader(quiet), coord, quiet)
	scores := app.NewScoreService(coord)

	return &stack{
		coord: coord,
		hub:   hub,
		admin: NewAdminHandler(sources, ingestion, scores, hub, quiet).Router(),
		read:  NewReadApp(scores, quiet).Handler(),
	}
}

func (s *stack) do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func (s *stack) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.coord.Flush(ctx))
}

const panelsJSON = `{"name":"panels","display_name":"Panel Membership","origin":"pipeline","rule":{"type":"count","field":"panels"}}`

const curatedJSON = `{"name":"curated","origin":"hybrid","rule":{"type":"fixed","score":0.6}}`
