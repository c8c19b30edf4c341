package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"genescore/app"
	"genescore/domain/score"
	"genescore/internal"
	"genescore/internal/errors"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadApp serves published scores over chi. Every handler reads the last
// published snapshot and never waits on a recompute.
type ReadApp struct {
	router *chi.Mux
	scores *app.ScoreService
	logger *internal.Logger
}

// NewReadApp creates the read application
func NewReadApp(scores *app.ScoreService, logger *internal.Logger) *ReadApp {
	if logger == nil {
		logger = internal.DefaultLogger.With("read")
	}
	a := &ReadApp{
		router: chi.NewRouter(),
		scores: scores,
		logger: logger,
	}
	a.setupMiddleware()
	a.setupRoutes()
	return a
}

// Handler returns the HTTP handler
func (a *ReadApp) Handler() http.Handler {
	return a.router
}

func (a *ReadApp) setupMiddleware() {
	a.router.Use(middleware.RequestID)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Compress(5))
}

func (a *ReadApp) setupRoutes() {
	a.router.Get("/genes", a.handleGenes)
	a.router.Get("/genes/{id}", a.handleGene)
	a.router.Get("/status", a.handleStatus)
	a.router.Get("/report", a.handleReport)
	a.router.Handle("/metrics", promhttp.Handler())
}

func (a *ReadApp) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("failed to encode response: %v", err)
	}
}

func (a *ReadApp) writeError(w http.ResponseWriter, err error) {
	a.writeJSON(w, statusOf(err), bodyOf(err))
}

func (a *ReadApp) handleGene(w http.ResponseWriter, r *http.Request) {
	gene, err := a.scores.Get(chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, gene)
}

func (a *ReadApp) handleGenes(w http.ResponseWriter, r *http.Request) {
	q, err := queryOf(r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	page, err := a.scores.List(q)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, page)
}

func (a *ReadApp) handleStatus(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.scores.Status())
}

// handleReport renders the Markdown report as HTML, or raw with ?format=md
func (a *ReadApp) handleReport(w http.ResponseWriter, r *http.Request) {
	top, _ := strconv.Atoi(r.URL.Query().Get("top"))
	md := a.scores.Report(top)

	if r.URL.Query().Get("format") == "md" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(md))
		return
	}

	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage,
		Title: "Gene evidence scores",
	})
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(markdown.ToHTML([]byte(md), p, renderer))
}

// queryOf parses listing filters from the URL
func queryOf(r *http.Request) (score.Query, error) {
	v := r.URL.Query()
	q := score.Query{
		Tier:      score.Tier(v.Get("tier")),
		Group:     score.Group(v.Get("group")),
		Sort:      score.SortField(v.Get("sort")),
		Ascending: v.Get("order") == "asc",
	}
	if order := v.Get("order"); order != "" && order != "asc" && order != "desc" {
		return q, errors.InvalidInput("order must be asc or desc")
	}

	var err error
	if raw := v.Get("min_percentage"); raw != "" {
		if q.MinPercentage, err = strconv.ParseFloat(raw, 64); err != nil {
			return q, errors.InvalidInput("min_percentage must be a number")
		}
	}
	ints := []struct {
		key string
		dst *int
	}{
		{"min_sources", &q.MinSources},
		{"limit", &q.Limit},
		{"offset", &q.Offset},
	}
	for _, it := range ints {
		raw := v.Get(it.key)
		if raw == "" {
			continue
		}
		if *it.dst, err = strconv.Atoi(raw); err != nil {
			return q, errors.InvalidInput(it.key + " must be an integer")
		}
	}
	if q.Limit == 0 {
		q.Limit = 100
	}
	return q, nil
}
