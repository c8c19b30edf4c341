package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"genescore/adapters/hybrid"
	"genescore/app"
	"genescore/domain/core"
	"genescore/domain/evidence"
	"genescore/domain/source"
	"genescore/internal"
	"genescore/internal/errors"
	"genescore/internal/registry"

	"github.com/gin-gonic/gin"
)

const maxUploadBytes = 32 << 20

// AdminHandler serves source configuration, evidence ingestion and manual
// refresh over gin
type AdminHandler struct {
	sources   *app.SourceService
	ingestion *app.IngestionService
	scores    *app.ScoreService
	hub       *SSEHub
	logger    *internal.Logger
}

// NewAdminHandler creates the admin handler. hub may be nil.
func NewAdminHandler(sources *app.SourceService, ingestion *app.IngestionService, scores *app.ScoreService, hub *SSEHub, logger *internal.Logger) *AdminHandler {
	if logger == nil {
		logger = internal.DefaultLogger.With("admin")
	}
	return &AdminHandler{
		sources:   sources,
		ingestion: ingestion,
		scores:    scores,
		hub:       hub,
		logger:    logger,
	}
}

// Router builds the gin engine
func (h *AdminHandler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = maxUploadBytes

	api := r.Group("/api")
	{
		api.GET("/sources", h.listSources)
		api.POST("/sources", h.createSource)
		api.POST("/sources/seed", h.seedSources)
		api.GET("/sources/:name", h.getSource)
		api.PUT("/sources/:name", h.updateSource)
		api.POST("/sources/:name/activate", h.activateSource)
		api.POST("/sources/:name/deactivate", h.deactivateSource)
		api.GET("/sources/:name/template", h.uploadTemplate)

		api.POST("/evidence", h.insertEvidence)
		api.PUT("/evidence/:source", h.replaceUnit)
		api.DELETE("/evidence/:source", h.deleteUnit)
		api.POST("/evidence/:source/upload", h.upload)

		api.POST("/refresh", h.refresh)
		api.GET("/status", h.status)
		if h.hub != nil {
			api.GET("/events", h.hub.HandleSSE)
		}
	}
	return r
}

func (h *AdminHandler) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, bodyOf(err))
}

func (h *AdminHandler) badRequest(c *gin.Context, err error) {
	h.fail(c, errors.WithCode(errors.CodeInvalidInput, err))
}

func (h *AdminHandler) listSources(c *gin.Context) {
	defs, err := h.sources.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]sourceView, 0, len(defs))
	for _, def := range defs {
		out = append(out, viewOf(def))
	}
	c.JSON(http.StatusOK, gin.H{"sources": out})
}

func (h *AdminHandler) getSource(c *gin.Context) {
	def, err := h.sources.Get(c.Request.Context(), core.SourceName(c.Param("name")))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(def))
}

func (h *AdminHandler) createSource(c *gin.Context) {
	var spec source.Spec
	if err := c.ShouldBindJSON(&spec); err != nil {
		h.badRequest(c, err)
		return
	}
	def, err := h.sources.Create(c.Request.Context(), spec)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, viewOf(def))
}

func (h *AdminHandler) updateSource(c *gin.Context) {
	var spec source.Spec
	if err := c.ShouldBindJSON(&spec); err != nil {
		h.badRequest(c, err)
		return
	}
	def, err := h.sources.Update(c.Request.Context(), core.SourceName(c.Param("name")), spec)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(def))
}

func (h *AdminHandler) activateSource(c *gin.Context) {
	def, err := h.sources.Activate(c.Request.Context(), core.SourceName(c.Param("name")))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(def))
}

func (h *AdminHandler) deactivateSource(c *gin.Context) {
	def, err := h.sources.Deactivate(c.Request.Context(), core.SourceName(c.Param("name")))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(def))
}

// seedSources applies a YAML seed document posted as the request body
func (h *AdminHandler) seedSources(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxUploadBytes))
	if err != nil {
		h.badRequest(c, err)
		return
	}
	seed, err := registry.ParseSeed(body)
	if err != nil {
		h.badRequest(c, err)
		return
	}
	res, err := h.sources.Seed(c.Request.Context(), seed)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// uploadTemplate downloads an empty workbook for a hybrid source
func (h *AdminHandler) uploadTemplate(c *gin.Context) {
	def, err := h.sources.Get(c.Request.Context(), core.SourceName(c.Param("name")))
	if err != nil {
		h.fail(c, err)
		return
	}
	var extra []string
	switch rule := def.Rule.(type) {
	case *source.CountRule:
		if rule.Field != "" {
			extra = append(extra, rule.Field)
		}
	case *source.ClassificationRule:
		extra = append(extra, rule.Field)
	}

	var buf bytes.Buffer
	if err := hybrid.WriteTemplate(&buf, extra...); err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, def.Name))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

type insertRequest struct {
	Records []*evidence.Record `json:"records" binding:"required"`
}

func (h *AdminHandler) insertEvidence(c *gin.Context) {
	var req insertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	res, err := h.ingestion.InsertBatch(c.Request.Context(), req.Records)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, res)
}

// unitOf reads the unit from the path and the optional ?detail= query
func unitOf(c *gin.Context) evidence.Unit {
	unit := evidence.Unit{Source: core.SourceName(c.Param("source"))}
	if detail, ok := c.GetQuery("detail"); ok {
		unit.Detail = &detail
	}
	return unit
}

func (h *AdminHandler) replaceUnit(c *gin.Context) {
	var req insertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	mut, err := h.ingestion.ReplaceUnit(c.Request.Context(), unitOf(c), req.Records)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, mut)
}

func (h *AdminHandler) deleteUnit(c *gin.Context) {
	mut, err := h.ingestion.DeleteUnit(c.Request.Context(), unitOf(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, mut)
}

func (h *AdminHandler) upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		h.badRequest(c, err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.badRequest(c, err)
		return
	}
	defer f.Close()

	mut, err := h.ingestion.ImportUpload(c.Request.Context(), core.SourceName(c.Param("source")), fh.Filename, f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, mut)
}

// refresh runs a full recompute and waits up to ?timeout= (default 1m)
func (h *AdminHandler) refresh(c *gin.Context) {
	timeout := time.Minute
	if raw := c.Query("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			h.badRequest(c, err)
			return
		}
		timeout = d
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	if err := h.scores.Refresh(ctx); err != nil {
		if ctx.Err() != nil {
			c.JSON(http.StatusAccepted, gin.H{"status": "recomputing", "error": err.Error()})
			return
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.scores.Status())
}

func (h *AdminHandler) status(c *gin.Context) {
	c.JSON(http.StatusOK, h.scores.Status())
}

// sourceView is a definition with its rule in serializable form
type sourceView struct {
	*source.Definition
	Rule source.RuleSpec `json:"rule"`
}

func viewOf(def *source.Definition) sourceView {
	spec, _ := source.SpecOf(def.Rule)
	return sourceView{Definition: def, Rule: spec}
}
