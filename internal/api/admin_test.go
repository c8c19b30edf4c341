package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"genescore/domain/evidence"
	"genescore/internal/errors"
	"genescore/internal/refresh"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestSourceEndpoints(t *testing.T) {
	s := newStack(t)

	w := s.do(s.admin, http.MethodPost, "/api/sources", panelsJSON)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "count", gjson.Get(w.Body.String(), "rule.type").String())
	assert.True(t, gjson.Get(w.Body.String(), "is_active").Bool())

	w = s.do(s.admin, http.MethodPost, "/api/sources", panelsJSON)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, errors.CodeConflict, gjson.Get(w.Body.String(), "code").String())

	w = s.do(s.admin, http.MethodPost, "/api/sources", `{"name":"x","origin":"pipeline","rule":{"type":"classification"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(s.admin, http.MethodPost, "/api/sources", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errors.CodeInvalidInput, gjson.Get(w.Body.String(), "code").String())

	w = s.do(s.admin, http.MethodGet, "/api/sources/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(s.admin, http.MethodPut, "/api/sources/panels", `{"origin":"pipeline","display_name":"Panels","rule":{"type":"count","field":"panels","accumulate":"sum"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Panels", gjson.Get(w.Body.String(), "display_name").String())
	assert.Equal(t, "sum", gjson.Get(w.Body.String(), "rule.accumulate").String())

	w = s.do(s.admin, http.MethodPost, "/api/sources/panels/deactivate", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, gjson.Get(w.Body.String(), "is_active").Bool())

	w = s.do(s.admin, http.MethodGet, "/api/sources", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), gjson.Get(w.Body.String(), "sources.#").Int())
}

func TestSeedEndpoint(t *testing.T) {
	s := newStack(t)
	yaml := `
sources:
  - name: panels
    origin: pipeline
    rule: {type: count, field: panels}
  - name: clinical
    origin: pipeline
    rule:
      type: classification
      field: classifications
      weight_map: {definitive: 1.0}
      unmapped_score: 0.1
`
	req := httptest.NewRequest(http.MethodPost, "/api/sources/seed", strings.NewReader(yaml))
	w := httptest.NewRecorder()
	s.admin.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int64(2), gjson.Get(w.Body.String(), "created").Int())
}

func TestEvidenceEndpoints(t *testing.T) {
	s := newStack(t)
	require.Equal(t, http.StatusCreated, s.do(s.admin, http.MethodPost, "/api/sources", panelsJSON).Code)

	w := s.do(s.admin, http.MethodPost, "/api/evidence", `{"records":[
		{"gene_id":"G1","source_name":"panels","payload":{"panels":["a","b"]}},
		{"gene_id":"G2","source_name":"panels","detail":"lab-x","payload":{"panels":["a"]}}
	]}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, int64(2), gjson.Get(w.Body.String(), "inserted").Int())

	w = s.do(s.admin, http.MethodPost, "/api/evidence", `{"records":[{"gene_id":"G1","source_name":"nope"}]}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(s.admin, http.MethodPost, "/api/evidence", `{"records":[null]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Equal(t, errors.CodeValidationError, gjson.Get(w.Body.String(), "code").String())

	w = s.do(s.admin, http.MethodPut, "/api/evidence/panels", `{"records":[null]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = s.do(s.admin, http.MethodPut, "/api/evidence/panels?detail=lab-x", `{"records":[
		{"gene_id":"G3","payload":{"panels":["a","b","c"]}}
	]}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var mut evidence.Mutation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &mut))
	assert.Equal(t, 1, mut.Deleted)
	assert.Equal(t, 1, mut.Inserted)
	require.NotNil(t, mut.Unit.Detail)
	assert.Equal(t, "lab-x", *mut.Unit.Detail)

	s.flush(t)
	w = s.do(s.read, http.MethodGet, "/genes/G3", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 100.0, gjson.Get(w.Body.String(), "percentage_score").Float())

	w = s.do(s.admin, http.MethodDelete, "/api/evidence/panels?detail=lab-x", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "G3", gjson.Get(w.Body.String(), "affected_genes.0").String())

	s.flush(t)
	w = s.do(s.read, http.MethodGet, "/genes/G3", "")
	assert.Equal(t, "no_evidence", gjson.Get(w.Body.String(), "tier").String())
}

func TestUploadAndTemplate(t *testing.T) {
	s := newStack(t)
	require.Equal(t, http.StatusCreated, s.do(s.admin, http.MethodPost, "/api/sources", curatedJSON).Code)
	require.Equal(t, http.StatusCreated, s.do(s.admin, http.MethodPost, "/api/sources", panelsJSON).Code)

	w := s.do(s.admin, http.MethodGet, "/api/sources/curated/template", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "curated.xlsx")

	upload := func(src string) *httptest.ResponseRecorder {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("file", "genes.csv")
		require.NoError(t, err)
		_, err = part.Write([]byte("gene_id,gene_symbol\nHGNC:1,PKD1\nHGNC:2,PKD2\n"))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/evidence/"+src+"/upload", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()
		s.admin.ServeHTTP(rec, req)
		return rec
	}

	w = upload("curated")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, int64(2), gjson.Get(w.Body.String(), "inserted").Int())

	w = upload("panels")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(s.admin, http.MethodPost, "/api/evidence/curated/upload", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefreshEndpoint(t *testing.T) {
	s := newStack(t)
	require.Equal(t, http.StatusCreated, s.do(s.admin, http.MethodPost, "/api/sources", panelsJSON).Code)

	w := s.do(s.admin, http.MethodPost, "/api/refresh", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "published", gjson.Get(w.Body.String(), "state").String())
	assert.Positive(t, gjson.Get(w.Body.String(), "generation").Int())

	w = s.do(s.admin, http.MethodPost, "/api/refresh?timeout=soon", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(s.admin, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEventsStream(t *testing.T) {
	s := newStack(t)
	srv := httptest.NewServer(s.admin)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return s.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	s.hub.Publish(refresh.Event{Type: refresh.EventPublished, Generation: 7})

	scanner := bufio.NewScanner(resp.Body)
	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		lines = append(lines, line)
		if strings.HasPrefix(line, "data:") {
			break
		}
	}
	require.GreaterOrEqual(t, len(lines), 2)
	assert.Equal(t, "event:published", lines[len(lines)-2])
	assert.Contains(t, lines[len(lines)-1], `"generation":7`)
}
