package serverhttp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partidas-service/internal/catalog"
	catHnd "partidas-service/internal/catalog/handler"
	"partidas-service/internal/config"
	"partidas-service/internal/learning"
	matchHnd "partidas-service/internal/matching/handler"
	"partidas-service/internal/matching/model"
	"partidas-service/internal/matching/service"
	"partidas-service/internal/store/memory"
)

type testServer struct {
	http.Handler
	store *memory.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.Config{AllowOrigins: []string{"*"}, MaxUploadMB: 4, ChunkSize: 1}
	log := zerolog.Nop()

	mem := memory.New()
	mem.Seed(model.CatalogEntry{
		Code:        "EL-001",
		Description: "Instalación de punto de luz simple",
		Unit:        "ud",
		UnitPrice:   decimal.NewFromInt(25),
	})
	svc := catalog.New(mem, nil)
	engine := learning.New(mem, nil)
	matcher := service.NewMatcher()

	r := NewRouter(cfg, log, Deps{
		Matching: matchHnd.New(matcher, svc, engine, cfg.ChunkSize, cfg.MaxUploadMB, log),
		Catalog:  catHnd.New(svc, cfg.MaxUploadMB, log),
	})
	return &testServer{Handler: r, store: mem}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) upload(t *testing.T, path, filename, content string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

type ndjsonEvent struct {
	Type    service.EventType   `json:"type"`
	Current int                 `json:"current"`
	Total   int                 `json:"total"`
	Results []model.MatchResult `json:"results"`
	Error   string              `json:"error"`
	Summary *service.Summary    `json:"summary"`
}

func readEvents(t *testing.T, rec *httptest.ResponseRecorder) []ndjsonEvent {
	t.Helper()
	var out []ndjsonEvent
	sc := bufio.NewScanner(rec.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for sc.Scan() {
		var ev ndjsonEvent
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		out = append(out, ev)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMatch_StreamsProgressThenComplete(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/match", `{"lines":[
		{"descripcion":"Instalacion punto luz simple","cantidad":4},
		{"descripcion":"Suministro de agua embotellada","cantidad":1}
	]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	assert.True(t, rec.Flushed)

	events := readEvents(t, rec)
	require.Len(t, events, 3)
	assert.Equal(t, service.EventProgress, events[0].Type)
	assert.Equal(t, 1, events[0].Current)
	assert.Equal(t, service.EventProgress, events[1].Type)
	assert.Equal(t, 2, events[1].Current)

	done := events[2]
	require.Equal(t, service.EventComplete, done.Type)
	require.Len(t, done.Results, 2)
	assert.Equal(t, model.EstadoCoincidente, done.Results[0].Estado)
	require.NotNil(t, done.Results[0].Entry)
	assert.Equal(t, "EL-001", done.Results[0].Entry.Code)
	assert.Equal(t, model.EstadoSinCoincidencia, done.Results[1].Estado)

	require.NotNil(t, done.Summary)
	assert.Equal(t, 1, done.Summary.Coincidentes)
	assert.Equal(t, "100.00", done.Summary.EstimatedTotal.StringFixed(2))
}

func TestMatch_MultipartBudget(t *testing.T) {
	s := newTestServer(t)
	csv := "Resumen;CanPres\nInstalacion punto luz simple;4\nLínea sin cantidad;\n"
	rec := s.upload(t, "/match", "budget.csv", csv, map[string]string{"chunk_size": "10"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	events := readEvents(t, rec)
	require.Len(t, events, 2)
	require.Equal(t, service.EventComplete, events[1].Type)
	require.Len(t, events[1].Results, 1)
	assert.Equal(t, 4.0, events[1].Results[0].Quantity)
}

func TestMatch_BadInput(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/match", `{"lines":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/match", `{"lines":[{"descripcion":"x","cantidad":-1}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/match", `{"lineas":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSimilarity(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/similarity", `{"query":"Instalacion punto luz simple","candidate":"Instalación de punto de luz simple"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Score  int          `json:"score"`
		Estado model.Estado `json:"estado"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 100, got.Score)
	assert.Equal(t, model.EstadoCoincidente, got.Estado)

	rec = s.do(t, http.MethodPost, "/similarity", `{"query":"tubo"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfirmations_FeedSimilarity(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/similarity", `{"query":"tubo","candidate":"tuberia"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"score":0`)

	rec = s.do(t, http.MethodPost, "/confirmations", `{"clientDescription":"tubo","catalogDescription":"tuberia"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var out learning.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotNil(t, out.Synonym)
	assert.InDelta(t, 0.3, out.Synonym.Confidence, 1e-9)

	rec = s.do(t, http.MethodGet, "/learning/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"totalConfirmations":1,"uniqueWords":0,"synonymPairs":1}`, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/similarity", `{"query":"tubo","candidate":"tuberia"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"score":0`)

	rec = s.do(t, http.MethodPost, "/confirmations", `{"clientDescription":"","catalogDescription":"tuberia"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPartidas_CRUD(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/partidas", `{"codigo":"FO-010","descripcion":"Tubería de cobre","unidad":"m","precioUnitario":"12.5"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created model.CatalogEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	rec = s.do(t, http.MethodGet, "/partidas?q=cobre", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var found []model.CatalogEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &found))
	require.Len(t, found, 1)
	assert.Equal(t, "FO-010", found[0].Code)

	rec = s.do(t, http.MethodPut, "/partidas/"+created.ID, `{"codigo":"FO-010","descripcion":"Tubería de cobre 15 mm","precioUnitario":"13"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/partidas?q=15+mm", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &found))
	require.Len(t, found, 1)
	assert.True(t, found[0].UnitPrice.Equal(decimal.NewFromInt(13)))

	rec = s.do(t, http.MethodPost, "/partidas", `{"codigo":"","descripcion":"sin código"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodDelete, "/partidas/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodDelete, "/partidas/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPartidas_Import(t *testing.T) {
	s := newTestServer(t)
	csv := "Código;Resumen;Ud;Precio\nFO-010;Tubería de cobre;m;12,50\nFO-011;Tubería de cobre 18 mm;m;1.234,00\n;sin código;m;1\n"
	rec := s.upload(t, "/partidas/import", "precios.csv", csv, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"created":2,"skipped":0}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/partidas?q=FO-011", "")
	var found []model.CatalogEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &found))
	require.Len(t, found, 1)
	assert.True(t, found[0].UnitPrice.Equal(decimal.NewFromInt(1234)))

	rec = s.upload(t, "/partidas/import", "precios.csv", "Código;Resumen;Precio\nFO-020;Codo de cobre;2\n", map[string]string{"dry_run": "true"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)
	rec = s.do(t, http.MethodGet, "/partidas?q=FO-020", "")
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = s.upload(t, "/partidas/import", "vacio.csv", "Código;Resumen\n", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func matchedItems(t *testing.T, s *testServer) []model.MatchResult {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/match", `{"lines":[
		{"descripcion":"Instalacion punto luz simple","cantidad":4},
		{"descripcion":"Suministro de agua embotellada","cantidad":2}
	]}`)
	events := readEvents(t, rec)
	return events[len(events)-1].Results
}

func TestResults_SummaryAndExport(t *testing.T) {
	s := newTestServer(t)
	items := matchedItems(t, s)
	body, err := json.Marshal(map[string]any{"items": items, "globalPercentage": "10", "name": "obra"})
	require.NoError(t, err)

	rec := s.do(t, http.MethodPost, "/results/summary", string(body))
	require.Equal(t, http.StatusOK, rec.Code)
	var sum service.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, "110.00", sum.EstimatedTotal.StringFixed(2))

	rec = s.do(t, http.MethodPost, "/results/export?format=bc3", string(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `obra.bc3`)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "~V|"))
	assert.Contains(t, rec.Body.String(), "\r\n")

	rec = s.do(t, http.MethodPost, "/results/export", string(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `obra.xlsx`)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))

	rec = s.do(t, http.MethodPost, "/results/export?format=pdf", string(body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/results/export", `{"items":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResults_Review(t *testing.T) {
	s := newTestServer(t)
	items := matchedItems(t, s)

	similar := items[0]
	similar.Estado = model.EstadoSimilar
	similar.Confidence = 82
	body, _ := json.Marshal(map[string]any{"items": []model.MatchResult{similar, items[1]}})
	rec := s.do(t, http.MethodPost, "/results/auto-validate", string(body))
	require.Equal(t, http.StatusOK, rec.Code)
	var av struct {
		Validated []string            `json:"validated"`
		Items     []model.MatchResult `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &av))
	assert.Equal(t, []string{similar.ID}, av.Validated)
	assert.Equal(t, model.EstadoCoincidente, av.Items[0].Estado)

	body, _ = json.Marshal(map[string]any{"item": similar})
	rec = s.do(t, http.MethodPost, "/results/confirm", string(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"learned":true`)

	// unmatched result has nothing to confirm
	body, _ = json.Marshal(map[string]any{"item": items[1]})
	rec = s.do(t, http.MethodPost, "/results/confirm", string(body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	entry := model.CatalogEntry{ID: "x", Code: "AG-001", Description: "Agua embotellada", UnitPrice: decimal.NewFromInt(3)}
	body, _ = json.Marshal(map[string]any{"item": items[1], "entry": entry})
	rec = s.do(t, http.MethodPost, "/results/link", string(body))
	require.Equal(t, http.StatusOK, rec.Code)
	var linked struct {
		Item    model.MatchResult `json:"item"`
		Learned bool              `json:"learned"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &linked))
	assert.True(t, linked.Learned)
	assert.Equal(t, model.EstadoCoincidente, linked.Item.Estado)
	require.NotNil(t, linked.Item.Entry)
	assert.Equal(t, "AG-001", linked.Item.Entry.Code)

	st := s.do(t, http.MethodGet, "/learning/stats", "")
	assert.Contains(t, st.Body.String(), `"totalConfirmations":2`)
}
