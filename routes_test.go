package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"paper-auditor/config"
	"paper-auditor/gateway"
	"paper-auditor/models"
	"paper-auditor/services"
	"paper-auditor/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testPaper = `Citation Checks in Practice

Introduction

Prior work [1] showed that citations drift.

References

[1] Smith, J. (2020). Deep learning for citation analysis. Journal of AI, 12(3), 45-67.
`

func newTestServer(apiKey string) *server {
	cfg := &config.Config{AuditConcurrency: 2, APISecretKey: apiKey, LLMModel: ""}
	gw := gateway.New(nil, gateway.Options{Sink: &gateway.MemorySink{}})
	return &server{
		cfg:      cfg,
		pipeline: services.NewPipeline(cfg, config.DefaultScoring(), gw, zap.NewNop()),
		logger:   zap.NewNop(),
	}
}

func routerFor(srv *server) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	srv.routes(router)
	return router
}

func newTestRouter(t *testing.T, apiKey string) *gin.Engine {
	t.Helper()
	return routerFor(newTestServer(apiKey))
}

// memReportStore keeps saved reports in insertion order.
type memReportStore struct {
	mu      sync.Mutex
	records []models.AuditRecord
	reports map[string]*models.AnalysisReport
}

func (m *memReportStore) Save(_ context.Context, report *models.AnalysisReport, model, archiveKey string) (*models.AuditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reports == nil {
		m.reports = map[string]*models.AnalysisReport{}
	}
	rec := models.AuditRecord{
		ID:             uint(len(m.records) + 1),
		RunID:          report.RunID,
		PaperTitle:     report.PaperTitle,
		Model:          model,
		TotalCitations: report.TotalCitations,
		MissingCount:   report.MissingCount,
		ArchiveKey:     archiveKey,
	}
	m.records = append(m.records, rec)
	m.reports[report.RunID] = report
	return &rec, nil
}

func (m *memReportStore) Get(_ context.Context, runID string) (*models.AnalysisReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[runID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return r, nil
}

func (m *memReportStore) Recent(_ context.Context, limit int) ([]models.AuditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AuditRecord
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.records[i])
	}
	return out, nil
}

func doJSON(router *gin.Engine, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateAuditWithoutProvidersReportsMissing(t *testing.T) {
	router := newTestRouter(t, "")
	w := doJSON(router, http.MethodPost, "/api/v1/audits", gin.H{"text": testPaper}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var report models.AnalysisReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 1, report.TotalCitations)
	assert.Equal(t, 1, report.MissingCount)
	assert.Equal(t, models.StatusMissing, report.AuditedCitations[0].Status)
	assert.NotEmpty(t, report.RunID)
}

func TestCreateAuditValidation(t *testing.T) {
	router := newTestRouter(t, "")

	w := doJSON(router, http.MethodPost, "/api/v1/audits", gin.H{"text": "   "}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodPost, "/api/v1/audits", gin.H{"text": testPaper, "model": "not-a-model"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "model not allowed")

	w = doJSON(router, http.MethodPost, "/api/v1/audits", gin.H{"text": testPaper, "references": "[]", "references_format": "ris"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExtractEndpointWithBibTeX(t *testing.T) {
	router := newTestRouter(t, "")
	w := doJSON(router, http.MethodPost, "/api/v1/citations/extract", gin.H{
		"text":       "We build on earlier results (Smith, 2020).",
		"references": "@article{smith2020, title={Deep learning for citation analysis}, author={Smith, John}, year={2020}}",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var ex services.Extraction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ex))
	require.Len(t, ex.References, 1)
	assert.Equal(t, "smith2020", ex.References[0].Key)
	assert.Len(t, ex.References[0].Contexts, 1)
}

func TestAPIKeyMiddleware(t *testing.T) {
	router := newTestRouter(t, "secret")

	w := doJSON(router, http.MethodGet, "/api/v1/models", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(router, http.MethodGet, "/api/v1/models", nil, map[string]string{"X-API-KEY": "secret"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "gpt-4o")

	w = doJSON(router, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetAuditWithoutStore(t *testing.T) {
	router := newTestRouter(t, "")
	w := doJSON(router, http.MethodGet, "/api/v1/audits/some-run", nil, nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestNormalizeTextEndpoint(t *testing.T) {
	router := newTestRouter(t, "")
	w := doJSON(router, http.MethodPost, "/api/v1/text/normalize", gin.H{"text": "citation ana-\nlysis   works"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "analysis")
}

func TestStoredAuditsAreListedAndLoaded(t *testing.T) {
	srv := newTestServer("")
	store := &memReportStore{}
	srv.store = store
	router := routerFor(srv)

	var runIDs []string
	for range 3 {
		w := doJSON(router, http.MethodPost, "/api/v1/audits", gin.H{"text": testPaper}, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var report models.AnalysisReport
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
		runIDs = append(runIDs, report.RunID)
	}

	w := doJSON(router, http.MethodGet, "/api/v1/audits?limit=2", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listing struct {
		Audits []models.AuditRecord `json:"audits"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	require.Len(t, listing.Audits, 2)
	assert.Equal(t, runIDs[2], listing.Audits[0].RunID)
	assert.Equal(t, runIDs[1], listing.Audits[1].RunID)
	assert.Equal(t, 1, listing.Audits[0].MissingCount)

	w = doJSON(router, http.MethodGet, "/api/v1/audits/"+runIDs[0], nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), runIDs[0])

	w = doJSON(router, http.MethodGet, "/api/v1/audits/unknown-run", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(router, http.MethodGet, "/api/v1/audits?limit=zero", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListAuditsWithoutStore(t *testing.T) {
	router := newTestRouter(t, "")
	w := doJSON(router, http.MethodGet, "/api/v1/audits", nil, nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestAuditCallLogEndpoint(t *testing.T) {
	callLog, err := storage.OpenSQLiteCallLog(filepath.Join(t.TempDir(), "calls.db"), zap.NewNop())
	require.NoError(t, err)
	defer callLog.Close()

	ts := time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC)
	callLog.Record(context.Background(), &models.APICall{RunID: "run-7", Timestamp: ts, Service: "crossref", Method: "title", Success: true, ResultCount: 2})
	callLog.Record(context.Background(), &models.APICall{RunID: "run-7", Timestamp: ts.Add(time.Second), Service: "pubmed", Method: "title", Error: "timeout"})

	srv := newTestServer("")
	srv.calls = callLog
	router := routerFor(srv)

	w := doJSON(router, http.MethodGet, "/api/v1/audits/run-7/calls", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		RunID string           `json:"run_id"`
		Calls []models.APICall `json:"calls"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "run-7", body.RunID)
	require.Len(t, body.Calls, 2)
	assert.Equal(t, "crossref", body.Calls[0].Service)
	assert.Equal(t, "timeout", body.Calls[1].Error)

	w = doJSON(router, http.MethodGet, "/api/v1/audits/run-8/calls", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(newTestRouter(t, ""), http.MethodGet, "/api/v1/audits/run-7/calls", nil, nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}
