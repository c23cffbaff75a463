package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arogya-labs/warehouse-cli/internal/config"
	"github.com/arogya-labs/warehouse-cli/internal/ingest"
	"github.com/arogya-labs/warehouse-cli/internal/model"
	"github.com/arogya-labs/warehouse-cli/internal/store"
	"github.com/arogya-labs/warehouse-cli/internal/tabular"
)

func newTestRouter(t *testing.T) (http.Handler, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	serverCfg := config.ServerConfig{
		RateLimitRPS:   100,
		RateLimitBurst: 100,
		CORSOrigins:    []string{"*"},
	}
	return newAPIRouter(ingest.New(st), st, serverCfg), st
}

func uploadRequest(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/ingestion/patient-visits", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

// badGenderCSV is a valid upload except the single data row carries an
// unrecognized gender.
func badGenderCSV() []byte {
	content := string(tabular.TemplateCSV())
	return []byte(strings.Replace(content, "Male", "Unknown", 1))
}

func TestServe_Health(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestServe_UploadValidCSV(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "visits.csv", tabular.TemplateCSV()))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Message    string           `json:"message"`
		JobSummary model.JobSummary `json:"job_summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "file processed successfully", resp.Message)
	assert.Equal(t, 1, resp.JobSummary.TotalRecords)
	assert.Equal(t, 1, resp.JobSummary.SuccessCount)
	assert.Equal(t, model.JobStatusCompleted, resp.JobSummary.Status)
}

func TestServe_UploadUnsupportedExtension(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "visits.txt", []byte("not tabular")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported")
}

func TestServe_UploadMissingColumns(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "visits.csv", []byte("patient_name,age\nAsha,34\n")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing required columns")
}

func TestServe_UploadEmptyFile(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "visits.csv", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "empty")
}

func TestServe_UploadNoFilePart(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/ingestion/patient-visits", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "no file part")
}

func TestServe_ListJobs(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "visits.csv", tabular.TemplateCSV()))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ingestion/jobs?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var jobs []model.IngestionJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, "visits.csv", jobs[0].SourceFile)
	assert.Equal(t, model.JobStatusCompleted, jobs[0].Status)
}

func TestServe_JobErrors(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "visits.csv", badGenderCSV()))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		JobSummary model.JobSummary `json:"job_summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.JobSummary.FailureCount)
	require.Equal(t, model.JobStatusFailed, resp.JobSummary.Status)

	rec = httptest.NewRecorder()
	path := fmt.Sprintf("/api/ingestion/jobs/%d/errors", resp.JobSummary.JobID)
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0]["error_message"], "invalid gender")

	payload, ok := entries[0]["raw_payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Rajesh Sharma", payload["patient_name"])
}

func TestServe_JobErrorsBadID(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ingestion/jobs/abc/errors", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServe_Template(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ingestion/template", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "patient_visit_template.csv")
	assert.Equal(t, tabular.TemplateCSV(), rec.Body.Bytes())
}

func TestServe_RateLimit(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	router := newAPIRouter(ingest.New(st), st, config.ServerConfig{
		RateLimitRPS:   0, // no refill: burst is the hard cap
		RateLimitBurst: 1,
		CORSOrigins:    []string{"*"},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "visits.csv", tabular.TemplateCSV()))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "visits.csv", tabular.TemplateCSV()))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
