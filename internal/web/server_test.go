package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/equipstat/internal/blob"
	"github.com/JonMunkholm/equipstat/internal/config"
	"github.com/JonMunkholm/equipstat/internal/core"
	"github.com/JonMunkholm/equipstat/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const plantCSV = `Equipment Name,Type,Flowrate,Pressure,Temperature
Pump A,Pump,120.5,2.3,65.0
Reactor R1,Reactor,45.2,5.8,180.0
`

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 30 * time.Second},
		Upload: config.UploadConfig{MaxFileSize: 1 << 20},
		Security: config.SecurityConfig{
			APIKeys:       []string{"alice:key-a", "bob:key-b"},
			RequireAPIKey: true,
		},
		Pagination: config.PaginationConfig{DefaultLimit: 200},
	}
}

type testServer struct {
	srv   *Server
	clock *clockwork.FakeClock
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	local, err := blob.NewLocal(t.TempDir())
	require.NoError(t, err)

	clock := clockwork.NewFakeClock()
	svc, err := core.NewService(store.NewMemory(clock), local, core.Options{Clock: clock})
	require.NoError(t, err)

	srv, err := NewServer(svc, cfg, WithClock(clock))
	require.NoError(t, err)
	return &testServer{srv: srv, clock: clock}
}

func (ts *testServer) do(t *testing.T, method, path, key string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) upload(t *testing.T, key, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return ts.do(t, http.MethodPost, "/api/datasets", key, &buf, mw.FormDataContentType())
}

func (ts *testServer) mustUpload(t *testing.T, key, name, content string) UploadResponse {
	t.Helper()
	rec := ts.upload(t, key, name, content)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth_NoAuth(t *testing.T) {
	ts := newTestServer(t, testConfig())

	rec := ts.do(t, http.MethodGet, "/api/health", "", nil, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestDatasets_RequireKey(t *testing.T) {
	ts := newTestServer(t, testConfig())

	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/api/datasets", "", nil, "").Code)
	assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodGet, "/api/datasets", "wrong", nil, "").Code)
}

func TestUpload_ReturnsSummary(t *testing.T) {
	ts := newTestServer(t, testConfig())

	rec := ts.upload(t, "key-a", "plant.csv", plantCSV)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := rec.Body.String()
	assert.Contains(t, body, `"original_filename":"plant.csv"`)
	assert.Contains(t, body, `"row_count":2`)
	assert.Contains(t, body, `"type_distribution":{"Pump":1,"Reactor":1}`)
	assert.Contains(t, body, `"evicted":[]`)

	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Dataset.Summary.TotalCount)
	require.NotNil(t, resp.Dataset.Summary.Averages.Flowrate)
	assert.InDelta(t, 82.85, *resp.Dataset.Summary.Averages.Flowrate, 1e-9)
}

func TestUpload_MissingColumns(t *testing.T) {
	ts := newTestServer(t, testConfig())

	rec := ts.upload(t, "key-a", "bad.csv", "Name,Kind\nPump A,Pump\n")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "VAL001", resp.Code)
	assert.True(t, strings.HasPrefix(resp.Message, "Missing required columns: "), resp.Message)
	assert.Contains(t, resp.Message, "flowrate, pressure, temperature")

	list := ts.do(t, http.MethodGet, "/api/datasets", "key-a", nil, "")
	assert.JSONEq(t, `[]`, list.Body.String())
}

func TestUpload_EmptyCSV(t *testing.T) {
	ts := newTestServer(t, testConfig())

	rec := ts.upload(t, "key-a", "empty.csv", "Equipment Name,Type,Flowrate,Pressure,Temperature\n")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "CSV is empty.", decodeError(t, rec).Message)
}

func TestUpload_NoFile(t *testing.T) {
	ts := newTestServer(t, testConfig())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("other", "x"))
	require.NoError(t, mw.Close())

	rec := ts.do(t, http.MethodPost, "/api/datasets", "key-a", &buf, mw.FormDataContentType())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "FILE003", decodeError(t, rec).Code)
}

func TestUpload_TooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Upload.MaxFileSize = 256
	ts := newTestServer(t, cfg)

	rec := ts.upload(t, "key-a", "big.csv", plantCSV+strings.Repeat("Pump B,Pump,1,2,3\n", 100))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "FILE001", decodeError(t, rec).Code)
}

func TestUpload_RetentionEvictsOldest(t *testing.T) {
	ts := newTestServer(t, testConfig())

	var ids []int64
	for i := 0; i < 5; i++ {
		resp := ts.mustUpload(t, "key-a", fmt.Sprintf("f%d.csv", i), plantCSV)
		ids = append(ids, resp.Dataset.ID)
		ts.clock.Advance(time.Second)
	}

	resp := ts.mustUpload(t, "key-a", "f5.csv", plantCSV)
	assert.Equal(t, []int64{ids[0]}, resp.Retention.Evicted)

	rec := ts.do(t, http.MethodGet, "/api/datasets", "key-a", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []core.Dataset
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 5)
	assert.Equal(t, resp.Dataset.ID, list[0].ID)

	gone := ts.do(t, http.MethodGet, fmt.Sprintf("/api/datasets/%d", ids[0]), "key-a", nil, "")
	assert.Equal(t, http.StatusNotFound, gone.Code)
}

func TestDataset_OwnerIsolation(t *testing.T) {
	ts := newTestServer(t, testConfig())
	resp := ts.mustUpload(t, "key-a", "plant.csv", plantCSV)
	path := fmt.Sprintf("/api/datasets/%d", resp.Dataset.ID)

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, path, "key-a", nil, "").Code)
	for _, suffix := range []string{"", "/data", "/csv", "/report"} {
		rec := ts.do(t, http.MethodGet, path+suffix, "key-b", nil, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, suffix)
	}
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, path, "key-b", nil, "").Code)
}

func TestDataset_BadID(t *testing.T) {
	ts := newTestServer(t, testConfig())

	rec := ts.do(t, http.MethodGet, "/api/datasets/abc", "key-a", nil, "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "DS001", decodeError(t, rec).Code)
}

func TestDatasetRows_Window(t *testing.T) {
	ts := newTestServer(t, testConfig())
	resp := ts.mustUpload(t, "key-a", "plant.csv", plantCSV)
	base := fmt.Sprintf("/api/datasets/%d/data", resp.Dataset.ID)

	rec := ts.do(t, http.MethodGet, base+"?offset=0&limit=10", "key-a", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page RowsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, resp.Dataset.ID, page.DatasetID)
	assert.Equal(t, 2, page.TotalRows)
	assert.Equal(t, 10, page.Limit)
	require.Len(t, page.Rows, 2)
	assert.Equal(t, "Pump A", page.Rows[0].EquipmentName)
	assert.Equal(t, core.Columns(), page.Columns)

	rec = ts.do(t, http.MethodGet, base+"?offset=5", "key-a", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"rows":[]`)
	assert.Contains(t, rec.Body.String(), `"limit":200`)

	rec = ts.do(t, http.MethodGet, base+"?offset=-3&limit=99999", "key-a", nil, "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 0, page.Offset)
	assert.Equal(t, core.MaxPageLimit, page.Limit)
}

func TestDatasetCSV_CanonicalHeader(t *testing.T) {
	ts := newTestServer(t, testConfig())
	resp := ts.mustUpload(t, "key-a", "plant.csv",
		"temp,Pressure,flow_rate,equipment type,Name\n65,2.3,120.5,Pump,Pump A\n")

	rec := ts.do(t, http.MethodGet, fmt.Sprintf("/api/datasets/%d/csv", resp.Dataset.ID), "key-a", nil, "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), fmt.Sprintf("dataset_%d.csv", resp.Dataset.ID))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Equipment Name,Type,Flowrate,Pressure,Temperature", lines[0])
	assert.Equal(t, "Pump A,Pump,120.5,2.3,65", lines[1])
}

func TestDatasetReport(t *testing.T) {
	ts := newTestServer(t, testConfig())
	resp := ts.mustUpload(t, "key-a", "plant.csv", plantCSV)

	rec := ts.do(t, http.MethodGet, fmt.Sprintf("/api/datasets/%d/report", resp.Dataset.ID), "key-a", nil, "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), fmt.Sprintf("Equipment Dataset Report (#%d)", resp.Dataset.ID))
	assert.Contains(t, rec.Body.String(), "82.85")
}

func TestDeleteDataset(t *testing.T) {
	ts := newTestServer(t, testConfig())
	resp := ts.mustUpload(t, "key-a", "plant.csv", plantCSV)
	path := fmt.Sprintf("/api/datasets/%d", resp.Dataset.ID)

	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, path, "key-a", nil, "").Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, path, "key-a", nil, "").Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, path, "key-a", nil, "").Code)
}

func TestUploadRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerSecond: 100, Burst: 100, UploadsPerMinute: 2}
	ts := newTestServer(t, cfg)

	ts.mustUpload(t, "key-a", "a.csv", plantCSV)
	ts.mustUpload(t, "key-a", "b.csv", plantCSV)

	rec := ts.upload(t, "key-a", "c.csv", plantCSV)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Another owner has its own budget.
	ts.mustUpload(t, "key-b", "d.csv", plantCSV)

	ts.clock.Advance(30 * time.Second)
	ts.mustUpload(t, "key-a", "e.csv", plantCSV)
}

func TestSecurityHeaders(t *testing.T) {
	cfg := testConfig()
	cfg.Security.EnableCSP = true
	ts := newTestServer(t, cfg)

	rec := ts.do(t, http.MethodGet, "/api/health", "", nil, "")

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestCORS_Preflight(t *testing.T) {
	cfg := testConfig()
	cfg.Security.AllowedOrigins = []string{"https://app.example.com"}
	ts := newTestServer(t, cfg)

	req := httptest.NewRequest(http.MethodOptions, "/api/datasets", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, testConfig())
	ts.mustUpload(t, "key-a", "plant.csv", plantCSV)

	rec := ts.do(t, http.MethodGet, "/metrics", "", nil, "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "equipstat_ingest_total")
	assert.Contains(t, rec.Body.String(), "equipstat_http_requests_total")
}
