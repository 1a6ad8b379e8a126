package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/ListingImport/internal/config"
	"github.com/JonMunkholm/ListingImport/internal/core"
	"github.com/JonMunkholm/ListingImport/internal/jobs"
	"github.com/JonMunkholm/ListingImport/internal/listing"
)

const exampleActive = "Item ID,Title,Price,Quantity Available,Status\n" +
	"123456789,Widget,$19.99,5,Active\n" +
	",Bad Row,$9.99,1,Active"

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 5 * time.Second},
		Import: config.ImportConfig{MaxFileSize: 1 << 20, RetentionHours: 24},
	}
}

type testEnv struct {
	srv     *Server
	manager *jobs.Manager
	store   *listing.MemoryStore
}

// newTestEnv builds a server whose manager is not running, so jobs stay
// PENDING unless run is true.
func newTestEnv(t *testing.T, cfg *config.Config, run bool) *testEnv {
	t.Helper()
	store := listing.NewMemoryStore()
	store.AddAccount("acct", "Shop")
	manager := jobs.NewManager(jobs.NewMemoryStore(), store, store, jobs.Config{MaxFileSize: cfg.Import.MaxFileSize})
	if run {
		ctx, cancel := context.WithCancel(context.Background())
		go manager.Run(ctx)
		t.Cleanup(cancel)
	}
	srv := NewServer(manager, cfg, nil)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, manager: manager, store: store}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, path, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(content))
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestCreateJob_Accepted(t *testing.T) {
	env := newTestEnv(t, testConfig(), false)

	rec := env.do(uploadRequest(t, "/api/jobs", "active.csv", exampleActive, map[string]string{"account_id": "acct"}))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	job := decode[map[string]any](t, rec)
	if job["status"] != "PENDING" || job["detected_format"] != "ACTIVE" {
		t.Errorf("job = %v", job)
	}
	if _, leaked := job["csv_content"]; leaked {
		t.Error("response includes file content")
	}
	if loc := rec.Header().Get("Location"); loc != "/api/jobs/"+job["job_id"].(string) {
		t.Errorf("Location = %q", loc)
	}
}

func TestCreateJob_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  string
		fields   map[string]string
		status   int
		code     string
	}{
		{"no file", "", "", map[string]string{"account_id": "acct"}, http.StatusBadRequest, "FILE004"},
		{"no account", "a.csv", exampleActive, nil, http.StatusBadRequest, "REQ003"},
		{"unknown account", "a.csv", exampleActive, map[string]string{"account_id": "ghost"}, http.StatusNotFound, "ACC001"},
		{"bad format name", "a.csv", exampleActive, map[string]string{"account_id": "acct", "format": "pending"}, http.StatusBadRequest, "REQ003"},
		{"unrecognized", "a.csv", "Name,Email\nA,a@example.com\n", map[string]string{"account_id": "acct"}, http.StatusUnprocessableEntity, "FMT002"},
		{"hint mismatch", "a.csv", exampleActive, map[string]string{"account_id": "acct", "format": "sold"}, http.StatusUnprocessableEntity, "FMT003"},
		{"empty file", "a.csv", "", map[string]string{"account_id": "acct"}, http.StatusUnprocessableEntity, "FILE005"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, testConfig(), false)
			rec := env.do(uploadRequest(t, "/api/jobs", tt.filename, tt.content, tt.fields))

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body)
			}
			resp := decode[ErrorResponse](t, rec)
			if resp.Code != tt.code {
				t.Errorf("code = %q, want %q (%+v)", resp.Code, tt.code, resp)
			}

			list, _ := env.manager.ListJobs(context.Background(), jobs.JobFilter{})
			if len(list) != 0 {
				t.Errorf("rejected request created %d jobs", len(list))
			}
		})
	}
}

func TestCreateJob_TooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Import.MaxFileSize = 64
	env := newTestEnv(t, cfg, false)

	big := exampleActive + strings.Repeat("\n987654321,Filler,$1.00,1,Active", 100)
	rec := env.do(uploadRequest(t, "/api/jobs", "a.csv", big, map[string]string{"account_id": "acct"}))
	if rec.Code != http.StatusUnprocessableEntity && rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if resp := decode[ErrorResponse](t, rec); resp.Code != "FILE001" {
		t.Errorf("code = %q, want FILE001", resp.Code)
	}
}

func TestJobLifecycle(t *testing.T) {
	env := newTestEnv(t, testConfig(), true)

	rec := env.do(uploadRequest(t, "/api/jobs", "active.csv", exampleActive, map[string]string{"account_id": "acct"}))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("create status = %d", rec.Code)
	}
	id := decode[jobs.ImportJob](t, rec).ID

	var job jobs.ImportJob
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec = env.do(httptest.NewRequest(http.MethodGet, "/api/jobs/"+id, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("get status = %d", rec.Code)
		}
		job = decode[jobs.ImportJob](t, rec)
		if job.Status.IsTerminal() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if job.Status != jobs.StatusCompleted || job.Result == nil || job.Result.CreatedCount != 1 {
		t.Fatalf("job = %+v", job)
	}
	if job.Content != "" {
		t.Error("job content exposed")
	}

	// Cancelling a finished job conflicts.
	rec = env.do(httptest.NewRequest(http.MethodPost, "/api/jobs/"+id+"/cancel", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("cancel status = %d, want 409", rec.Code)
	}
	if resp := decode[ErrorResponse](t, rec); resp.Code != "JOB002" {
		t.Errorf("cancel code = %q", resp.Code)
	}

	if got := len(env.store.Listings("acct")); got != 1 {
		t.Errorf("stored listings = %d, want 1", got)
	}
}

func TestCancelJob(t *testing.T) {
	env := newTestEnv(t, testConfig(), false)
	id, err := env.manager.CreateJob(context.Background(), jobs.CreateJobRequest{AccountID: "acct", Content: exampleActive})
	if err != nil {
		t.Fatal(err)
	}

	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/jobs/"+id+"/cancel", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if job := decode[jobs.ImportJob](t, rec); job.Status != jobs.StatusCancelled {
		t.Errorf("status = %s", job.Status)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	env := newTestEnv(t, testConfig(), false)

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil),
		httptest.NewRequest(http.MethodPost, "/api/jobs/missing/cancel", nil),
	} {
		rec := env.do(req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s %s status = %d, want 404", req.Method, req.URL.Path, rec.Code)
		}
		if resp := decode[ErrorResponse](t, rec); resp.Code != "JOB001" {
			t.Errorf("%s code = %q, want JOB001", req.URL.Path, resp.Code)
		}
	}
}

func TestListJobs(t *testing.T) {
	env := newTestEnv(t, testConfig(), false)
	env.store.AddAccount("other", "Other")
	ctx := context.Background()

	first, _ := env.manager.CreateJob(ctx, jobs.CreateJobRequest{AccountID: "acct", Content: exampleActive})
	env.manager.CreateJob(ctx, jobs.CreateJobRequest{AccountID: "acct", Content: exampleActive})
	env.manager.CreateJob(ctx, jobs.CreateJobRequest{AccountID: "other", Content: exampleActive})
	env.manager.CancelJob(ctx, first)

	type listResp struct {
		Jobs  []jobs.ImportJob `json:"jobs"`
		Count int              `json:"count"`
	}

	tests := []struct {
		query  string
		status int
		count  int
	}{
		{"", http.StatusOK, 3},
		{"?account_id=acct", http.StatusOK, 2},
		{"?account_id=acct&status=pending", http.StatusOK, 1},
		{"?status=CANCELLED", http.StatusOK, 1},
		{"?limit=1", http.StatusOK, 1},
		{"?status=done", http.StatusBadRequest, 0},
		{"?limit=-2", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/jobs"+tt.query, nil))
		if rec.Code != tt.status {
			t.Errorf("GET /api/jobs%s status = %d, want %d", tt.query, rec.Code, tt.status)
			continue
		}
		if tt.status != http.StatusOK {
			continue
		}
		resp := decode[listResp](t, rec)
		if resp.Count != tt.count || len(resp.Jobs) != tt.count {
			t.Errorf("GET /api/jobs%s count = %d, want %d", tt.query, resp.Count, tt.count)
		}
		for _, j := range resp.Jobs {
			if j.Content != "" {
				t.Errorf("GET /api/jobs%s exposed content", tt.query)
			}
		}
	}
}

func TestStatisticsAndCleanup(t *testing.T) {
	env := newTestEnv(t, testConfig(), false)
	ctx := context.Background()
	id, _ := env.manager.CreateJob(ctx, jobs.CreateJobRequest{AccountID: "acct", Content: exampleActive})
	env.manager.CreateJob(ctx, jobs.CreateJobRequest{AccountID: "acct", Content: exampleActive})
	env.manager.CancelJob(ctx, id)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/jobs/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	stats := decode[jobs.Statistics](t, rec)
	if stats.Total != 2 || stats.ByStatus[jobs.StatusPending] != 1 || stats.ByStatus[jobs.StatusCancelled] != 1 {
		t.Errorf("stats = %+v", stats)
	}

	// Default retention keeps the fresh cancelled job.
	rec = env.do(httptest.NewRequest(http.MethodPost, "/api/jobs/cleanup", nil))
	if got := decode[map[string]any](t, rec)["removed"]; got != float64(0) {
		t.Errorf("removed with default retention = %v", got)
	}

	rec = env.do(httptest.NewRequest(http.MethodPost, "/api/jobs/cleanup?max_age_hours=0", nil))
	if got := decode[map[string]any](t, rec)["removed"]; got != float64(1) {
		t.Errorf("removed with zero age = %v, want 1", got)
	}

	rec = env.do(httptest.NewRequest(http.MethodPost, "/api/jobs/cleanup?max_age_hours=x", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad max_age_hours status = %d", rec.Code)
	}
}

func TestDetect(t *testing.T) {
	env := newTestEnv(t, testConfig(), false)

	rec := env.do(uploadRequest(t, "/api/detect", "active_listings.csv", exampleActive, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	res := decode[core.DetectionResult](t, rec)
	if res.Format != core.FormatActive || res.Confidence != 0.9 {
		t.Errorf("detect = %+v, want ACTIVE 0.9", res)
	}

	rec = env.do(uploadRequest(t, "/api/detect", "x.csv", "Item ID,Title,Price\n\"1,A,5\n", nil))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("malformed status = %d", rec.Code)
	}
	if resp := decode[ErrorResponse](t, rec); resp.Code != "FMT001" {
		t.Errorf("malformed code = %q", resp.Code)
	}
}

func TestValidate(t *testing.T) {
	env := newTestEnv(t, testConfig(), false)

	type validateResp struct {
		Format core.Format           `json:"format"`
		Report core.ValidationReport `json:"report"`
	}

	rec := env.do(uploadRequest(t, "/api/validate", "a.csv", exampleActive, nil))
	resp := decode[validateResp](t, rec)
	if resp.Format != core.FormatActive || !resp.Report.IsValid || resp.Report.RowCount != 2 {
		t.Errorf("validate = %+v", resp)
	}

	rec = env.do(uploadRequest(t, "/api/validate", "a.csv", "Item ID,Title\n1,A\n", map[string]string{"format": "ACTIVE"}))
	resp = decode[validateResp](t, rec)
	if resp.Report.IsValid || len(resp.Report.Errors) != 1 || !strings.Contains(resp.Report.Errors[0], "price") {
		t.Errorf("validate missing column = %+v", resp.Report)
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error {
	return errors.New("listing store unavailable: connection refused")
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, testConfig(), false)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
	srv := NewServer(env.manager, testConfig(), failingPinger{})
	defer srv.Shutdown(context.Background())
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy status = %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2}
	env := newTestEnv(t, cfg, false)

	for i := 0; i < 2; i++ {
		if rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if resp := decode[ErrorResponse](t, rec); resp.Code != "RATE001" {
		t.Errorf("code = %q", resp.Code)
	}

	// A different client has its own window.
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "198.51.100.20:1234"
	if rec := env.do(req); rec.Code != http.StatusOK {
		t.Errorf("other client status = %d", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&core.ValidationError{Reason: "format not recognized"}, http.StatusUnprocessableEntity},
		{core.ErrMalformedContent, http.StatusUnprocessableEntity},
		{listing.ErrAccountNotFound, http.StatusNotFound},
		{jobs.ErrNotFound, http.StatusNotFound},
		{jobs.ErrInvalidState, http.StatusConflict},
		{jobs.ErrQueueFull, http.StatusServiceUnavailable},
		{fmt.Errorf("get job a: %w: dial tcp: connection refused", jobs.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{listing.ErrUnavailable, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestCORS(t *testing.T) {
	cfg := testConfig()
	cfg.Security.CORSOrigins = []string{"https://seller.example.com"}
	env := newTestEnv(t, cfg, false)

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/jobs", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		return env.do(req)
	}

	if got := preflight("https://seller.example.com").Header().Get("Access-Control-Allow-Origin"); got != "https://seller.example.com" {
		t.Errorf("allowed origin: Access-Control-Allow-Origin = %q", got)
	}
	if got := preflight("https://evil.example.com").Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unknown origin: Access-Control-Allow-Origin = %q, want empty", got)
	}

	plain := newTestEnv(t, testConfig(), false)
	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	req.Header.Set("Origin", "https://seller.example.com")
	if got := plain.do(req).Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("CORS disabled: Access-Control-Allow-Origin = %q, want empty", got)
	}
}
