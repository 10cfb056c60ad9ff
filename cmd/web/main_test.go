package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"ecommerce-dashboard/internal/cache"
	"ecommerce-dashboard/internal/config"
	"ecommerce-dashboard/internal/models"
	"ecommerce-dashboard/internal/observability"
	"ecommerce-dashboard/internal/services"
	"ecommerce-dashboard/internal/ui/templates"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() *config.Config {
	return &config.Config{
		Data: config.DataConfig{
			SampleDefault: 5000,
			SampleMin:     1000,
			SampleMax:     10000,
		},
		Security: config.SecurityConfig{
			EnableRateLimit: false,
			AllowedOrigins:  []string{"*"},
		},
	}
}

// Test helper to create analytics with test data
func newTestAnalytics() *services.Analytics {
	a := services.NewAnalytics(services.WithLogger(testLogger()))
	a.SetData([]models.Record{
		{InvoiceNo: "536365", StockCode: "85123A", Description: "WHITE HANGING HEART T-LIGHT HOLDER", Quantity: 6, UnitPrice: 2.55, CustomerID: "17850", Country: "United Kingdom", InvoiceDate: time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC), TotalPrice: 15.3},
		{InvoiceNo: "536370", StockCode: "22728", Description: "ALARM CLOCK BAKELIKE PINK", Quantity: 24, UnitPrice: 3.75, CustomerID: "12583", Country: "France", InvoiceDate: time.Date(2010, 12, 1, 8, 45, 0, 0, time.UTC), TotalPrice: 90},
		{InvoiceNo: "540003", StockCode: "23084", Description: "RABBIT NIGHT LIGHT", Quantity: 12, UnitPrice: 2.08, CustomerID: "12583", Country: "France", InvoiceDate: time.Date(2011, 3, 15, 10, 0, 0, 0, time.UTC), TotalPrice: 24.96},
	})
	return a
}

func newTestHandler() (http.Handler, *observability.Metrics) {
	metrics := observability.NewMetrics()
	return newHandler(testConfig(), newTestAnalytics(), metrics, testLogger()), metrics
}

// Integration tests for HTTP routes
func TestServer_Routes(t *testing.T) {
	handler, _ := newTestHandler()

	tests := []struct {
		path           string
		expectedStatus int
		contentType    string
	}{
		{"/", http.StatusOK, "text/html"},
		{"/api/report", http.StatusOK, "application/json"},
		{"/api/report?year=2011&country=France", http.StatusOK, "application/json"},
		{"/api/options", http.StatusOK, "application/json"},
		{"/api/tables/country_table", http.StatusOK, "application/json"},
		{"/api/tables/unknown", http.StatusNotFound, "application/json"},
		{"/api/sample.csv", http.StatusOK, "text/csv"},
		{"/health", http.StatusOK, "application/json"},
		{"/admin/stats", http.StatusOK, "application/json"},
		{"/metrics", http.StatusOK, "text/plain"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)

			handler.ServeHTTP(w, r)

			if w.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.expectedStatus)
			}

			ct := w.Header().Get("Content-Type")
			if !strings.Contains(ct, tt.contentType) {
				t.Errorf("content-type = %q, want %q", ct, tt.contentType)
			}

			// Validate JSON responses
			if tt.contentType == "application/json" {
				var result any
				if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
					t.Errorf("invalid json: %v", err)
				}
			}
		})
	}
}

func TestServer_MiddlewareHeaders(t *testing.T) {
	handler, _ := newTestHandler()

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/report", nil))

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("response should carry a request id")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestServer_SSERoute(t *testing.T) {
	handler, _ := newTestHandler()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/sse/report", nil)
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Errorf("content-type = %q, should contain 'text/event-stream'", ct)
	}
	if !strings.Contains(w.Body.String(), "ALARM CLOCK BAKELIKE PINK") {
		t.Error("stream should contain the report")
	}
}

func TestServer_MetricsRecordRoutes(t *testing.T) {
	handler, _ := newTestHandler()

	for range 2 {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/tables/geo_table", nil))
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := w.Body.String()
	want := `dashboard_http_requests_total{method="GET",route="GET /api/tables/{name}",status="200"} 2`
	if !strings.Contains(body, want) {
		t.Errorf("metrics should contain %q", want)
	}
	if !strings.Contains(body, "dashboard_pipeline_runs_total") {
		t.Error("metrics should contain pipeline runs")
	}
}

// Test error handling for invalid methods
func TestServer_ErrorHandling(t *testing.T) {
	handler, _ := newTestHandler()

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodPost, "/api/report", http.StatusMethodNotAllowed},
		{http.MethodPut, "/", http.StatusMethodNotAllowed},
		{http.MethodDelete, "/health", http.StatusMethodNotAllowed},
		{http.MethodPatch, "/api/tables/kpis", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(tt.method, tt.path, nil)

			handler.ServeHTTP(w, r)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
		})
	}
}

// Test dashboard template rendering
func TestDashboardTemplate(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	handleDashboard(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	body := w.Body.String()
	for _, component := range []string{
		templates.Title,
		"Monthly Revenue",
		"Top Products by Revenue",
		"Revenue by Country",
		"/sse/report",
	} {
		if !strings.Contains(body, component) {
			t.Errorf("dashboard should contain '%s'", component)
		}
	}
}

func TestNewReportCache_InProcess(t *testing.T) {
	manager := cache.NewManager(testLogger())
	cfg := config.CacheConfig{ReportTTL: time.Minute, ReportCacheSize: 4}

	reports, closeFn, err := newReportCache(context.Background(), cfg, manager, observability.NewMetrics(), testLogger())
	if err != nil {
		t.Fatalf("newReportCache() = %v", err)
	}
	defer closeFn(context.Background())

	ctx := context.Background()
	reports.Set(ctx, "k", &models.ReportBundle{RecordCount: 3})
	if got, ok := reports.Get(ctx, "k"); !ok || got.RecordCount != 3 {
		t.Errorf("Get() = %v, %v", got, ok)
	}
}

func TestNewReportCache_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	manager := cache.NewManager(testLogger())
	cfg := config.CacheConfig{RedisURL: "redis://" + mr.Addr(), ReportTTL: time.Minute, ReportCacheSize: 4}

	reports, closeFn, err := newReportCache(context.Background(), cfg, manager, observability.NewMetrics(), testLogger())
	if err != nil {
		t.Fatalf("newReportCache() = %v", err)
	}

	ctx := context.Background()
	reports.Set(ctx, "k", &models.ReportBundle{RecordCount: 7})
	if !mr.Exists("dashboard:report:k") {
		t.Error("report should be stored in redis")
	}
	if got, ok := reports.Get(ctx, "k"); !ok || got.RecordCount != 7 {
		t.Errorf("Get() = %v, %v", got, ok)
	}
	if err := closeFn(ctx); err != nil {
		t.Errorf("close = %v", err)
	}
}

func TestNewReportCache_RedisUnavailable(t *testing.T) {
	cfg := config.CacheConfig{RedisURL: "redis://127.0.0.1:1", ReportTTL: time.Minute}

	if _, _, err := newReportCache(context.Background(), cfg, cache.NewManager(testLogger()), observability.NewMetrics(), testLogger()); err == nil {
		t.Error("expected connection error")
	}
}

func TestNewSource(t *testing.T) {
	cfg := testConfig()
	cfg.Data.Source = "data/ecommerce.zip"

	src, err := newSource(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newSource() = %v", err)
	}
	if src.Name() != "data/ecommerce.zip" {
		t.Errorf("file source name = %q", src.Name())
	}

	cfg.Data.Source = "s3://bucket/exports/ecommerce.zip"
	cfg.Storage = config.StorageConfig{Endpoint: "localhost:9000", Region: "us-east-1", AccessKey: "k", SecretKey: "s", UsePathStyle: true}
	src, err = newSource(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newSource() = %v", err)
	}
	if !strings.HasPrefix(src.Name(), "s3://bucket/") {
		t.Errorf("s3 source name = %q", src.Name())
	}
}
