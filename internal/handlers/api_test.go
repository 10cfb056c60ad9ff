package handlers

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ecommerce-dashboard/internal/config"
	"ecommerce-dashboard/internal/dataset"
	"ecommerce-dashboard/internal/models"
	"ecommerce-dashboard/internal/services"
)

var testDataConfig = config.DataConfig{
	SampleDefault: 5000,
	SampleMin:     1000,
	SampleMax:     10000,
}

func at(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func createTestAnalytics() *services.Analytics {
	a := services.NewAnalytics(services.WithLogger(testLogger()))
	a.SetData([]models.Record{
		{InvoiceNo: "536365", StockCode: "85123A", Description: "WHITE HANGING HEART T-LIGHT HOLDER", Quantity: 6, UnitPrice: 2.55, CustomerID: "17850", Country: "United Kingdom", InvoiceDate: at(2010, 12, 1), TotalPrice: 15.3},
		{InvoiceNo: "536370", StockCode: "22728", Description: "ALARM CLOCK BAKELIKE PINK", Quantity: 24, UnitPrice: 3.75, CustomerID: "12583", Country: "France", InvoiceDate: at(2010, 12, 1), TotalPrice: 90},
		{InvoiceNo: "540001", StockCode: "22728", Description: "ALARM CLOCK BAKELIKE PINK", Quantity: 4, UnitPrice: 3.75, CustomerID: "12662", Country: "Germany", InvoiceDate: at(2011, 1, 4), TotalPrice: 15},
		{InvoiceNo: "540002", StockCode: "84029G", Description: "KNITTED UNION FLAG HOT WATER BOTTLE", Quantity: 2, UnitPrice: 3.39, CustomerID: "", Country: "Germany", InvoiceDate: at(2011, 2, 9), TotalPrice: 6.78},
		{InvoiceNo: "540003", StockCode: "23084", Description: "RABBIT NIGHT LIGHT", Quantity: 12, UnitPrice: 2.08, CustomerID: "12583", Country: "France", InvoiceDate: at(2011, 3, 15), TotalPrice: 24.96},
	})
	return a
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var response map[string]any
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	return response
}

func TestNewAPIHandlers(t *testing.T) {
	analytics := createTestAnalytics()
	handlers := NewAPIHandlers(analytics, testDataConfig, testLogger())

	if handlers == nil {
		t.Fatal("NewAPIHandlers() returned nil")
	}
	if handlers.analytics != analytics {
		t.Error("NewAPIHandlers() should set analytics field")
	}
}

func TestAPIHandlers_HandleReport(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(), testDataConfig, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/report?year=2011&country=Germany", nil)
	w := httptest.NewRecorder()
	handlers.HandleReport(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected content-type 'application/json', got %q", ct)
	}
	if cc := w.Header().Get("Cache-Control"); cc != cacheMaxAge {
		t.Errorf("expected cache-control %q, got %q", cacheMaxAge, cc)
	}

	var response struct {
		Success bool                `json:"success"`
		Data    models.ReportBundle `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	if !response.Success {
		t.Error("expected success=true in response")
	}

	bundle := response.Data
	if bundle.Filter.Year != 2011 || bundle.Filter.Country != "Germany" {
		t.Errorf("filter = %+v", bundle.Filter)
	}
	if bundle.RecordCount != 2 {
		t.Errorf("record count = %d, want 2", bundle.RecordCount)
	}
	if bundle.KPIs.Invoices != 2 || bundle.KPIs.Customers != 1 {
		t.Errorf("kpis = %+v", bundle.KPIs)
	}
	if len(bundle.Geo) != 1 || bundle.Geo[0].CountryCode != "DEU" {
		t.Errorf("geo = %+v", bundle.Geo)
	}
	if len(bundle.Options.Countries) != 2 {
		t.Errorf("countries for 2011 = %v", bundle.Options.Countries)
	}
}

func TestAPIHandlers_InvalidFilter(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(), testDataConfig, testLogger())

	for _, path := range []string{
		"/api/report?year=twenty",
		"/api/options?year=-1",
		"/api/tables/kpis?year=2011.5",
		"/api/sample.csv?year=x",
	} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			req.SetPathValue("name", "kpis")
			w := httptest.NewRecorder()

			switch {
			case strings.HasPrefix(path, "/api/report"):
				handlers.HandleReport(w, req)
			case strings.HasPrefix(path, "/api/options"):
				handlers.HandleOptions(w, req)
			case strings.HasPrefix(path, "/api/tables"):
				handlers.HandleTable(w, req)
			default:
				handlers.HandleSample(w, req)
			}

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			response := decodeEnvelope(t, w)
			errBody, _ := response["error"].(map[string]any)
			if errBody["code"] != "VALIDATION_ERROR" {
				t.Errorf("error = %v", response["error"])
			}
		})
	}
}

func TestAPIHandlers_HandleOptions(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(), testDataConfig, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/options?year=2010", nil)
	w := httptest.NewRecorder()
	handlers.HandleOptions(w, req)

	var response struct {
		Data models.FilterOptions `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}

	if len(response.Data.Years) != 2 || response.Data.Years[0] != 2010 {
		t.Errorf("years = %v", response.Data.Years)
	}
	want := []string{"France", "United Kingdom"}
	if strings.Join(response.Data.Countries, ",") != strings.Join(want, ",") {
		t.Errorf("countries = %v, want %v", response.Data.Countries, want)
	}
}

func TestAPIHandlers_HandleTable(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(), testDataConfig, testLogger())

	tests := []struct {
		name   string
		status int
	}{
		{models.TableKPIs, http.StatusOK},
		{models.TableMonthlyTrend, http.StatusOK},
		{models.TableTopProducts, http.StatusOK},
		{models.TableCountries, http.StatusOK},
		{models.TableGeo, http.StatusOK},
		{"revenue_forecast", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/tables/"+tt.name, nil)
			req.SetPathValue("name", tt.name)
			w := httptest.NewRecorder()

			handlers.HandleTable(w, req)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			response := decodeEnvelope(t, w)
			if success, _ := response["success"].(bool); success != (tt.status == http.StatusOK) {
				t.Errorf("success = %v", response["success"])
			}
		})
	}
}

func TestAPIHandlers_HandleTable_TopProductsOrder(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(), testDataConfig, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/tables/top_products", nil)
	req.SetPathValue("name", models.TableTopProducts)
	w := httptest.NewRecorder()
	handlers.HandleTable(w, req)

	var response struct {
		Data []models.ProductRevenue `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	if len(response.Data) != 4 {
		t.Fatalf("products = %d, want 4", len(response.Data))
	}
	if response.Data[0].Description != "ALARM CLOCK BAKELIKE PINK" || response.Data[0].Revenue != 105 {
		t.Errorf("top product = %+v", response.Data[0])
	}
}

func TestAPIHandlers_HandleSample(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(), testDataConfig, testLogger())
	handlers.now = func() time.Time { return at(2024, 5, 17) }
	handlers.newRand = func() *rand.Rand { return rand.New(rand.NewPCG(1, 2)) }

	req := httptest.NewRequest(http.MethodGet, "/api/sample.csv?year=2011&rows=1000", nil)
	w := httptest.NewRecorder()
	handlers.HandleSample(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("content-type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename="ecommerce_sample_2024-05-17.csv"` {
		t.Errorf("content-disposition = %q", cd)
	}

	records, columns, err := dataset.ReadCSV(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("sample is not a readable csv: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("sample rows = %d, want all 3 records of 2011", len(records))
	}
	for _, r := range records {
		if r.Year != 2011 {
			t.Errorf("sample contains record from %d", r.Year)
		}
	}
	if len(columns) != len(models.SourceColumns)+len(models.DerivedColumns) {
		t.Errorf("columns = %v", columns)
	}
}

func TestAPIHandlers_HandleSample_Rows(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(), testDataConfig, testLogger())

	tests := []struct {
		query  string
		status int
	}{
		{"", http.StatusOK},
		{"rows=1000", http.StatusOK},
		{"rows=10000", http.StatusOK},
		{"rows=999", http.StatusBadRequest},
		{"rows=10001", http.StatusBadRequest},
		{"rows=many", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/sample.csv?"+tt.query, nil)
			w := httptest.NewRecorder()
			handlers.HandleSample(w, req)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
		})
	}
}

func TestAPIHandlers_DataSourceUnavailable(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.zip")
	analytics := services.NewAnalytics(
		services.WithSource(dataset.NewFileSource(missing)),
		services.WithLogger(testLogger()),
	)
	handlers := NewAPIHandlers(analytics, testDataConfig, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/report", nil)
	w := httptest.NewRecorder()
	handlers.HandleReport(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	response := decodeEnvelope(t, w)
	errBody, _ := response["error"].(map[string]any)
	if errBody["code"] != "SERVICE_UNAVAILABLE" {
		t.Errorf("error = %v", response["error"])
	}
}

func TestAPIHandlers_NoSource(t *testing.T) {
	handlers := NewAPIHandlers(services.NewAnalytics(services.WithLogger(testLogger())), testDataConfig, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/options", nil)
	w := httptest.NewRecorder()
	handlers.HandleOptions(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestAPIHandlers_HandleHealth(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(), testDataConfig, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	handlers.HandleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	response := decodeEnvelope(t, w)
	data, ok := response["data"].(map[string]any)
	if !ok {
		t.Fatal("expected health data in response")
	}
	if data["status"] != "healthy" {
		t.Errorf("status = %v", data["status"])
	}
	if _, err := time.Parse(time.RFC3339, data["timestamp"].(string)); err != nil {
		t.Errorf("timestamp is not RFC3339: %v", err)
	}
}

func TestAPIHandlers_HandleStats(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(), testDataConfig, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	w := httptest.NewRecorder()
	handlers.HandleStats(w, req)

	response := decodeEnvelope(t, w)
	data, ok := response["data"].(map[string]any)
	if !ok {
		t.Fatal("expected stats data in response")
	}
	if data["record_count"] != 5.0 {
		t.Errorf("record_count = %v", data["record_count"])
	}
	if fp, _ := data["fingerprint"].(string); !strings.HasPrefix(fp, "memory:") {
		t.Errorf("fingerprint = %v", data["fingerprint"])
	}
}

func BenchmarkAPIHandlers_HandleReport(b *testing.B) {
	handlers := NewAPIHandlers(createTestAnalytics(), testDataConfig, testLogger())

	for b.Loop() {
		req := httptest.NewRequest(http.MethodGet, "/api/report?year=2011", nil)
		w := httptest.NewRecorder()
		handlers.HandleReport(w, req)
	}
}
