package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"ecommerce-dashboard/internal/config"
	"ecommerce-dashboard/internal/observability"
)

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = observability.GetRequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if _, err := uuid.Parse(seen); err != nil {
		t.Errorf("generated request id %q is not a uuid", seen)
	}
	if w.Header().Get("X-Request-ID") != seen {
		t.Error("response header should echo the request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "upstream-1")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "upstream-1" {
		t.Errorf("request id = %q, want upstream value", seen)
	}
}

type httpObservation struct {
	method, route string
	status        int
}

type fakeRecorder struct {
	mu  sync.Mutex
	obs []httpObservation
}

func (f *fakeRecorder) HTTPRequest(method, route string, status int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.obs = append(f.obs, httpObservation{method, route, status})
}

func TestMetrics_LabelsByPattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tables/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	rec := &fakeRecorder{}
	h := Metrics(rec, mux)(mux)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/tables/geo_table", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	if len(rec.obs) != 2 {
		t.Fatalf("observations = %d", len(rec.obs))
	}
	if rec.obs[0].route != "GET /api/tables/{name}" || rec.obs[0].status != http.StatusNotFound {
		t.Errorf("first observation = %+v", rec.obs[0])
	}
	if rec.obs[1].route != "unmatched" {
		t.Errorf("second observation = %+v", rec.obs[1])
	}
}

func TestRateLimit(t *testing.T) {
	limiter := NewRateLimiter(config.SecurityConfig{EnableRateLimit: true, RateLimitRPS: 1, RateLimitBurst: 2})
	h := RateLimit(limiter, slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/api/report", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("status codes = %v", codes)
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", w.Code)
	}
}

func TestTrustedProxy(t *testing.T) {
	var forwarded string
	h := TrustedProxy(config.SecurityConfig{TrustedProxies: []string{"127.0.0.1"}})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		forwarded = r.Header.Get("X-Forwarded-For")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:4000"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if forwarded != "" {
		t.Error("untrusted proxy headers should be stripped")
	}

	req.RemoteAddr = "127.0.0.1:4000"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if forwarded != "1.2.3.4" {
		t.Errorf("trusted proxy header = %q", forwarded)
	}
}

func TestTrustedProxy_CIDR(t *testing.T) {
	var forwarded string
	h := TrustedProxy(config.SecurityConfig{TrustedProxies: []string{"10.0.0.0/8", "not-an-ip"}})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		forwarded = r.Header.Get("X-Forwarded-For")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.20.30.40:5000"
	req.Header.Set("X-Forwarded-For", "198.51.100.7")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if forwarded != "198.51.100.7" {
		t.Errorf("proxy inside trusted prefix should keep header, got %q", forwarded)
	}
}

func TestRateLimiter_DropsIdleClients(t *testing.T) {
	limiter := NewRateLimiter(config.SecurityConfig{EnableRateLimit: true, RateLimitRPS: 10, RateLimitBurst: 10})
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	limiter.Allow("192.0.2.1")
	limiter.Allow("192.0.2.2")
	if limiter.Len() != 2 {
		t.Fatalf("tracked clients = %d", limiter.Len())
	}

	now = now.Add(limiterIdleTTL + time.Second)
	limiter.Allow("192.0.2.3")
	if limiter.Len() != 1 {
		t.Errorf("idle clients should be dropped, tracked = %d", limiter.Len())
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	limiter := NewRateLimiter(config.SecurityConfig{EnableRateLimit: false})
	for range 100 {
		if !limiter.Allow("192.0.2.1") {
			t.Fatal("disabled limiter should allow every request")
		}
	}
	if limiter.Len() != 0 {
		t.Error("disabled limiter should not track clients")
	}
}

func TestTracing_JoinsCallerTrace(t *testing.T) {
	var span *observability.Span
	h := Tracing(slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		span = observability.GetSpan(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/report", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if span == nil || span.TraceID != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("span = %+v", span)
	}
	if w.Header().Get("X-Trace-ID") != span.TraceID {
		t.Error("response should expose the trace id")
	}
	if span.Duration == nil {
		t.Error("span should be finished")
	}
}

func TestCORS_Preflight(t *testing.T) {
	h := CORS(config.SecurityConfig{AllowedOrigins: []string{"https://shop.example"}})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("preflight should not reach the handler")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/report", nil)
	req.Header.Set("Origin", "https://shop.example")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "https://shop.example" {
		t.Error("allowed origin should be echoed")
	}
}

func TestResponseWriter_TracksWrites(t *testing.T) {
	wrapped := wrap(httptest.NewRecorder())
	wrapped.Write([]byte("hello"))
	wrapped.WriteHeader(http.StatusTeapot)

	if wrapped.bytes != 5 || wrapped.statusCode != http.StatusOK {
		t.Errorf("bytes = %d, status = %d", wrapped.bytes, wrapped.statusCode)
	}
}
