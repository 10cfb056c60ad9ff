package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.DatasetLoad("ok", 2*time.Second)
	m.DatasetLoad("error", time.Second)
	m.PipelineRun(3 * time.Millisecond)
	m.CacheLookup("reports", true)
	m.CacheLookup("reports", false)
	m.CacheLookup("reports", false)
	m.HTTPRequest(http.MethodGet, "/api/report", http.StatusOK, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.datasetLoads.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.datasetLoads.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pipelineRuns))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("reports", "hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("reports", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/report", "200")))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.PipelineRun(time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "dashboard_pipeline_runs_total 1"))
}

func TestSpan_ParentChild(t *testing.T) {
	ctx, parent := StartSpan(context.Background(), "GET /api/report")
	_, child := StartSpan(ctx, "report.assemble")

	assert.Equal(t, parent.TraceID, child.TraceID)
	assert.Equal(t, parent.SpanID, child.ParentID)

	child.SetError(assert.AnError)
	child.Finish()
	assert.Equal(t, SpanStatusError, child.Status)
	require.NotNil(t, child.Duration)
	assert.NotEmpty(t, child.LogAttrs())
}
