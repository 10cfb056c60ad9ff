package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTraceParent(t *testing.T) {
	tests := []struct {
		in     string
		ok     bool
		trace  string
		parent string
	}{
		{"00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", true, "4bf92f3577b34da6a3ce929d0e0e4736", "00f067aa0ba902b7"},
		{"", false, "", ""},
		{"01-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", false, "", ""},
		{"00-00000000000000000000000000000000-00f067aa0ba902b7-01", false, "", ""},
		{"00-4bf92f3577b34da6a3ce929d0e0e47zz-00f067aa0ba902b7-01", false, "", ""},
		{"00-4bf92f35-00f067aa0ba902b7-01", false, "", ""},
	}

	for _, tt := range tests {
		trace, parent, ok := ParseTraceParent(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.trace, trace, tt.in)
		assert.Equal(t, tt.parent, parent, tt.in)
	}
}

func TestContinueTrace(t *testing.T) {
	_, span := ContinueTrace(context.Background(), "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", "GET /api/report")
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", span.TraceID)
	assert.Equal(t, "00f067aa0ba902b7", span.ParentID)

	_, fresh := ContinueTrace(context.Background(), "garbage", "GET /")
	assert.Len(t, fresh.TraceID, 32)
	assert.Empty(t, fresh.ParentID)

	got, parent, ok := ParseTraceParent(fresh.TraceParent())
	assert.True(t, ok)
	assert.Equal(t, fresh.TraceID, got)
	assert.Equal(t, fresh.SpanID, parent)
}

func TestSpan_FinishOnce(t *testing.T) {
	_, span := StartSpan(context.Background(), "dataset.load")
	span.Finish()
	first := *span.EndTime
	span.Finish()
	assert.Equal(t, first, *span.EndTime)
}
