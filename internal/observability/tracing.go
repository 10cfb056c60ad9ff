package observability

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// TraceParentHeader is the W3C trace context header.
const TraceParentHeader = "traceparent"

type Span struct {
	TraceID   string            `json:"trace_id"`
	SpanID    string            `json:"span_id"`
	ParentID  string            `json:"parent_id,omitempty"`
	Operation string            `json:"operation"`
	StartTime time.Time         `json:"start_time"`
	EndTime   *time.Time        `json:"end_time,omitempty"`
	Duration  *time.Duration    `json:"duration,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
	Status    SpanStatus        `json:"status"`
	Error     string            `json:"error,omitempty"`

	mu sync.Mutex
}

type SpanStatus string

const (
	SpanStatusOK    SpanStatus = "OK"
	SpanStatusError SpanStatus = "ERROR"
)

type spanContextKey struct{}

// StartSpan opens a span as a child of the span in ctx, or as the root of a
// new trace.
func StartSpan(ctx context.Context, operation string) (context.Context, *Span) {
	span := &Span{
		TraceID:   newID(16),
		SpanID:    newID(8),
		Operation: operation,
		StartTime: time.Now(),
		Status:    SpanStatusOK,
		Tags:      make(map[string]string),
	}

	if parent := GetSpan(ctx); parent != nil {
		span.ParentID = parent.SpanID
		span.TraceID = parent.TraceID
	}

	return context.WithValue(ctx, spanContextKey{}, span), span
}

// ContinueTrace opens a span joining the trace described by a traceparent
// header. An invalid header starts a new trace.
func ContinueTrace(ctx context.Context, traceparent, operation string) (context.Context, *Span) {
	ctx, span := StartSpan(ctx, operation)
	if traceID, parentID, ok := ParseTraceParent(traceparent); ok && span.ParentID == "" {
		span.TraceID = traceID
		span.ParentID = parentID
	}
	return ctx, span
}

// ParseTraceParent extracts the trace and parent span IDs from a version 00
// traceparent value.
func ParseTraceParent(v string) (traceID, parentID string, ok bool) {
	parts := strings.Split(strings.TrimSpace(v), "-")
	if len(parts) != 4 || parts[0] != "00" {
		return "", "", false
	}
	if !isHexID(parts[1], 32) || !isHexID(parts[2], 16) {
		return "", "", false
	}
	return parts[1], parts[2], true
}

func isHexID(s string, n int) bool {
	if len(s) != n || strings.Trim(s, "0") == "" {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// TraceParent formats the span as a traceparent value for downstream calls.
func (s *Span) TraceParent() string {
	return "00-" + s.TraceID + "-" + s.SpanID + "-01"
}

// Finish records the end time. Only the first call has an effect.
func (s *Span) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EndTime != nil {
		return
	}
	now := time.Now()
	s.EndTime = &now
	duration := now.Sub(s.StartTime)
	s.Duration = &duration
}

func (s *Span) SetTag(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Tags == nil {
		s.Tags = make(map[string]string)
	}
	s.Tags[key] = value
}

func (s *Span) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = SpanStatusError
	if err != nil {
		s.Error = err.Error()
	}
}

// LogAttrs returns the span as slog key/value pairs, tags included.
func (s *Span) LogAttrs() []any {
	s.mu.Lock()
	defer s.mu.Unlock()

	attrs := []any{"trace_id", s.TraceID, "span_id", s.SpanID, "operation", s.Operation, "status", s.Status}
	if s.ParentID != "" {
		attrs = append(attrs, "parent_id", s.ParentID)
	}
	if s.Duration != nil {
		attrs = append(attrs, "duration", *s.Duration)
	}
	if s.Error != "" {
		attrs = append(attrs, "error", s.Error)
	}
	for k, v := range s.Tags {
		attrs = append(attrs, k, v)
	}
	return attrs
}

func GetSpan(ctx context.Context) *Span {
	if span, ok := ctx.Value(spanContextKey{}).(*Span); ok {
		return span
	}
	return nil
}

func newID(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	return hex.EncodeToString(b)
}
