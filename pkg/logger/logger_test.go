package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func logLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func spanContext(t *testing.T) context.Context {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	return trace.ContextWithSpanContext(context.Background(), sc)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewWithWriter_TagsService(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter("shopindex", "info", &buf).Info("hello")

	out := logLine(t, &buf)
	assert.Equal(t, "shopindex", out["service"])
	assert.Equal(t, "hello", out["msg"])
	assert.NotContains(t, out, "source")
}

func TestNewWithWriter_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("shopindex", "warn", &buf)
	l.Info("dropped")
	assert.Zero(t, buf.Len())
}

func TestNewWithOptions_Text(t *testing.T) {
	var buf bytes.Buffer
	NewWithOptions(Options{Service: "indexctl", Level: "debug", Format: "text", Writer: &buf}).Debug("reindex")

	line := buf.String()
	assert.True(t, strings.Contains(line, "service=indexctl"), line)
	assert.Contains(t, line, "source=")
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("test", "info", &buf)

	ctx := WithCorrelationID(spanContext(t), "req-123")
	ctx = WithUserID(ctx, "admin")
	WithContext(ctx, l).Info("all fields")

	out := logLine(t, &buf)
	assert.Equal(t, "req-123", out["correlation_id"])
	assert.Equal(t, "admin", out["user_id"])
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", out["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", out["span_id"])
}

func TestWithContext_Empty(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("test", "info", &buf)

	assert.Same(t, l, WithContext(context.Background(), l))
	l.Info("bare")
	out := logLine(t, &buf)
	assert.NotContains(t, out, "trace_id")
	assert.NotContains(t, out, "correlation_id")
}

func TestTraceIDFromContext(t *testing.T) {
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", TraceIDFromContext(spanContext(t)))
	assert.Empty(t, TraceIDFromContext(context.Background()))
}

func TestFromContext(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))

	l := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	assert.Same(t, l, FromContext(NewContext(context.Background(), l)))
}
