package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func restoreGlobals(t *testing.T) {
	t.Helper()
	tp, prop := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
	})
}

func TestInitTracer_DisabledInstallsPropagator(t *testing.T) {
	restoreGlobals(t)

	shutdown, err := InitTracer(context.Background(), DefaultConfig("shopindex"))
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, otel.GetTextMapPropagator().Fields(), "traceparent")
	_, isSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.False(t, isSDK)
}

func TestInitTracer_Enabled(t *testing.T) {
	restoreGlobals(t)

	cfg := DefaultConfig("shopindex")
	cfg.Enabled = true
	cfg.OTLPEndpoint = "127.0.0.1:0"

	shutdown, err := InitTracer(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &sdktrace.TracerProvider{}, otel.GetTracerProvider())

	// The endpoint is unreachable; only the flush can fail.
	_ = shutdown(context.Background())
}

func TestInitTracer_RejectsSampleRate(t *testing.T) {
	restoreGlobals(t)

	cfg := DefaultConfig("shopindex")
	cfg.Enabled = true
	cfg.SampleRate = 1.5

	_, err := InitTracer(context.Background(), cfg)
	assert.Error(t, err)
}

func TestSampler(t *testing.T) {
	root := sdktrace.SamplingParameters{ParentContext: context.Background(), TraceID: trace.TraceID{0xff}}

	assert.Equal(t, sdktrace.RecordAndSample, Sampler(1).ShouldSample(root).Decision)
	assert.Equal(t, sdktrace.Drop, Sampler(0).ShouldSample(root).Decision)

	sampledParent := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1},
		SpanID:     trace.SpanID{1},
		TraceFlags: trace.FlagsSampled,
	}))
	child := sdktrace.SamplingParameters{ParentContext: sampledParent, TraceID: trace.TraceID{1}}
	assert.Equal(t, sdktrace.RecordAndSample, Sampler(0).ShouldSample(child).Decision)
}

func TestTracer(t *testing.T) {
	assert.NotNil(t, Tracer("shopindex/test"))
}
