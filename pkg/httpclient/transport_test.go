package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewTransport_FillsDefaults(t *testing.T) {
	tr := NewTransport(Config{MaxConnsPerHost: 7})
	assert.Equal(t, 7, tr.MaxConnsPerHost)
	assert.Equal(t, 7, tr.MaxIdleConnsPerHost)
	assert.Equal(t, 90*time.Second, tr.IdleConnTimeout)
	assert.Equal(t, 30*time.Second, tr.ResponseHeaderTimeout)
	assert.Equal(t, 10*time.Second, tr.TLSHandshakeTimeout)
}

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	prev := otel.GetTracerProvider()
	rec := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func TestTraced_RecordsSpanAndPropagates(t *testing.T) {
	rec := withRecorder(t)

	var traceparent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent = r.Header.Get("traceparent")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := &http.Client{Transport: Traced(NewTransport(DefaultConfig()), "elasticsearch")}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/_cluster/health", nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.NotEmpty(t, traceparent)
	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP GET", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestTraced_TransportError(t *testing.T) {
	rec := withRecorder(t)

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := &http.Client{Transport: Traced(nil, "elasticsearch")}
	_, err := client.Get(url)
	require.Error(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}
