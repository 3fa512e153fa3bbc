package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTestTracer installs an in-memory span exporter and restores the
// previous global provider when the test ends.
func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})

	return exporter
}

func tracedRouter(pattern string, h http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(Tracing("test-service"))
	r.HandleFunc(pattern, h)
	return r
}

func spanAttr(span tracetest.SpanStub, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func serveTraced(t *testing.T, exporter *tracetest.InMemoryExporter, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, tracetest.SpanStub) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	return rec, spans[0]
}

func TestTracing_NamesSpanAfterRoute(t *testing.T) {
	exporter := setupTestTracer(t)
	h := tracedRouter("/api/v1/pipelines/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec, span := serveTraced(t, exporter, h, httptest.NewRequest(http.MethodGet, "/api/v1/pipelines/run-1", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "GET /api/v1/pipelines/{id}", span.Name)
	route, ok := spanAttr(span, "http.route")
	require.True(t, ok)
	assert.Equal(t, "/api/v1/pipelines/{id}", route.AsString())
	assert.NotEmpty(t, rec.Header().Get("traceparent"))
}

func TestTracing_StatusCodes(t *testing.T) {
	tests := []struct {
		status    int
		wantError bool
	}{
		{status: http.StatusOK},
		{status: http.StatusBadRequest},
		{status: http.StatusInternalServerError, wantError: true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			exporter := setupTestTracer(t)
			h := tracedRouter("/api/v1/pipelines", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			_, span := serveTraced(t, exporter, h, httptest.NewRequest(http.MethodPost, "/api/v1/pipelines", nil))

			code, ok := spanAttr(span, "http.status_code")
			require.True(t, ok)
			assert.Equal(t, int64(tt.status), code.AsInt64())
			assert.Equal(t, tt.wantError, span.Status.Code == codes.Error)
		})
	}
}

func TestTracing_RecordsRunID(t *testing.T) {
	exporter := setupTestTracer(t)
	h := tracedRouter("/api/v1/pipelines", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(RunIDHeader, "run-42")
		w.WriteHeader(http.StatusOK)
	})

	_, span := serveTraced(t, exporter, h, httptest.NewRequest(http.MethodPost, "/api/v1/pipelines", nil))

	runID, ok := spanAttr(span, "pipeline.run_id")
	require.True(t, ok)
	assert.Equal(t, "run-42", runID.AsString())
}

func TestTracing_ContinuesInboundTrace(t *testing.T) {
	exporter := setupTestTracer(t)
	h := tracedRouter("/api/v1/pipelines", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/pipelines", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")

	_, span := serveTraced(t, exporter, h, req)

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", span.SpanContext.TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", span.Parent.SpanID().String())
}
