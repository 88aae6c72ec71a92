package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withRecorder(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(previous)
	})
	return exporter
}

func spanAttr(span tracetest.SpanStub, key string) (string, int64, bool) {
	for _, attr := range span.Attributes {
		if string(attr.Key) == key {
			return attr.Value.Emit(), attr.Value.AsInt64(), true
		}
	}
	return "", 0, false
}

func TestTracing(t *testing.T) {
	exporter := withRecorder(t)

	handler := Tracing(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	req = req.WithContext(context.WithValue(req.Context(), RequestIDKey, "req-1"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	span := spans[0]

	assert.Equal(t, "GET /api/v1/events", span.Name)
	method, _, ok := spanAttr(span, "http.method")
	assert.True(t, ok)
	assert.Equal(t, "GET", method)
	_, status, ok := spanAttr(span, "http.status_code")
	assert.True(t, ok)
	assert.Equal(t, int64(200), status)
	requestID, _, ok := spanAttr(span, "request_id")
	assert.True(t, ok)
	assert.Equal(t, "req-1", requestID)
	assert.Equal(t, codes.Ok, span.Status.Code)
}

func TestTracing_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   codes.Code
	}{
		{status: http.StatusUnauthorized, want: codes.Ok},
		{status: http.StatusNotFound, want: codes.Ok},
		{status: http.StatusInternalServerError, want: codes.Error},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			exporter := withRecorder(t)
			handler := Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/api/v1/users?id=3", nil))

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			_, status, _ := spanAttr(spans[0], "http.status_code")
			assert.Equal(t, int64(tt.status), status)
			assert.Equal(t, tt.want, spans[0].Status.Code)
		})
	}
}
