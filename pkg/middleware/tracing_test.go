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
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTestTracer installs an in-memory exporter as the global provider for
// the duration of the test.
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

// tracedCartRouter mounts the cart routes the storefront serves, answering
// with status.
func tracedCartRouter(status int) http.Handler {
	r := chi.NewRouter()
	r.Use(Tracing("storefront"))
	h := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(status) }
	r.Get("/api/v1/storefront/cart", h)
	r.Put("/api/v1/storefront/cart/items/{productId}", h)
	return r
}

func spanAttrs(span tracetest.SpanStub) map[string]any {
	out := make(map[string]any, len(span.Attributes))
	for _, kv := range span.Attributes {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func TestTracing_SpanPerRequest(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantStatus codes.Code
	}{
		{name: "ok", status: http.StatusOK, wantStatus: codes.Unset},
		{name: "client error stays unset", status: http.StatusNotFound, wantStatus: codes.Unset},
		{name: "server error", status: http.StatusBadGateway, wantStatus: codes.Error},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter := setupTestTracer(t)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/storefront/cart", nil)
			tracedCartRouter(tt.status).ServeHTTP(httptest.NewRecorder(), req)

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			assert.Equal(t, "GET /api/v1/storefront/cart", spans[0].Name)
			assert.Equal(t, tt.wantStatus, spans[0].Status.Code)
			assert.EqualValues(t, tt.status, spanAttrs(spans[0])["http.status_code"])
		})
	}
}

func TestTracing_RouteAndDeviceAttributes(t *testing.T) {
	exporter := setupTestTracer(t)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/storefront/cart/items/P1", nil)
	req.Header.Set(DeviceIDHeader, "device-aaaa")
	tracedCartRouter(http.StatusOK).ServeHTTP(httptest.NewRecorder(), req)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "PUT /api/v1/storefront/cart/items/{productId}", spans[0].Name)

	attrs := spanAttrs(spans[0])
	assert.Equal(t, "/api/v1/storefront/cart/items/{productId}", attrs["http.route"])
	assert.Equal(t, "device-aaaa", attrs["cart.device_id"])
}

func TestTracing_ContinuesInboundTrace(t *testing.T) {
	exporter := setupTestTracer(t)

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	req := httptest.NewRequest(http.MethodGet, "/api/v1/storefront/cart", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	rr := httptest.NewRecorder()
	tracedCartRouter(http.StatusOK).ServeHTTP(rr, req)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, traceID, spans[0].SpanContext.TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", spans[0].Parent.SpanID().String())

	// The response carries the server span's context back to the SPA.
	assert.Contains(t, rr.Header().Get("traceparent"), traceID)
}
