package middleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// OTelHTTP wraps the handler with OpenTelemetry HTTP instrumentation:
// automatic spans for all requests plus trace context propagation.
func OTelHTTP(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(
			next,
			serviceName,
			otelhttp.WithTracerProvider(otel.GetTracerProvider()),
			otelhttp.WithSpanOptions(
				trace.WithAttributes(
					semconv.ServiceName(serviceName),
				),
			),
			otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents),
			otelhttp.WithFilter(shouldTrace),
			otelhttp.WithSpanNameFormatter(spanNameFormatter),
		)
	}
}

// shouldTrace skips health and metrics endpoints to reduce noise.
func shouldTrace(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/metrics":
		return false
	}
	return true
}

// spanNameFormatter creates span names of the form
// "HTTP {METHOD} {ROUTE}"; query parameter values never leak into the
// name.
func spanNameFormatter(operation string, r *http.Request) string {
	route := r.URL.Path
	if r.URL.RawQuery != "" {
		return operation + " " + route + "?"
	}
	return operation + " " + route
}

// ExtractTraceContext extracts trace_id and span_id from the request
// context, empty when no active span exists.
func ExtractTraceContext(r *http.Request) (traceID, spanID string) {
	spanCtx := trace.SpanContextFromContext(r.Context())
	if !spanCtx.IsValid() {
		return "", ""
	}
	return spanCtx.TraceID().String(), spanCtx.SpanID().String()
}

// AddSpanAttributes adds custom attributes to the current span. Safe to
// call when tracing is disabled.
func AddSpanAttributes(r *http.Request, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(r.Context()).SetAttributes(attrs...)
}
