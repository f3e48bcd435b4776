package middleware

import (
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// unmatchedRoute labels requests no ServeMux pattern claimed.
const unmatchedRoute = "unmatched"

var (
	routeMeter       = otel.Meter("spendsync/http")
	routeDuration, _ = routeMeter.Float64Histogram("spendsync.http.route.duration",
		metric.WithDescription("Request duration per matched route in seconds"),
		metric.WithUnit("s"),
	)
	routeRequests, _ = routeMeter.Int64Counter("spendsync.http.route.requests",
		metric.WithDescription("Requests per matched route and status"),
	)
)

// Tracing renames the server span opened by Telemetry after the ServeMux
// pattern that handled the request and records per-route metrics. It must
// wrap the mux directly or through handlers that pass the request on
// unchanged, since the mux writes the pattern into that request.
func Tracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		req := r.WithContext(r.Context())
		wrapped := wrapResponseWriter(w)
		next.ServeHTTP(wrapped, req)

		status := wrapped.status
		if status == 0 {
			status = http.StatusOK
		}
		route := routeOf(req)

		span := trace.SpanFromContext(req.Context())
		if req.Pattern != "" {
			span.SetName(req.Pattern)
		}
		span.SetAttributes(attribute.String("http.route", route))
		if status >= 500 {
			span.SetStatus(codes.Error, http.StatusText(status))
		}

		attrs := metric.WithAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", status),
		)
		routeDuration.Record(req.Context(), time.Since(start).Seconds(), attrs)
		routeRequests.Add(req.Context(), 1, attrs)
	})
}

// routeOf returns the path part of the matched pattern, e.g. "/api/refresh"
// for "POST /api/refresh".
func routeOf(r *http.Request) string {
	if r.Pattern == "" {
		return unmatchedRoute
	}
	if _, path, ok := strings.Cut(r.Pattern, " "); ok {
		return path
	}
	return r.Pattern
}
