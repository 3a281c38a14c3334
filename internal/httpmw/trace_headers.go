package httpmw

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// TraceResponseHeaders echoes the trace and span ids of the current request
// so an admin UI error can be found in the tracing backend. Requests without
// a valid span context (tracing off, or filtered out) get neither header.
func TraceResponseHeaders(traceHeader, spanHeader string) func(http.Handler) http.Handler {
	traceHeader = headerName(traceHeader, "X-Trace-Id")
	spanHeader = headerName(spanHeader, "X-Span-Id")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
				h := w.Header()
				h.Set(traceHeader, sc.TraceID().String())
				h.Set(spanHeader, sc.SpanID().String())
			}
			next.ServeHTTP(w, r)
		})
	}
}

func headerName(name, fallback string) string {
	if name = strings.TrimSpace(name); name == "" {
		return fallback
	}
	return http.CanonicalHeaderKey(name)
}
