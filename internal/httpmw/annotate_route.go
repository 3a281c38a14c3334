package httpmw

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AnnotateHTTPRoute renames the server span after the chi route pattern once
// routing is done, and tags content API spans with the collection key.
func AnnotateHTTPRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)

		span := trace.SpanFromContext(r.Context())
		if !span.IsRecording() {
			return
		}

		route := r.URL.Path
		var collection string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
			collection = rc.URLParam("list")
			if collection == "" {
				collection = rc.URLParam("item")
			}
		}

		span.SetName(r.Method + " " + route)
		span.SetAttributes(attribute.String("http.route", route))
		if collection != "" {
			span.SetAttributes(attribute.String("jangle.collection", collection))
		}
	})
}
