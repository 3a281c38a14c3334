package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// BundleInfo reports the admin UI bundle currently being served
type BundleInfo interface {
	BundleVersion() string
	BundleHash() string
}

// BundleHeaders adds X-Admin-Bundle-Version and X-Admin-Bundle-Hash to every
// response when a bundle is active
func BundleHeaders(info BundleInfo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if info == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v := info.BundleVersion()
			h := info.BundleHash()
			if v != "" {
				w.Header().Set("X-Admin-Bundle-Version", v)
			}
			if h != "" {
				// short hash for the header
				short := h
				if len(short) > 12 {
					short = short[:12]
				}
				w.Header().Set("X-Admin-Bundle-Hash", short)
			}
			if span := trace.SpanFromContext(r.Context()); span != nil && span.IsRecording() {
				if v != "" {
					span.SetAttributes(attribute.String("admin_bundle.version", v))
				}
				if h != "" {
					span.SetAttributes(attribute.String("admin_bundle.hash", h))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
