package httpmw

import (
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/jangle-cms/internal/log"
)

// WithLogger stores a request-scoped logger in the context, tagged with the
// request id and addresses resolved by the outer RequestID and ClientIP
// middleware. The same fields go on the server span.
func WithLogger(base log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			reqID := RequestIDFromContext(ctx)
			peer := r.RemoteAddr
			if host, _, err := net.SplitHostPort(peer); err == nil {
				peer = host
			}
			client := ClientIPFromContext(ctx)
			if client == "" {
				client = peer
			}
			scheme := schemeFromRequest(r)
			query := r.URL.RawQuery

			if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
				attrs := []attribute.KeyValue{
					attribute.String("request_id", reqID),
					attribute.String("server.address", r.Host),
					attribute.String("client.address", client),
					attribute.String("network.peer.address", peer),
					attribute.String("url.scheme", scheme),
				}
				if query != "" {
					attrs = append(attrs, attribute.String("url.query", query))
				}
				span.SetAttributes(attrs...)
			}

			fields := []any{
				"request_id", reqID,
				"client.address", client,
				"network.peer.address", peer,
				"server.address", r.Host,
				"http.request.method", r.Method,
				"url.path", r.URL.Path,
				"url.scheme", scheme,
			}
			if query != "" {
				fields = append(fields, "url.query", query)
			}

			ctx = log.WithContext(ctx, base.With(fields...))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccessLog writes one line per request after the handler returns. Health
// probes and static bundle assets are skipped; 5xx responses log at warn.
// It must run inside the chi router so the route pattern is known.
func AccessLog() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := newRecordingWriter(w, r)
			next.ServeHTTP(rw, r)
			rw.close()

			if skipAccessLog(r.URL.Path) {
				return
			}

			ctx := r.Context()
			route := r.URL.Path
			var collection string
			if rc := chi.RouteContext(ctx); rc != nil {
				if p := rc.RoutePattern(); p != "" {
					route = p
				}
				collection = rc.URLParam("list")
				if collection == "" {
					collection = rc.URLParam("item")
				}
			}

			var reqSize int64
			if r.ContentLength > 0 {
				reqSize = r.ContentLength
			}
			status := rw.statusCode()
			kv := []any{
				"http.response.status_code", status,
				"http.server.request.duration", time.Since(rw.started).Seconds(),
				"http.response.body.size", rw.bytes,
				"http.request.body.size", reqSize,
				"http.route", route,
			}
			if collection != "" {
				kv = append(kv, "jangle.collection", collection)
			}

			L := log.FromContext(ctx)
			if status >= http.StatusInternalServerError {
				L.Warn(ctx, "http request failed", kv...)
				return
			}
			L.Info(ctx, "http request", kv...)
		})
	}
}

func skipAccessLog(p string) bool {
	return p == "/-/ready" || p == "/-/healthy" || IsStaticAsset(p)
}

// schemeFromRequest prefers X-Forwarded-Proto, which ClientIP has already
// stripped for untrusted peers, then the URL, then TLS.
func schemeFromRequest(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-Proto"); xf != "" {
		first, _, _ := strings.Cut(xf, ",")
		switch p := strings.ToLower(strings.TrimSpace(first)); p {
		case "http", "https":
			return p
		}
	}
	if r.URL != nil && r.URL.Scheme != "" {
		return r.URL.Scheme
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// IsStaticAsset reports whether p looks like an admin bundle asset. Shared
// by the access log and the trace filter.
func IsStaticAsset(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".css", ".js", ".png", ".jpg", ".jpeg", ".webp", ".svg", ".ico", ".woff", ".woff2", ".map":
		return true
	}
	return false
}

// Scope tags the request logger and span with the handler name.
func Scope(handler string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := log.WithContext(r.Context(), log.FromContext(r.Context()).With("handler", handler))
			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.SetAttributes(attribute.String("app.handler", handler))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
