// Package httpmw provides HTTP middleware for the CMS listener.
//
// httpserver.NewHandler composes them outermost first: security headers,
// panic recovery, request ID, client IP extraction, rate limiting, OTEL
// tracing, admin bundle headers, trace headers, metrics, request-scoped
// logging, then the chi router with compression, route annotation, access
// log and body limit.
//
// Request bodies, query values beyond url.query and headers other than the
// forwarding ones are never logged.
package httpmw
