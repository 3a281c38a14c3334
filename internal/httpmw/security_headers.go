package httpmw

import "net/http"

// CSRF protection is not implemented: the content API takes no cookies or
// sessions, authentication is out of scope.

// AdminCSP allows the admin shell to load the rich-text editor and web fonts
// from their CDNs; everything else is same origin.
const AdminCSP = "default-src 'self'; " +
	"script-src 'self' https://cdn.tinymce.com; " +
	"style-src 'self' 'unsafe-inline' https://fonts.googleapis.com https://cdn.tinymce.com; " +
	"font-src 'self' https://fonts.gstatic.com https://cdn.tinymce.com; " +
	"img-src 'self' data: blob: https:; " +
	"connect-src 'self'; " +
	"frame-src 'self'; " +
	"base-uri 'self'; form-action 'self'; frame-ancestors 'self'; object-src 'none'"

// SecurityHeaders is middleware that adds common security headers to HTTP responses
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()

		// Require HTTPS for one year once served over TLS
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")

		h.Set("Content-Security-Policy", AdminCSP)

		// Disable MIME type sniffing
		h.Set("X-Content-Type-Options", "nosniff")

		// the editor iframes its own document, so same origin framing is allowed
		h.Set("X-Frame-Options", "SAMEORIGIN")

		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")

		h.Set("Permissions-Policy", "accelerometer=(), camera=(), geolocation=(), gyroscope=(), magnetometer=(), microphone=(), payment=(), usb=()")

		h.Set("X-Permitted-Cross-Domain-Policies", "none")

		// no COEP: the editor script comes from a CDN that does not send CORP
		h.Set("Cross-Origin-Opener-Policy", "same-origin")
		h.Set("Cross-Origin-Resource-Policy", "same-origin")

		next.ServeHTTP(w, r)
	})
}
