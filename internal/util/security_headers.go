package util

import (
	"net/http"
	"strings"
)

const (
	apiContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'; base-uri 'none'"
	uiContentSecurityPolicy  = "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; frame-ancestors 'none'; base-uri 'self'"
)

// SecurityHeaders configures WithSecurityHeaders.
type SecurityHeaders struct {
	// UIPaths reports whether a path is served to browsers as the static
	// frontend; such responses get a CSP that allows same-origin assets.
	UIPaths func(path string) bool
}

// Wrap adds security response headers to next.
func (s SecurityHeaders) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Permissions-Policy", "geolocation=(), camera=(), microphone=()")
		if s.UIPaths != nil && s.UIPaths(r.URL.Path) {
			h.Set("Content-Security-Policy", uiContentSecurityPolicy)
		} else {
			h.Set("Content-Security-Policy", apiContentSecurityPolicy)
		}

		// HSTS only over HTTPS, direct or forwarded.
		if r.TLS != nil || strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https") {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

// WithSecurityHeaders adds API security headers to every response.
func WithSecurityHeaders(next http.Handler) http.Handler {
	return SecurityHeaders{}.Wrap(next)
}
