// middleware/security.go
package middleware

import (
	"net/http"
	"strconv"

	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/config"
)

// SecurityHeadersOptions configures SecurityHeaders. An empty string (or a
// zero HSTSMaxAge) disables the corresponding header.
type SecurityHeadersOptions struct {
	XFrameOptions         string
	XContentTypeOptions   string
	ReferrerPolicy        string
	XSSProtection         string
	HSTSMaxAge            int // seconds; only sent over TLS
	HSTSIncludeSubDomains bool
	HSTSPreload           bool
	ContentSecurityPolicy string
	PermissionsPolicy     string

	// NoStore adds "Cache-Control: no-store". The API returns session and
	// identity data, none of which should sit in shared caches.
	NoStore bool
}

// DefaultSecurityHeadersOptions returns the defaults for a JSON API that is
// never framed.
func DefaultSecurityHeadersOptions() SecurityHeadersOptions {
	return SecurityHeadersOptions{
		XFrameOptions:         "DENY",
		XContentTypeOptions:   "nosniff",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		XSSProtection:         "0",
		HSTSMaxAge:            31536000,
		HSTSIncludeSubDomains: true,
		NoStore:               true,
	}
}

// SecurityHeaders sets the configured security headers on every response.
func SecurityHeaders(opts SecurityHeadersOptions) func(next http.Handler) http.Handler {
	static := make([][2]string, 0, 8)
	add := func(name, val string) {
		if val != "" {
			static = append(static, [2]string{name, val})
		}
	}
	add("X-Frame-Options", opts.XFrameOptions)
	add("X-Content-Type-Options", opts.XContentTypeOptions)
	add("Referrer-Policy", opts.ReferrerPolicy)
	add("X-XSS-Protection", opts.XSSProtection)
	add("Content-Security-Policy", opts.ContentSecurityPolicy)
	add("Permissions-Policy", opts.PermissionsPolicy)
	if opts.NoStore {
		add("Cache-Control", "no-store")
	}

	hsts := ""
	if opts.HSTSMaxAge > 0 {
		hsts = "max-age=" + strconv.Itoa(opts.HSTSMaxAge)
		if opts.HSTSIncludeSubDomains {
			hsts += "; includeSubDomains"
		}
		if opts.HSTSPreload {
			hsts += "; preload"
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, kv := range static {
				h.Set(kv[0], kv[1])
			}
			if hsts != "" && r.TLS != nil {
				h.Set("Strict-Transport-Security", hsts)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeadersFromConfig builds SecurityHeaders from the core config's
// security section. It is a no-op when cfg is nil or headers are disabled.
func SecurityHeadersFromConfig(cfg *config.CoreConfig) func(next http.Handler) http.Handler {
	if cfg == nil || !cfg.Security.EnableSecurityHeaders {
		return func(next http.Handler) http.Handler { return next }
	}
	s := cfg.Security
	return SecurityHeaders(SecurityHeadersOptions{
		XFrameOptions:         s.XFrameOptions,
		XContentTypeOptions:   s.XContentTypeOptions,
		ReferrerPolicy:        s.ReferrerPolicy,
		XSSProtection:         s.XSSProtection,
		HSTSMaxAge:            s.HSTSMaxAge,
		HSTSIncludeSubDomains: s.HSTSIncludeSubDomains,
		HSTSPreload:           s.HSTSPreload,
		ContentSecurityPolicy: s.ContentSecurityPolicy,
		PermissionsPolicy:     s.PermissionsPolicy,
		NoStore:               true,
	})
}
