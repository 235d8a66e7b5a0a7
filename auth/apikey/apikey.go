// auth/apikey/apikey.go
package apikey

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/httputil"
)

// Require returns a middleware that accepts a request only when it carries
// the shared secret. Lookup order:
//  1. Authorization: Bearer <token>
//  2. X-API-Key header
//
// An empty expected secret rejects everything with 503, so a missing
// configuration value never opens the route.
func Require(expected, realm string, logger *zap.Logger) func(next http.Handler) http.Handler {
	expected = strings.TrimSpace(expected)
	if realm == "" {
		realm = "conclave"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if expected == "" {
				logger.Warn("shared-secret route called but no secret is configured",
					zap.String("path", r.URL.Path))
				httputil.JSONError(w, http.StatusServiceUnavailable, "not_configured", "endpoint is not configured")
				return
			}

			key, ok := keyFromRequest(r)
			if !ok || subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
				logger.Warn("shared secret rejected",
					zap.String("path", r.URL.Path),
					zap.String("method", r.Method),
					zap.String("remote_ip", r.RemoteAddr),
				)
				w.Header().Set("WWW-Authenticate", `Bearer realm="`+realm+`"`)
				httputil.JSONError(w, http.StatusUnauthorized, "unauthorized", "invalid or missing credentials")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func keyFromRequest(r *http.Request) (string, bool) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) > len("Bearer ") && strings.EqualFold(auth[:len("Bearer ")], "bearer ") {
		if token := strings.TrimSpace(auth[len("Bearer "):]); token != "" {
			return token, true
		}
	}
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key, true
	}
	return "", false
}
