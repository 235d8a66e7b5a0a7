// middleware/cors.go
package middleware

import (
	"net/http"

	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/config"
	"github.com/go-chi/cors"
)

// defaultCORSHeaders are allowed when the config leaves the list empty.
var defaultCORSHeaders = []string{"Accept", "Content-Type", "Authorization", "X-API-Key", "X-Request-Id"}

// CORSFromConfig applies go-chi/cors from the core config. It is a no-op
// when CORS is disabled, so it is safe to mount unconditionally.
func CORSFromConfig(coreCfg *config.CoreConfig) func(next http.Handler) http.Handler {
	if coreCfg == nil || !coreCfg.CORS.EnableCORS {
		return func(next http.Handler) http.Handler { return next }
	}

	headers := coreCfg.CORS.CORSAllowedHeaders
	if len(headers) == 0 {
		headers = defaultCORSHeaders
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   coreCfg.CORS.CORSAllowedOrigins,
		AllowedMethods:   coreCfg.CORS.CORSAllowedMethods,
		AllowedHeaders:   headers,
		ExposedHeaders:   append([]string{"Retry-After"}, coreCfg.CORS.CORSExposedHeaders...),
		AllowCredentials: coreCfg.CORS.CORSAllowCredentials,
		MaxAge:           coreCfg.CORS.CORSMaxAge,
	})
}
