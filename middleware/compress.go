// middleware/compress.go
package middleware

import (
	"net/http"

	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/config"
	"github.com/go-chi/chi/v5/middleware"
)

// compressibleTypes limits compression to the response types the API and
// the admin export produce. XLSX is already zipped.
var compressibleTypes = []string{"application/json", "text/plain", "text/csv"}

// CompressFromConfig returns chi's gzip/deflate middleware at the configured
// level, or a no-op when compression is disabled. The level is validated
// by config.Load.
func CompressFromConfig(coreCfg *config.CoreConfig) func(next http.Handler) http.Handler {
	if coreCfg == nil || !coreCfg.EnableCompression {
		return func(next http.Handler) http.Handler { return next }
	}
	level := coreCfg.CompressionLevel
	if level < 1 || level > 9 {
		level = 5
	}
	return middleware.Compress(level, compressibleTypes...)
}
