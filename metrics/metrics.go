// metrics/metrics.go
package metrics

import (
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// reqDuration is a histogram of HTTP request durations in seconds, labeled
// by route pattern, method and status code.
var reqDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests.",
		Buckets: []float64{0.01, 0.1, 0.3, 1.2, 5},
	},
	[]string{"path", "method", "status"},
)

var (
	authLogins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conclave_auth_logins_total",
			Help: "Discord OAuth callbacks by outcome.",
		},
		[]string{"outcome"},
	)

	webhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conclave_webhook_deliveries_total",
			Help: "Relay submissions by notification kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	rateLimitRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conclave_ratelimit_rejections_total",
			Help: "Requests rejected by the per-IP submission limiter.",
		},
		[]string{"kind"},
	)

	statsFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "conclave_stats_cache_fallbacks_total",
			Help: "Guild stats requests served from a stale cache entry.",
		},
	)
)

// RegisterDefault registers the Go runtime and process collectors, the HTTP
// histogram and the domain counters. Call once at startup.
//
// It panics (or logs fatally) on registration errors other than
// AlreadyRegisteredError.
func RegisterDefault(logger *zap.Logger) {
	mustRegister(logger, "Go collector", collectors.NewGoCollector())
	mustRegister(logger, "process collector", collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mustRegister(logger, "HTTP request histogram", reqDuration)
	mustRegister(logger, "auth login counter", authLogins)
	mustRegister(logger, "webhook delivery counter", webhookDeliveries)
	mustRegister(logger, "rate limit counter", rateLimitRejections)
	mustRegister(logger, "stats fallback counter", statsFallbacks)
}

func mustRegister(logger *zap.Logger, name string, c prometheus.Collector) {
	if err := prometheus.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return
		}
		if logger != nil {
			logger.Fatal("failed to register "+name, zap.Error(err))
		}
		panic("metrics: failed to register " + name + ": " + err.Error())
	}
}

// AuthLogin counts one OAuth callback outcome ("success", "denied",
// "invalid_state", "exchange_failed", ...).
func AuthLogin(outcome string) {
	authLogins.WithLabelValues(outcome).Inc()
}

// WebhookDelivery counts one relay outcome for a notification kind.
func WebhookDelivery(kind, outcome string) {
	webhookDeliveries.WithLabelValues(kind, outcome).Inc()
}

// RateLimited counts one rejected submission for a notification kind.
func RateLimited(kind string) {
	rateLimitRejections.WithLabelValues(kind).Inc()
}

// StatsFallback counts one stale stats response.
func StatsFallback() {
	statsFallbacks.Inc()
}

const maxPathLabelLength = 256

// HTTPMetrics records request durations into http_request_duration_seconds.
// The chi route pattern is used as the path label so ids in paths do not
// create new series. Place it after the recoverer.
func HTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		protoMajor := r.ProtoMajor
		if protoMajor < 1 {
			protoMajor = 1
		}
		ww := middleware.NewWrapResponseWriter(w, protoMajor)

		next.ServeHTTP(ww, r)

		statusCode := ww.Status()
		if statusCode == 0 {
			statusCode = http.StatusOK
		}
		if statusCode < 100 || statusCode > 599 {
			statusCode = http.StatusInternalServerError
		}

		reqDuration.WithLabelValues(
			routeLabel(r),
			r.Method,
			strconv.Itoa(statusCode),
		).Observe(time.Since(start).Seconds())
	})
}

// routeLabel returns the matched chi pattern, "unmatched" for 404s that hit
// no route, or the raw path outside chi.
func routeLabel(r *http.Request) string {
	path := r.URL.Path
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			path = pattern
		} else {
			path = "unmatched"
		}
	}
	if len(path) > maxPathLabelLength {
		path = truncateUTF8(path, maxPathLabelLength-3) + "..."
	}
	return path
}

// Handler exposes the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// truncateUTF8 truncates s to at most maxBytes bytes on a rune boundary.
func truncateUTF8(s string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
