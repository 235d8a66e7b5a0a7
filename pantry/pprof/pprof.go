// Package pprof exposes the runtime profiler under /debug/pprof.
package pprof

import (
	"net/http"
	stdpprof "net/http/pprof"

	"github.com/go-chi/chi/v5"
)

// Mount attaches the profiler behind guard, which must reject callers
// that are not operators.
func Mount(r chi.Router, guard func(http.Handler) http.Handler) {
	r.Route("/debug/pprof", func(r chi.Router) {
		r.Use(guard)
		r.Get("/", stdpprof.Index)
		r.Get("/cmdline", stdpprof.Cmdline)
		r.Get("/profile", stdpprof.Profile)
		r.Get("/symbol", stdpprof.Symbol)
		r.Post("/symbol", stdpprof.Symbol)
		r.Get("/trace", stdpprof.Trace)
		r.Get("/{name}", stdpprof.Index)
	})
}
