// Package profiling serves pprof endpoints on a dedicated listener.
//
// Profiles expose goroutine stacks and heap contents, so the server binds to
// an operator-only address and is never mounted on the public API router.
package profiling

import (
	"net/http"
	"net/http/pprof"
	"runtime"

	"github.com/go-chi/chi/v5"
)

// Config holds profiling configuration
type Config struct {
	// Path is the URL path prefix for profiling endpoints (default: "/debug/pprof")
	Path string

	// BlockRate sets the block profiling rate (0 = disabled)
	BlockRate int

	// MutexFraction sets the mutex profiling fraction (0 = disabled)
	MutexFraction int
}

// DefaultConfig returns default profiling configuration
func DefaultConfig() Config {
	return Config{Path: "/debug/pprof"}
}

// Handler configures runtime sampling and returns a router serving the pprof
// endpoints under cfg.Path
func Handler(cfg Config) http.Handler {
	if cfg.Path == "" {
		cfg.Path = "/debug/pprof"
	}

	runtime.SetBlockProfileRate(cfg.BlockRate)
	runtime.SetMutexProfileFraction(cfg.MutexFraction)

	r := chi.NewRouter()
	r.Route(cfg.Path, func(r chi.Router) {
		r.HandleFunc("/", pprof.Index)
		r.HandleFunc("/cmdline", pprof.Cmdline)
		r.HandleFunc("/profile", pprof.Profile)
		r.HandleFunc("/symbol", pprof.Symbol)
		r.HandleFunc("/trace", pprof.Trace)

		for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
			r.Handle("/"+name, pprof.Handler(name))
		}
	})
	return r
}
