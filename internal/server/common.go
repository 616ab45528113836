// Package server provides shared HTTP middleware for the radiopi web UI.
package server

import (
	"net/http"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/sflip/radiopi/internal/logging"
)

// SlowRequestThreshold marks requests logged at warn level by TimingMiddleware.
const SlowRequestThreshold = 2 * time.Second

// AbsPath returns the absolute path of a file, or the original path if it fails.
func AbsPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

// NoCacheMiddleware forbids caching of every response.
func NoCacheMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		next.ServeHTTP(w, r)
	})
}

// TimingMiddleware logs request duration for profiling.
func TimingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		duration := time.Since(start)
		if duration > SlowRequestThreshold {
			logging.WarnContext(r.Context(), "slow_request", "method", r.Method, "path", r.URL.Path, "duration_ms", duration.Milliseconds())
		} else {
			logging.DebugContext(r.Context(), "request_timing", "method", r.Method, "path", r.URL.Path, "duration_ms", duration.Milliseconds())
		}
	})
}

// AllowMethods rejects requests whose method is not listed with 405 and an
// Allow header.
func AllowMethods(next http.Handler, methods ...string) http.Handler {
	allow := strings.Join(methods, ", ")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if slices.Contains(methods, r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Allow", allow)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})
}
