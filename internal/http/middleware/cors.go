package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	defaultCORSHeaders = []string{"Content-Type", "X-Request-ID"}
	defaultCORSMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	defaultCORSExpose  = []string{"X-Request-ID"}
)

const defaultCORSMaxAge = 10 * time.Minute

// CORSOptions configures the CORS middleware. Empty header, method and expose
// lists fall back to what the gateway's own clients send and read.
type CORSOptions struct {
	// AllowedOrigins is an allowlist; "*" echoes any Origin back.
	AllowedOrigins []string
	AllowedHeaders []string
	AllowedMethods []string
	ExposedHeaders []string
	// PreflightPaths limits preflight answers to these routes. Preflights for
	// other paths reach the router, which rejects the method. Empty answers
	// every path.
	PreflightPaths []string
	MaxAge         time.Duration
}

// CORS provides an allowlist-based CORS middleware.
func CORS(opts CORSOptions) func(http.Handler) http.Handler {
	allowAny := false
	allow := map[string]struct{}{}
	for _, origin := range opts.AllowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if origin == "*" {
			allowAny = true
			continue
		}
		allow[origin] = struct{}{}
	}

	preflight := map[string]struct{}{}
	for _, p := range opts.PreflightPaths {
		preflight[p] = struct{}{}
	}

	allowedHeaders := joinOr(opts.AllowedHeaders, defaultCORSHeaders)
	allowedMethods := joinOr(opts.AllowedMethods, defaultCORSMethods)
	exposedHeaders := joinOr(opts.ExposedHeaders, defaultCORSExpose)
	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = defaultCORSMaxAge
	}
	maxAgeSeconds := strconv.Itoa(int(maxAge / time.Second))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin == "" || !(allowAny || isAllowedOrigin(allow, origin)) {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")

			isPreflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			if !isPreflight {
				h.Set("Access-Control-Expose-Headers", exposedHeaders)
				next.ServeHTTP(w, r)
				return
			}

			if len(preflight) > 0 {
				if _, ok := preflight[r.URL.Path]; !ok {
					next.ServeHTTP(w, r)
					return
				}
			}
			h.Set("Access-Control-Allow-Headers", allowedHeaders)
			h.Set("Access-Control-Allow-Methods", allowedMethods)
			h.Set("Access-Control-Max-Age", maxAgeSeconds)
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

func isAllowedOrigin(allow map[string]struct{}, origin string) bool {
	_, ok := allow[origin]
	return ok
}

func joinOr(values, fallback []string) string {
	if len(values) == 0 {
		values = fallback
	}
	return strings.Join(values, ", ")
}
