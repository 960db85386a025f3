package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/wa-relay/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/wa-relay/internal/http/middleware"
	"github.com/wolfman30/wa-relay/pkg/logging"
)

// crossOriginRoutes are the routes browsers on other origins call with a
// preflight.
var crossOriginRoutes = []string{"/send-message", "/send-media", "/ws"}

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	Gateway        *handlers.GatewayHandler
	UI             http.Handler
	PushChannel    http.Handler
	MetricsHandler http.Handler

	// CORS is applied when it lists at least one origin. PreflightPaths
	// defaults to the cross-origin routes below.
	CORS httpmiddleware.CORSOptions
	// RateLimiter, when set, guards the send endpoints.
	RateLimiter *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	if cfg.Gateway == nil {
		panic("router: gateway handler cannot be nil")
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORS.AllowedOrigins) > 0 {
		opts := cfg.CORS
		if len(opts.PreflightPaths) == 0 {
			opts.PreflightPaths = crossOriginRoutes
		}
		r.Use(httpmiddleware.CORS(opts))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	if cfg.UI != nil {
		r.Method(http.MethodGet, "/", cfg.UI)
	}
	if cfg.PushChannel != nil {
		r.Method(http.MethodGet, "/ws", cfg.PushChannel)
	}
	r.Get("/health", cfg.Gateway.Health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Group(func(send chi.Router) {
		if cfg.RateLimiter != nil {
			send.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
		}
		send.Post("/send-message", cfg.Gateway.SendMessage)
		send.Post("/send-media", cfg.Gateway.SendMedia)
	})

	return r
}
