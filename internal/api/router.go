package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/meshchat-protocol/meshchat/internal/api/middleware"
	"github.com/meshchat-protocol/meshchat/internal/config"
	"github.com/meshchat-protocol/meshchat/internal/handlers"
	"github.com/meshchat-protocol/meshchat/internal/session"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(cfg *config.Config, logger zerolog.Logger, h *handlers.Handler, validator *session.Validator) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(16 * 1024)) // matches the WebSocket frame ceiling
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	limiter := middleware.NewRateLimiter(h.Redis.Client(), logger, middleware.RateLimiterConfig{
		Whitelist:        cfg.RateLimitWhitelist,
		AutoBlockEnabled: cfg.IsProduction(),
	})
	r.Use(limiter.Middleware)

	// CORS - browser clients connect from the web app's origin
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	auth := middleware.NewAuthMiddleware(validator)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes
	r.Get("/health", h.Health)

	// WebSocket entry point. Token auth happens inside the handler because
	// browser WebSocket clients cannot set an Authorization header.
	r.Get("/ws", h.ServeWS)

	// Authenticated REST surface
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireSession)

		r.Get("/conversations", h.ListConversations)
		r.Get("/conversations/{id}/messages", h.ConversationHistory)
		r.Get("/me", h.GetProfile)
		r.Put("/me", h.UpdateProfile)
	})

	// Trusted session management, called by the auth service only
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireInternalKey(cfg.InternalAPIKey))

		r.Put("/sessions", h.PutSession)
		r.Delete("/sessions/{token}", h.DeleteSession)
	})

	return r
}
