package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/carebook/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/carebook/internal/http/middleware"
	"github.com/wolfman30/carebook/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	BookingHandler     *handlers.BookingHandler
	SupportHandler     *handlers.SupportHandler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// BookingRateLimiter throttles booking submissions per client IP (optional).
	BookingRateLimiter *httpmiddleware.RateLimiter

	// AdminAuth protects /admin. Admin routes are not mounted without a secret.
	AdminAuth httpmiddleware.AdminJWTConfig
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", handlers.HealthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		mountRedirects(public, pageRedirects)
	})

	if cfg.BookingHandler != nil {
		r.Route("/api", func(api chi.Router) {
			api.Get("/services", cfg.BookingHandler.ListServices)
			api.Group(func(submit chi.Router) {
				if cfg.BookingRateLimiter != nil {
					submit.Use(cfg.BookingRateLimiter.Middleware)
				}
				submit.Post("/bookings", cfg.BookingHandler.CreateBooking)
			})
		})
	}

	// Admin routes (protected by HS256 JWT)
	if cfg.SupportHandler != nil && cfg.AdminAuth.Secret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuth))
			admin.Route("/support/cases", func(cases chi.Router) {
				cases.Get("/", cfg.SupportHandler.ListCases)
				cases.Post("/{caseID}/resolve", cfg.SupportHandler.ResolveCase)
			})
		})
	}

	return r
}
