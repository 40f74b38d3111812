package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/mfigueroa/linealert/internal/api/handler"
	"github.com/mfigueroa/linealert/internal/config"
)

// NewRouter creates and configures the Chi router with all middleware and routes.
func NewRouter(h *handler.Handler, metricsHandler http.Handler, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(TimingMiddleware)
	r.Use(middleware.Compress(5)) // gzip

	// CORS
	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "HEAD", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Authorization", "Content-Type", "Cache-Control"},
		ExposedHeaders:   []string{"X-Process-Time", "Retry-After"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	// Rate limiting
	if cfg.RateLimitEnabled {
		r.Use(RateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow))
	}

	// --- Routes ---

	// Root
	r.Get("/", h.Root)

	// Health checks
	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/db", h.HealthCheckDB)
	})

	// Prometheus metrics
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	// Swagger UI
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/doc.json"),
	))

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Auth
		r.Post("/auth/send-code", h.SendCode)
		r.Post("/auth/verify", h.VerifyCode)
		r.Post("/auth/logout", h.Logout)

		// Stop lookup is public
		r.Get("/stops/nearest", h.NearestStop)

		// Session-scoped routes
		r.Group(func(r chi.Router) {
			r.Use(h.RequireSession)

			r.Get("/me", h.Me)
			r.Put("/me/home", h.SetHome)
			r.Put("/me/carrier", h.SetCarrier)
			r.Post("/me/favorites", h.AddFavorite)
			r.Delete("/me/favorites/{line}", h.RemoveFavorite)
			r.Put("/me/settings", h.UpdateSettings)

			r.Get("/arrivals", h.Arrivals)
		})
	})

	return r
}
