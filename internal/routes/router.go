package routes

import (
	"net/http"
	"time"

	"fit-analyse/dashboard/internal/api"
	"fit-analyse/dashboard/internal/logging"
	"fit-analyse/dashboard/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// RegisterRoutes builds the local API router
func RegisterRoutes(deps *api.Dependencies, upSince time.Time) http.Handler {

	// initialize Chi router
	r := chi.NewRouter()

	// global middleware
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.MetricsMiddleware(deps.Metrics))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	logging.Info("Router initialized with metrics and logging middleware")

	r.Get("/healthCheck", api.HealthCheckHandler(deps, upSince))
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	RegisterAPIRoutes(r, api.NewHandlers(deps), middleware.NewRateLimiter(20, 40))

	return r
}

// RegisterAPIRoutes registers all API v1 routes and handlers
func RegisterAPIRoutes(r chi.Router, handlers *api.Handlers, limiter *middleware.RateLimiter) {
	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Use(limiter.Middleware)

		v1.Post("/session", handlers.StartSession())
		v1.Get("/session", handlers.GetSession())

		v1.Route("/feed", func(fr chi.Router) {
			fr.Get("/", handlers.GetFeed())
			fr.Post("/filter", handlers.ChangeFeedFilter())
			fr.Post("/next", handlers.LoadNextFeedPage())
			fr.Post("/scroll", handlers.ScrollFeed())
		})

		v1.Get("/sync/status", handlers.GetSyncStatus())

		v1.Post("/uploads", handlers.StartUpload())
		v1.Get("/uploads", handlers.GetUploads())

		v1.Route("/activity/{id}", func(ar chi.Router) {
			ar.Get("/", handlers.GetActivity())
			ar.Patch("/", handlers.UpdateActivity())
			ar.Delete("/", handlers.DeleteActivity())
			ar.Get("/power-curve", handlers.GetPowerCurve())
		})
	})
}
