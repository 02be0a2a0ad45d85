package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the status API routes.
func SetupRoutes(h *Handlers, hc *HealthChecker, origins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(requestLogger)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", hc.HandleHealth)
	r.Get("/healthz", hc.HandleHealth)
	r.Get("/health/live", hc.HandleLiveness)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.GetStatus)
		r.Get("/runs", h.ListRuns)
		r.Post("/runs/trigger", h.TriggerRun)
		r.Get("/runs/{id}", h.GetRun)
	})

	return r
}
