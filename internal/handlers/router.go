package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/otcheredev/ris-modality-workflow/internal/middleware"
	"github.com/otcheredev/ris-modality-workflow/internal/services"
)

// RouterConfig carries the host-facing settings of the router
type RouterConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	Driver         string
	// Metrics is mounted at /metrics when set
	Metrics http.Handler
}

// NewRouter builds the command API of manager
func NewRouter(manager *services.LifecycleManager, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Compress(5))

	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   cfg.AllowedMethods,
			AllowedHeaders:   cfg.AllowedHeaders,
			ExposedHeaders:   []string{"Content-Length", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	health := NewHealthHandler(manager, cfg.Driver)
	r.Get("/health", health.Health)
	r.Get("/ready", health.Ready)

	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/worklists", NewWorklistHandler(manager).Routes)
		r.Route("/mpps", NewMppsHandler(manager).Routes)
		r.Route("/destinations", NewDestinationHandler(manager).Routes)
		r.Route("/patients", NewPatientHandler(manager).Routes)
		r.Route("/hl7", NewHL7Handler(manager).Routes)
		r.Route("/audit", NewAuditHandler(manager).Routes)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		fail(w, "Route not found", &services.Error{Kind: services.KindNotFound, Message: r.Method + " " + r.URL.Path + " not found"})
	})

	return r
}
