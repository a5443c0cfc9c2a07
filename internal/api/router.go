// Package api provides the HTTP API for tripboard.
package api

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/tripboard/tripboard/internal/api/handler"
	"github.com/tripboard/tripboard/internal/api/middleware"
	"github.com/tripboard/tripboard/internal/provider/resilience"
	"github.com/tripboard/tripboard/internal/stop"
	"github.com/tripboard/tripboard/internal/timeline"
	"github.com/tripboard/tripboard/internal/transit"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	RequireTLS  bool

	// Registry and Store feed the ops endpoints; both are optional.
	Registry  *resilience.Registry
	Store     handler.Pinger
	StoreName string

	Directory *stop.Directory
	Provider  transit.Provider
	Timelines *timeline.Service
	Widgets   []timeline.Config
	Horizon   time.Duration
	Step      time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "tripboard-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement behind a proxy
	r.Use(middleware.ContentTypeJSON)            // JSON content type
	r.Use(middleware.RequireJSON)                // JSON request bodies

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(handler.OpsHandlerConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Registry:  cfg.Registry,
		Store:     cfg.Store,
		StoreName: cfg.StoreName,
		Timelines: cfg.Timelines,
	})
	stopHandler := handler.NewStopHandler(handler.StopHandlerConfig{
		Directory: cfg.Directory,
		OnChange: func(context.Context) {
			// Automatic timelines may now resolve to a different stop.
			if cfg.Timelines != nil {
				cfg.Timelines.InvalidateAll()
			}
		},
		Logger: cfg.Logger,
	})
	departureHandler := handler.NewDepartureHandler(handler.DepartureHandlerConfig{
		Provider:  cfg.Provider,
		Directory: cfg.Directory,
		Now:       cfg.Now,
		Logger:    cfg.Logger,
	})
	timelineHandler := handler.NewTimelineHandler(handler.TimelineHandlerConfig{
		Service: cfg.Timelines,
		Widgets: cfg.Widgets,
		Horizon: cfg.Horizon,
		Step:    cfg.Step,
		Now:     cfg.Now,
		Logger:  cfg.Logger,
	})

	// Create rate limit middleware for different endpoint categories
	upstreamRateLimit := middleware.RateLimitByIP(middleware.UpstreamRateLimit) // 30 req/min
	mutationRateLimit := middleware.RateLimitByIP(middleware.MutationRateLimit) // 20 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit) // 100 req/min

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		// Saved stops
		r.Route("/stops", func(r chi.Router) {
			r.With(standardRateLimit).Get("/", stopHandler.ListStops)
			r.With(mutationRateLimit).Post("/", stopHandler.CreateStop)
			r.With(standardRateLimit).Get("/nearby", stopHandler.NearbyStops)
			r.With(mutationRateLimit).Post("/seed", stopHandler.SeedStops)
			r.Route("/{stopId}", func(r chi.Router) {
				r.With(standardRateLimit).Get("/", stopHandler.GetStop)
				r.With(mutationRateLimit).Put("/", stopHandler.UpdateStop)
				r.With(mutationRateLimit).Delete("/", stopHandler.DeleteStop)
				r.With(upstreamRateLimit).Get("/departures", departureHandler.ListStopDepartures)
			})
		})

		// Live departures - every request goes upstream
		r.With(upstreamRateLimit).Get("/departures", departureHandler.ListDepartures)

		// Timelines
		r.With(upstreamRateLimit).Get("/timeline", timelineHandler.GetTimeline)
		r.Route("/widgets", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/", timelineHandler.ListWidgets)
			r.Get("/{name}/timeline", timelineHandler.GetWidgetTimeline)
			r.Get("/{name}/current", timelineHandler.GetWidgetCurrent)
		})
		r.With(mutationRateLimit).Post("/timelines/invalidate", timelineHandler.Invalidate)
	})

	return r
}
