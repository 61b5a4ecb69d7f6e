// Package api provides the HTTP surface of the safety engine.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/aegis-safety/aegis/internal/api/handler"
	"github.com/aegis-safety/aegis/internal/api/middleware"
	"github.com/aegis-safety/aegis/internal/auth"
	"github.com/aegis-safety/aegis/internal/connectivity"
	"github.com/aegis-safety/aegis/internal/dispatch"
	"github.com/aegis-safety/aegis/internal/dispatch/offlinequeue"
	"github.com/aegis-safety/aegis/internal/geofence"
	"github.com/aegis-safety/aegis/internal/share"
	"github.com/aegis-safety/aegis/internal/tracking"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string

	JWTService      *auth.JWTService
	TrackingManager *tracking.Manager
	ZoneService     *geofence.Service
	DispatchService *dispatch.Service
	ShareService    *share.Service
	Signal          connectivity.Signal
	OfflineQueue    *offlinequeue.Queue
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "aegis-engine"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.ContentTypeJSON)      // JSON content type

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime,
		cfg.Signal, cfg.ZoneService, cfg.TrackingManager, cfg.OfflineQueue)
	trackingHandler := handler.NewTrackingHandler(cfg.TrackingManager)
	zoneHandler := handler.NewZoneHandler(cfg.ZoneService)
	alertHandler := handler.NewAlertHandler(cfg.DispatchService, cfg.TrackingManager)
	shareHandler := handler.NewShareHandler(cfg.ShareService)
	viewHandler := handler.NewViewHandler(cfg.ShareService)

	// Create auth middleware
	authMiddleware := middleware.Auth(cfg.JWTService)

	// Rate limits
	publicViewRateLimit := middleware.RateLimitByIP(middleware.PublicViewRateLimit) // 30 req/min
	standardRateLimit := middleware.RateLimitByUser(middleware.StandardRateLimit)   // 100 req/min

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			// Status endpoint requires authentication
			r.With(authMiddleware).Get("/status", opsHandler.SystemStatus)
		})

		// Public share view - IP rate limited, no auth. Blunts access-code
		// guessing while keeping the link usable without an account.
		r.With(publicViewRateLimit).Get("/view/{shareId}", viewHandler.View)

		// Owner endpoints (authenticated)
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(standardRateLimit)

			r.Route("/tracking", func(r chi.Router) {
				r.Post("/start", trackingHandler.Start)
				r.Post("/stop", trackingHandler.Stop)
				r.Post("/resume", trackingHandler.Resume)
				r.Get("/status", trackingHandler.Status)
				r.Get("/position", trackingHandler.Position)
			})

			r.Route("/zones", func(r chi.Router) {
				r.Get("/", zoneHandler.List)
				r.Post("/", zoneHandler.Create)
				r.Route("/{zoneId}", func(r chi.Router) {
					r.Get("/", zoneHandler.Get)
					r.Put("/", zoneHandler.Update)
					r.Delete("/", zoneHandler.Delete)
				})
				r.Post("/{zoneId}:toggle", zoneHandler.Toggle)
			})

			// SOS is deliberately not rate limited beyond the standard
			// per-user window: an emergency trigger must never 429.
			r.Post("/sos", alertHandler.TriggerSOS)

			r.Route("/alerts", func(r chi.Router) {
				r.Get("/", alertHandler.List)
				r.Get("/{jobId}", alertHandler.Get)
			})

			r.Route("/shares", func(r chi.Router) {
				r.Get("/", shareHandler.List)
				r.Post("/", shareHandler.Create)
				r.Post("/{shareId}:extend", shareHandler.Extend)
				r.Delete("/{shareId}", shareHandler.Stop)
			})
		})
	})

	return r
}
