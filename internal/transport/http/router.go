package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/ernyzasxash/clientt/internal/config"
	apperrors "github.com/ernyzasxash/clientt/internal/errors"
	"github.com/ernyzasxash/clientt/internal/infrastructure"
	"github.com/ernyzasxash/clientt/internal/middleware"
	"github.com/ernyzasxash/clientt/internal/services"
)

// RouterDeps holds everything NewRouter wires together
type RouterDeps struct {
	Config    *config.Config
	License   LicenseService
	Admin     AdminService
	Health    *services.HealthService
	Feed      http.Handler
	Providers *infrastructure.OTelProviders
	Logger    *slog.Logger
}

// NewRouter builds the license server router
func NewRouter(deps RouterDeps) (chi.Router, error) {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := deps.Logger

	errorHandler := apperrors.NewErrorHandler(logger, false)
	validator := middleware.NewValidationMiddleware(logger, errorHandler)

	otelMiddleware, err := middleware.NewOTelMiddleware(deps.Providers)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if cfg.Security.TrustForwardedFor {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.StructuredLogger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(otelMiddleware.Handler)
	r.Use(middleware.SecurityHeaders)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	if deps.Health != nil {
		NewHealthHandler(deps.Health, logger).Routes(r)
	}
	if deps.Providers != nil && deps.Providers.PrometheusHTTP != nil {
		r.Handle("/metrics", deps.Providers.PrometheusHTTP)
	}

	licenseHandler := NewLicenseHandler(deps.License, validator, logger)
	r.Group(func(r chi.Router) {
		if cfg.Security.RateLimit.Enabled {
			limiter := middleware.NewRateLimiter(cfg.Security.RateLimit.RPS, cfg.Security.RateLimit.Burst, errorHandler, logger)
			r.Use(limiter.Handler)
		}
		r.Use(validator.ValidateRequest)
		licenseHandler.CheckRoutes(r)
	})

	// Heartbeats are not rate limited: a launcher disconnects on its first
	// non-2xx answer and many players can share one address.
	r.Group(func(r chi.Router) {
		r.Use(validator.ValidateRequest)
		licenseHandler.HeartbeatRoutes(r)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.Security.AdminToken, errorHandler, logger))
		r.Use(validator.ValidateRequest)
		NewAdminHandler(deps.Admin, validator, errorHandler, deps.Feed, logger).Routes(r)
	})

	logger.Info("router configured",
		slog.Bool("rate_limit", cfg.Security.RateLimit.Enabled),
		slog.Bool("admin_enabled", cfg.Security.AdminToken != ""),
		slog.Bool("trust_forwarded_for", cfg.Security.TrustForwardedFor))

	return r, nil
}
