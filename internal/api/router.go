// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/ezmaint/internal/api/handlers"
	apimiddleware "github.com/autobrr/ezmaint/internal/api/middleware"
	"github.com/autobrr/ezmaint/internal/auth"
	"github.com/autobrr/ezmaint/internal/config"
	"github.com/autobrr/ezmaint/internal/database"
	"github.com/autobrr/ezmaint/internal/gate"
	"github.com/autobrr/ezmaint/internal/metrics"
	"github.com/autobrr/ezmaint/internal/models"
	"github.com/autobrr/ezmaint/internal/services"
	"github.com/autobrr/ezmaint/internal/settings"
	"github.com/autobrr/ezmaint/internal/templates"
	"github.com/autobrr/ezmaint/internal/web/swagger"
)

// Dependencies holds everything the router wires together
type Dependencies struct {
	Config         *config.AppConfig
	DB             *database.DB
	AuthService    *auth.Service
	APIKeyStore    *models.APIKeyStore
	Settings       *settings.Store
	Control        *services.ControlService
	License        *services.LicenseService
	Templates      *templates.Registry
	Gate           *gate.Middleware
	Upstream       http.Handler
	MetricsManager *metrics.Manager
	Swagger        *swagger.Handler
}

// NewRouter builds the admin routes under the admin path. Every other path
// passes through the gate and then to the upstream site.
func NewRouter(deps *Dependencies) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if deps.Config.Config.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(apimiddleware.HTTPLogger)
	r.Use(middleware.Recoverer)

	authHandler := handlers.NewAuthHandler(deps.AuthService, deps.APIKeyStore)
	controlHandler := handlers.NewControlHandler(deps.Control, deps.Settings)
	licenseHandler := handlers.NewLicenseHandler(deps.License)
	templatesHandler := handlers.NewTemplatesHandler(deps.Templates, deps.Settings, deps.License, deps.Gate)

	rateLimit := apimiddleware.RateLimit(deps.Config.Config.ControlRateLimit.RequestsPerSecond, deps.Config.Config.ControlRateLimit.Burst)

	r.Route(deps.Config.Config.AdminPath, func(r chi.Router) {
		r.Get("/health", healthHandler(deps.DB))

		if deps.MetricsManager != nil {
			r.Handle("/metrics", promhttp.HandlerFor(deps.MetricsManager.GetRegistry(), promhttp.HandlerOpts{}))
		}

		if deps.Swagger != nil {
			deps.Swagger.RegisterRoutes(r)
		}

		r.Route("/api", func(r chi.Router) {
			r.Route("/auth", func(r chi.Router) {
				r.Use(rateLimit)
				r.Post("/login", authHandler.Login)
				r.Post("/logout", authHandler.Logout)
				r.Get("/me", authHandler.GetCurrentUser)
			})

			r.Route("/v1", func(r chi.Router) {
				r.Use(rateLimit)

				r.With(apimiddleware.RequireAdminSession(deps.AuthService)).Post("/api-key", authHandler.RotateAPIKey)

				r.Group(func(r chi.Router) {
					r.Use(apimiddleware.RequireAdmin(deps.AuthService, deps.APIKeyStore))

					r.Get("/status", controlHandler.GetStatus)
					r.Post("/activate", controlHandler.Activate)
					r.Post("/deactivate", controlHandler.Deactivate)
					r.Post("/toggle", controlHandler.Toggle)
					r.Post("/template", controlHandler.UpdateTemplate)

					r.Route("/settings", func(r chi.Router) {
						r.Get("/", controlHandler.GetSettings)
						r.Post("/", controlHandler.UpdateSettings)
						r.Post("/reset", controlHandler.ResetSettings)
					})

					r.Route("/templates", func(r chi.Router) {
						r.Get("/", templatesHandler.ListTemplates)
						r.Get("/{templateID}/preview", templatesHandler.PreviewTemplate)
					})

					r.Route("/license", func(r chi.Router) {
						r.Get("/", licenseHandler.GetLicense)
						r.Post("/activate", licenseHandler.Activate)
						r.Post("/deactivate", licenseHandler.Deactivate)
						r.Post("/verify", licenseHandler.Verify)
					})
				})
			})
		})
	})

	site := deps.Gate.Handler(deps.Upstream)
	r.Handle("/*", site)

	return r
}

func healthHandler(db *database.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			if err := db.Ping(ctx); err != nil {
				log.Error().Err(err).Msg("Health check failed")
				handlers.RespondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
				return
			}
		}

		handlers.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
