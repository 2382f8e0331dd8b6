// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/ezmaint/internal/auth"
	"github.com/autobrr/ezmaint/internal/models"
	"github.com/autobrr/ezmaint/internal/services"
)

// APIKeyHeader carries the control API key
const APIKeyHeader = "X-EZMP-API-Key"

type APIKeyValidator interface {
	Validate(ctx context.Context, rawKey string) error
}

func unauthorized(w http.ResponseWriter) {
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// RequireAdmin accepts an administrator session or a valid API key.
// Every failure gets the same 401.
func RequireAdmin(authService *auth.Service, keys APIKeyValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if apiKey := r.Header.Get(APIKeyHeader); apiKey != "" {
				if err := keys.Validate(ctx, apiKey); err != nil {
					if errors.Is(err, models.ErrInvalidAPIKey) {
						log.Warn().Str("remote_addr", r.RemoteAddr).Msg("Invalid API key")
					} else {
						log.Error().Err(err).Msg("Failed to validate API key")
					}
					unauthorized(w)
					return
				}

				ctx = auth.WithIdentity(ctx, nil, auth.MethodAPIKey)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			identity, err := authService.Identity(r)
			if err != nil || !identity.IsAdmin() {
				unauthorized(w)
				return
			}

			ctx = auth.WithIdentity(ctx, identity, auth.MethodSession)
			ctx = services.WithActor(ctx, identity.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdminSession is RequireAdmin without the API key path
func RequireAdminSession(authService *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := authService.Identity(r)
			if err != nil || !identity.IsAdmin() {
				unauthorized(w)
				return
			}

			ctx := auth.WithIdentity(r.Context(), identity, auth.MethodSession)
			ctx = services.WithActor(ctx, identity.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
