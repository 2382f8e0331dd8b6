// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/ezmaint/internal/auth"
	"github.com/autobrr/ezmaint/internal/models"
)

type AuthHandler struct {
	authService *auth.Service
	apiKeys     *models.APIKeyStore
}

func NewAuthHandler(authService *auth.Service, apiKeys *models.APIKeyStore) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		apiKeys:     apiKeys,
	}
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login handles user login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.authService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			RespondError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		log.Error().Err(err).Msg("Login failed")
		RespondError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	if err := h.authService.StartSession(w, r, user); err != nil {
		log.Error().Err(err).Msg("Failed to save session")
		RespondError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	log.Info().Str("username", user.Username).Msg("User logged in")

	RespondJSON(w, http.StatusOK, map[string]any{
		"message": "Login successful",
		"user": auth.Identity{
			UserID:   user.ID,
			Username: user.Username,
			Roles:    user.Roles,
		},
	})
}

// Logout handles user logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.authService.EndSession(w, r); err != nil {
		log.Error().Err(err).Msg("Failed to clear session")
		RespondError(w, http.StatusInternalServerError, "Failed to logout")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{
		"message": "Logged out successfully",
	})
}

// GetCurrentUser returns the session user
func (h *AuthHandler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	identity, err := h.authService.Identity(r)
	if err != nil {
		RespondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	RespondJSON(w, http.StatusOK, identity)
}

// RotateAPIKey replaces the control API key. The raw key is only in this response.
func (h *AuthHandler) RotateAPIKey(w http.ResponseWriter, r *http.Request) {
	rawKey, err := h.apiKeys.Rotate(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to rotate API key")
		RespondError(w, http.StatusInternalServerError, "Failed to create API key")
		return
	}

	if identity, _, ok := auth.IdentityFrom(r.Context()); ok && identity != nil {
		log.Info().Str("username", identity.Username).Msg("Control API key rotated")
	}

	RespondJSON(w, http.StatusCreated, map[string]string{
		"api_key": rawKey,
		"message": "Save this key securely - it will not be shown again",
	})
}
