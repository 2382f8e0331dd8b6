// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/ezmaint/internal/services"
)

type LicenseHandler struct {
	license *services.LicenseService
}

func NewLicenseHandler(license *services.LicenseService) *LicenseHandler {
	return &LicenseHandler{license: license}
}

// ActivateLicenseRequest leaves field checks to the service so its messages reach the caller
type ActivateLicenseRequest struct {
	LicenseKey string `json:"license_key"`
	Email      string `json:"email"`
}

func (h *LicenseHandler) GetLicense(w http.ResponseWriter, r *http.Request) {
	info, err := h.license.Info(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to load license")
		RespondError(w, http.StatusInternalServerError, "Failed to load license")
		return
	}

	RespondJSON(w, http.StatusOK, info)
}

func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req ActivateLicenseRequest
	if err := decodeJSON(r, &req); err != nil {
		respondFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	result := h.license.Activate(r.Context(), req.LicenseKey, req.Email)
	if !result.Success {
		RespondJSON(w, http.StatusBadRequest, result)
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

func (h *LicenseHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, h.license.Deactivate(r.Context()))
}

func (h *LicenseHandler) Verify(w http.ResponseWriter, r *http.Request) {
	valid := h.license.Verify(r.Context())

	info, err := h.license.Info(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to load license")
		RespondError(w, http.StatusInternalServerError, "Failed to load license")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"valid": valid,
		"info":  info,
	})
}
