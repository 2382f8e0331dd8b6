// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/ezmaint/internal/services"
	"github.com/autobrr/ezmaint/internal/settings"
)

// cosmetic failures carry no detail
const saveFailedMessage = "Could not save settings"

type ControlHandler struct {
	control  *services.ControlService
	settings *settings.Store
}

func NewControlHandler(control *services.ControlService, store *settings.Store) *ControlHandler {
	return &ControlHandler{
		control:  control,
		settings: store,
	}
}

type ActivateRequest struct {
	// checked by the settings schema, which also folds case
	Mode     *string `json:"mode"`
	Template *string `json:"template" validate:"omitempty,min=1"`
	Message  *string `json:"message"`
}

type TemplateRequest struct {
	Template string `json:"template" validate:"required"`
}

func respondFailure(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]any{
		"success": false,
		"message": message,
	})
}

// respondSaveError maps a settings write error to a response
func respondSaveError(w http.ResponseWriter, err error) {
	var invalid *settings.ValidationError
	if errors.As(err, &invalid) {
		log.Debug().Str("key", invalid.Key).Str("reason", invalid.Reason).Msg("Rejected settings update")
		respondFailure(w, http.StatusBadRequest, saveFailedMessage)
		return
	}

	log.Error().Err(err).Msg("Failed to save settings")
	respondFailure(w, http.StatusInternalServerError, saveFailedMessage)
}

func (h *ControlHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.control.Status(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to load status")
		RespondError(w, http.StatusInternalServerError, "Failed to load status")
		return
	}

	RespondJSON(w, http.StatusOK, status)
}

func (h *ControlHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req ActivateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	status, err := h.control.Activate(r.Context(), services.ActivateParams{
		Mode:     req.Mode,
		Template: req.Template,
		Message:  req.Message,
	})
	if err != nil {
		respondSaveError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Maintenance mode activated",
		"status":  status,
	})
}

func (h *ControlHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.control.Deactivate(r.Context()); err != nil {
		respondSaveError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Maintenance mode deactivated",
	})
}

func (h *ControlHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	enabled, err := h.control.Toggle(r.Context())
	if err != nil {
		respondSaveError(w, err)
		return
	}

	message := "Maintenance mode disabled"
	if enabled {
		message = "Maintenance mode enabled"
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"enabled": enabled,
		"message": message,
	})
}

func (h *ControlHandler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	template, err := h.control.UpdateTemplate(r.Context(), req.Template)
	if err != nil {
		respondSaveError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  "Template updated",
		"template": template,
	})
}

func (h *ControlHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	values := map[string]any{}
	if err := decodeJSON(r, &values); err != nil {
		respondFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	applied, err := h.control.UpdateSettings(r.Context(), values)
	if err != nil {
		respondSaveError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Settings saved",
		"applied": applied,
	})
}

func (h *ControlHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	snap, err := h.settings.Snapshot(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to load settings")
		RespondError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}

	RespondJSON(w, http.StatusOK, snap)
}

func (h *ControlHandler) ResetSettings(w http.ResponseWriter, r *http.Request) {
	if err := h.control.Reset(r.Context()); err != nil {
		log.Error().Err(err).Msg("Failed to reset settings")
		respondFailure(w, http.StatusInternalServerError, "Could not reset settings")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Settings reset to defaults",
	})
}
