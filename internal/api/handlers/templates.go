// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/ezmaint/internal/gate"
	"github.com/autobrr/ezmaint/internal/models"
	"github.com/autobrr/ezmaint/internal/services"
	"github.com/autobrr/ezmaint/internal/settings"
	"github.com/autobrr/ezmaint/internal/templates"
)

type TemplatesHandler struct {
	registry *templates.Registry
	settings *settings.Store
	license  *services.LicenseService
	page     *gate.Middleware
}

func NewTemplatesHandler(registry *templates.Registry, store *settings.Store, license *services.LicenseService, page *gate.Middleware) *TemplatesHandler {
	return &TemplatesHandler{
		registry: registry,
		settings: store,
		license:  license,
		page:     page,
	}
}

type templateEntry struct {
	templates.Template
	Available bool `json:"available"`
	Active    bool `json:"active"`
}

func (h *TemplatesHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	snap, err := h.settings.Snapshot(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load settings")
		RespondError(w, http.StatusInternalServerError, "Failed to load templates")
		return
	}

	premium := h.license.Entitled(ctx, models.FeaturePremiumTemplates)

	list := h.registry.List()
	entries := make([]templateEntry, 0, len(list))
	for _, t := range list {
		entries = append(entries, templateEntry{
			Template:  t,
			Available: !t.Premium || premium,
			Active:    t.ID == snap.Template,
		})
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"default":   h.registry.DefaultID(),
		"templates": entries,
	})
}

// PreviewTemplate renders the current settings through the template in the URL.
// The response is 200 so browsers show it inline.
func (h *TemplatesHandler) PreviewTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "templateID")
	if _, ok := h.registry.Lookup(id); !ok {
		RespondJSON(w, http.StatusNotFound, map[string]any{
			"error":       "Template not found",
			"suggestions": h.registry.Suggest(id),
		})
		return
	}

	snap, err := h.settings.Snapshot(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to load settings")
		RespondError(w, http.StatusInternalServerError, "Failed to render preview")
		return
	}
	snap.Template = id

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.page.Render(r.Context(), snap))
}
