// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/ezmaint/internal/models"
	"github.com/autobrr/ezmaint/internal/settings"
)

// Status is the public view of the gate configuration
type Status struct {
	Enabled  bool   `json:"enabled"`
	Mode     string `json:"mode"`
	Template string `json:"template"`
	Title    string `json:"title"`
	Message  string `json:"message"`
}

// ActivateParams are optional overrides applied together with enabled=true
type ActivateParams struct {
	Mode     *string
	Template *string
	Message  *string
}

// ControlService is the thin layer behind the control API: it forwards to the
// settings store and records mode changes in the audit log.
type ControlService struct {
	settings *settings.Store
	audit    *models.AuditLogStore
}

func NewControlService(store *settings.Store, audit *models.AuditLogStore) *ControlService {
	return &ControlService{settings: store, audit: audit}
}

func (s *ControlService) Status(ctx context.Context) (Status, error) {
	snap, err := s.settings.Snapshot(ctx)
	if err != nil {
		return Status{}, err
	}
	return statusFrom(snap), nil
}

func statusFrom(snap settings.Snapshot) Status {
	return Status{
		Enabled:  snap.Enabled,
		Mode:     snap.Mode,
		Template: snap.Template,
		Title:    snap.Title,
		Message:  snap.Message,
	}
}

// Activate applies the given fields and turns interception on in one write
func (s *ControlService) Activate(ctx context.Context, params ActivateParams) (Status, error) {
	values := map[string]any{settings.KeyEnabled: true}
	details := map[string]string{}

	if params.Mode != nil {
		values[settings.KeyMode] = *params.Mode
		details["mode"] = *params.Mode
	}
	if params.Template != nil {
		values[settings.KeyTemplate] = *params.Template
		details["template"] = *params.Template
	}
	if params.Message != nil {
		values[settings.KeyMessage] = *params.Message
	}

	if err := s.settings.SetMany(ctx, values); err != nil {
		return Status{}, err
	}

	s.appendAudit(ctx, models.AuditActivated, details)
	log.Info().Int("actor", ActorFrom(ctx)).Msg("Maintenance mode activated")

	return s.Status(ctx)
}

func (s *ControlService) Deactivate(ctx context.Context) error {
	if err := s.settings.Set(ctx, settings.KeyEnabled, false); err != nil {
		return err
	}

	s.appendAudit(ctx, models.AuditDeactivated, nil)
	log.Info().Int("actor", ActorFrom(ctx)).Msg("Maintenance mode deactivated")

	return nil
}

// Toggle flips enabled and returns the new value
func (s *ControlService) Toggle(ctx context.Context) (bool, error) {
	current, err := s.settings.Get(ctx, settings.KeyEnabled)
	if err != nil {
		return false, err
	}

	enabled, _ := current.(bool)
	if enabled {
		return false, s.Deactivate(ctx)
	}

	if _, err := s.Activate(ctx, ActivateParams{}); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateTemplate stores the template id. Unknown ids are kept; the gate
// renders the default template for them.
func (s *ControlService) UpdateTemplate(ctx context.Context, template string) (string, error) {
	if err := s.settings.Set(ctx, settings.KeyTemplate, template); err != nil {
		return "", err
	}

	stored, err := s.settings.Get(ctx, settings.KeyTemplate)
	if err != nil {
		return "", err
	}

	id, _ := stored.(string)
	return id, nil
}

// UpdateSettings applies ezmp_ prefixed keys and ignores everything else
func (s *ControlService) UpdateSettings(ctx context.Context, values map[string]any) ([]string, error) {
	applied, err := s.settings.ApplyNamespaced(ctx, values)
	if err != nil {
		return nil, err
	}

	log.Debug().Strs("keys", applied).Int("actor", ActorFrom(ctx)).Msg("Settings updated through control API")
	return applied, nil
}

// Reset restores every default and forgets the license and API key
func (s *ControlService) Reset(ctx context.Context) error {
	if err := s.settings.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset settings: %w", err)
	}

	s.appendAudit(ctx, models.AuditSettingsReset, nil)
	return nil
}

func (s *ControlService) appendAudit(ctx context.Context, action string, details any) {
	if s.audit == nil {
		return
	}
	if m, ok := details.(map[string]string); ok && len(m) == 0 {
		details = nil
	}
	if err := s.audit.Append(ctx, action, details, ActorFrom(ctx)); err != nil {
		log.Error().Err(err).Str("action", action).Msg("Failed to write audit log")
	}
}
