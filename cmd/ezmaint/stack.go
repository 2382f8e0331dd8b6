// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"

	"github.com/autobrr/ezmaint/internal/config"
	"github.com/autobrr/ezmaint/internal/database"
	"github.com/autobrr/ezmaint/internal/licenseserver"
	"github.com/autobrr/ezmaint/internal/models"
	"github.com/autobrr/ezmaint/internal/services"
	"github.com/autobrr/ezmaint/internal/settings"
)

// stack is the storage and service layer shared by serve and the admin commands
type stack struct {
	cfg      *config.AppConfig
	db       *database.DB
	users    *models.UserStore
	audit    *models.AuditLogStore
	apiKeys  *models.APIKeyStore
	settings *settings.Store
	license  *services.LicenseService
}

func openStack(ctx context.Context, cfg *config.AppConfig, version string) (*stack, error) {
	db, err := database.NewContext(ctx, cfg.GetDatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	options := models.NewOptionStore(db.Conn())
	audit := models.NewAuditLogStore(db.Conn())

	store, err := settings.NewStore(options, settings.Options{
		SiteName:   cfg.Config.SiteName,
		AdminEmail: cfg.Config.AdminEmail,
		CacheTTL:   cfg.SettingsCacheTTL(),
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	client := licenseserver.NewClient(
		cfg.Config.License.ServerURL,
		cfg.Config.License.ProductID,
		licenseserver.WithTimeout(cfg.LicenseRequestTimeout()),
		licenseserver.WithAppVersion(version),
	)

	license := services.NewLicenseService(models.NewLicenseStore(options), audit, client, services.LicenseOptions{
		GracePeriod:   cfg.LicenseOfflineGracePeriod(),
		CheckInterval: cfg.LicenseValidationInterval(),
	})

	return &stack{
		cfg:      cfg,
		db:       db,
		users:    models.NewUserStore(db.Conn()),
		audit:    audit,
		apiKeys:  models.NewAPIKeyStore(options),
		settings: store,
		license:  license,
	}, nil
}

func (s *stack) Close() {
	s.settings.Close()
	s.db.Close()
}

// loadConfig resolves the config and applies a --data-dir override
func loadConfig(configDir, dataDir string) (*config.AppConfig, error) {
	cfg, err := config.New(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize configuration: %w", err)
	}

	if dataDir != "" {
		cfg.SetDataDir(dataDir)
	}

	return cfg, nil
}
