// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/ezmaint/internal/settings"
)

type SettingsReader interface {
	Snapshot(ctx context.Context) (settings.Snapshot, error)
}

type LicenseReader interface {
	IsActive(ctx context.Context) bool
	EffectivePlan(ctx context.Context) string
}

// StateCollector reports the maintenance and license state at scrape time
type StateCollector struct {
	settings SettingsReader
	license  LicenseReader

	maintenanceEnabledDesc *prometheus.Desc
	maintenanceModeDesc    *prometheus.Desc
	licenseActiveDesc      *prometheus.Desc
	licensePlanDesc        *prometheus.Desc
	scrapeErrorsDesc       *prometheus.Desc
}

func NewStateCollector(settingsReader SettingsReader, licenseReader LicenseReader) *StateCollector {
	return &StateCollector{
		settings: settingsReader,
		license:  licenseReader,

		maintenanceEnabledDesc: prometheus.NewDesc(
			"ezmaint_maintenance_enabled",
			"Whether the maintenance page is enabled (1=enabled, 0=disabled)",
			nil,
			nil,
		),
		maintenanceModeDesc: prometheus.NewDesc(
			"ezmaint_maintenance_mode_info",
			"Configured maintenance mode and template",
			[]string{"mode", "template"},
			nil,
		),
		licenseActiveDesc: prometheus.NewDesc(
			"ezmaint_license_active",
			"Whether the license is active, including the offline grace period (1=active, 0=inactive)",
			nil,
			nil,
		),
		licensePlanDesc: prometheus.NewDesc(
			"ezmaint_license_plan_info",
			"Effective license plan",
			[]string{"plan"},
			nil,
		),
		scrapeErrorsDesc: prometheus.NewDesc(
			"ezmaint_scrape_errors_total",
			"Scrape errors by source",
			[]string{"type"},
			nil,
		),
	}
}

func (c *StateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.maintenanceEnabledDesc
	ch <- c.maintenanceModeDesc
	ch <- c.licenseActiveDesc
	ch <- c.licensePlanDesc
	ch <- c.scrapeErrorsDesc
}

func (c *StateCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if c.settings != nil {
		snap, err := c.settings.Snapshot(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to read settings for metrics")
			ch <- prometheus.MustNewConstMetric(c.scrapeErrorsDesc, prometheus.CounterValue, 1, "settings")
		} else {
			ch <- prometheus.MustNewConstMetric(c.maintenanceEnabledDesc, prometheus.GaugeValue, boolValue(snap.Enabled))
			ch <- prometheus.MustNewConstMetric(c.maintenanceModeDesc, prometheus.GaugeValue, 1, snap.Mode, snap.Template)
		}
	}

	if c.license != nil {
		ch <- prometheus.MustNewConstMetric(c.licenseActiveDesc, prometheus.GaugeValue, boolValue(c.license.IsActive(ctx)))
		ch <- prometheus.MustNewConstMetric(c.licensePlanDesc, prometheus.GaugeValue, 1, c.license.EffectivePlan(ctx))
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
