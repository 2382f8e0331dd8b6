// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

type Manager struct {
	registry       *prometheus.Registry
	stateCollector *StateCollector
	gateDecisions  *prometheus.CounterVec
}

func NewManager(settingsReader SettingsReader, licenseReader LicenseReader) *Manager {
	registry := prometheus.NewRegistry()

	stateCollector := NewStateCollector(settingsReader, licenseReader)
	registry.MustRegister(stateCollector)

	gateDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ezmaint_gate_decisions_total",
		Help: "Gate decisions by outcome and the rule that decided",
	}, []string{"decision", "reason"})
	registry.MustRegister(gateDecisions)

	log.Info().Msg("Metrics manager initialized")

	return &Manager{
		registry:       registry,
		stateCollector: stateCollector,
		gateDecisions:  gateDecisions,
	}
}

func (m *Manager) GetRegistry() *prometheus.Registry {
	return m.registry
}

// RecordDecision counts one gate decision
func (m *Manager) RecordDecision(decision, reason string) {
	m.gateDecisions.WithLabelValues(decision, reason).Inc()
}
