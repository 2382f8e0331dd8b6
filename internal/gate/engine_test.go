// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package gate

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/autobrr/ezmaint/internal/settings"
)

func enabledSnapshot() settings.Snapshot {
	s := settings.DefaultSnapshot()
	s.Enabled = true
	return s
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name       string
		snapshot   func() settings.Snapshot
		rc         RequestContext
		predicates []BypassPredicate
		expected   Decision
	}{
		{
			name:     "disabled_always_bypasses",
			snapshot: settings.DefaultSnapshot,
			rc:       RequestContext{IP: "203.0.113.9"},
			expected: Decision{Bypass: true, Reason: ReasonDisabled},
		},
		{
			name:     "admin_role_bypasses",
			snapshot: enabledSnapshot,
			rc:       RequestContext{Authenticated: true, Roles: []string{"administrator"}},
			expected: Decision{Bypass: true, Reason: ReasonRole},
		},
		{
			name:     "roles_ignored_when_not_authenticated",
			snapshot: enabledSnapshot,
			rc:       RequestContext{Roles: []string{"administrator"}},
			expected: Decision{Bypass: false, Reason: ReasonNone},
		},
		{
			name:     "other_role_intercepted",
			snapshot: enabledSnapshot,
			rc:       RequestContext{Authenticated: true, Roles: []string{"subscriber"}},
			expected: Decision{Bypass: false, Reason: ReasonNone},
		},
		{
			name: "whitelisted_ip_bypasses",
			snapshot: func() settings.Snapshot {
				s := enabledSnapshot()
				s.BypassIPs = []string{"192.0.2.1", "10.0.0.5"}
				return s
			},
			rc:       RequestContext{IP: "10.0.0.5"},
			expected: Decision{Bypass: true, Reason: ReasonIP},
		},
		{
			name: "cidr_entries_are_literal",
			snapshot: func() settings.Snapshot {
				s := enabledSnapshot()
				s.BypassIPs = []string{"10.0.0.0/8", "not-an-ip"}
				return s
			},
			rc:       RequestContext{IP: "10.0.0.5"},
			expected: Decision{Bypass: false, Reason: ReasonNone},
		},
		{
			name: "empty_lists_never_match",
			snapshot: func() settings.Snapshot {
				s := enabledSnapshot()
				s.BypassRoles = nil
				s.BypassIPs = nil
				return s
			},
			rc:       RequestContext{Authenticated: true, Roles: []string{"administrator"}, IP: "10.0.0.5"},
			expected: Decision{Bypass: false, Reason: ReasonNone},
		},
		{
			name:     "predicate_bypasses",
			snapshot: enabledSnapshot,
			rc:       RequestContext{Path: "/healthz"},
			predicates: []BypassPredicate{
				func(RequestContext) bool { return false },
				func(rc RequestContext) bool { return rc.Path == "/healthz" },
			},
			expected: Decision{Bypass: true, Reason: ReasonPredicate},
		},
		{
			name:       "nil_predicate_skipped",
			snapshot:   enabledSnapshot,
			predicates: []BypassPredicate{nil},
			expected:   Decision{Bypass: false, Reason: ReasonNone},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine(tt.predicates...)
			assert.Equal(t, tt.expected, engine.Evaluate(tt.snapshot(), tt.rc))
		})
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	engine := NewEngine(func(rc RequestContext) bool { return rc.Path == "/status" })

	snap := enabledSnapshot()
	snap.BypassIPs = []string{"10.0.0.5"}
	snap.BypassRoles = []string{"editor"}

	contexts := []RequestContext{
		{},
		{IP: "10.0.0.5"},
		{IP: "10.0.0.6"},
		{Authenticated: true, Roles: []string{"editor"}},
		{Authenticated: true, Roles: []string{"administrator"}},
		{Path: "/status"},
	}

	for _, rc := range contexts {
		first := engine.Evaluate(snap, rc)
		for range 10 {
			assert.Equal(t, first, engine.Evaluate(snap, rc))
		}
	}
}

func TestDisabledBypassesEverything(t *testing.T) {
	engine := NewEngine(func(RequestContext) bool { return false })

	snap := settings.DefaultSnapshot()
	snap.BypassRoles = nil
	snap.BypassIPs = []string{"10.0.0.5"}

	contexts := []RequestContext{
		{},
		{IP: "10.0.0.6"},
		{Authenticated: true, Roles: []string{"subscriber"}},
	}

	for _, rc := range contexts {
		assert.True(t, engine.Evaluate(snap, rc).Bypass)
	}
}

func TestRemovingMatchIntercepts(t *testing.T) {
	engine := NewEngine()
	rc := RequestContext{Authenticated: true, Roles: []string{"editor"}, IP: "10.0.0.5"}

	snap := enabledSnapshot()
	snap.BypassRoles = []string{"editor"}
	snap.BypassIPs = nil
	assert.True(t, engine.Evaluate(snap, rc).Bypass)

	snap.BypassRoles = nil
	assert.False(t, engine.Evaluate(snap, rc).Bypass)

	snap.BypassIPs = []string{"10.0.0.5"}
	assert.True(t, engine.Evaluate(snap, rc).Bypass)

	snap.BypassIPs = nil
	assert.False(t, engine.Evaluate(snap, rc).Bypass)
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "bypass", Decision{Bypass: true}.String())
	assert.Equal(t, "intercept", Decision{}.String())
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remoteAddr string
		expected   string
	}{
		{remoteAddr: "10.0.0.5:51234", expected: "10.0.0.5"},
		{remoteAddr: "[2001:db8::1]:443", expected: "2001:db8::1"},
		{remoteAddr: "10.0.0.6", expected: "10.0.0.6"},
		{remoteAddr: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.remoteAddr, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			assert.Equal(t, tt.expected, ClientIP(r))
		})
	}
}
