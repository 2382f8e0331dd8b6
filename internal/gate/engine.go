// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package gate decides whether a request reaches the site or the
// maintenance page, and serves the page when it does not.
package gate

import (
	"slices"

	"github.com/autobrr/ezmaint/internal/settings"
)

type Reason string

const (
	ReasonDisabled  Reason = "disabled"
	ReasonRole      Reason = "role"
	ReasonIP        Reason = "ip"
	ReasonPredicate Reason = "predicate"
	ReasonNone      Reason = "none"
)

// RequestContext is what the engine knows about the caller
type RequestContext struct {
	Authenticated bool
	Roles         []string
	IP            string
	Path          string
}

// BypassPredicate grants a bypass for requests the built-in rules do not cover.
// Predicates must not have side effects.
type BypassPredicate func(rc RequestContext) bool

type Decision struct {
	Bypass bool
	Reason Reason
}

func (d Decision) String() string {
	if d.Bypass {
		return "bypass"
	}
	return "intercept"
}

type Engine struct {
	predicates []BypassPredicate
}

func NewEngine(predicates ...BypassPredicate) *Engine {
	return &Engine{predicates: slices.Clone(predicates)}
}

// Evaluate is a pure function of its inputs.
// Rules are a union: any match bypasses, nothing matching intercepts.
func (e *Engine) Evaluate(s settings.Snapshot, rc RequestContext) Decision {
	if !s.Enabled {
		return Decision{Bypass: true, Reason: ReasonDisabled}
	}

	if rc.Authenticated {
		for _, role := range rc.Roles {
			if slices.Contains(s.BypassRoles, role) {
				return Decision{Bypass: true, Reason: ReasonRole}
			}
		}
	}

	// exact string match, entries are not parsed as networks
	if rc.IP != "" && slices.Contains(s.BypassIPs, rc.IP) {
		return Decision{Bypass: true, Reason: ReasonIP}
	}

	for _, allow := range e.predicates {
		if allow != nil && allow(rc) {
			return Decision{Bypass: true, Reason: ReasonPredicate}
		}
	}

	return Decision{Bypass: false, Reason: ReasonNone}
}
