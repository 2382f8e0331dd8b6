// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package gate

import (
	"context"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/ezmaint/internal/models"
	"github.com/autobrr/ezmaint/internal/settings"
	"github.com/autobrr/ezmaint/internal/templates"
)

// RetryAfter is the Retry-After value sent with the maintenance page, in seconds
const RetryAfter = 3600

type SettingsSource interface {
	Snapshot(ctx context.Context) (settings.Snapshot, error)
	LastGood() (settings.Snapshot, bool)
}

// Entitlements reports whether the current license unlocks a feature
type Entitlements interface {
	Entitled(ctx context.Context, feature string) bool
}

// IdentityFunc returns the authenticated roles of the caller, if any
type IdentityFunc func(r *http.Request) (authenticated bool, roles []string)

// DecisionRecorder receives one call per evaluated request
type DecisionRecorder interface {
	RecordDecision(decision, reason string)
}

type Middleware struct {
	engine       *Engine
	settings     SettingsSource
	templates    *templates.Registry
	entitlements Entitlements
	identity     IdentityFunc
	recorder     DecisionRecorder
}

type Option func(*Middleware)

func WithIdentity(fn IdentityFunc) Option {
	return func(m *Middleware) { m.identity = fn }
}

func WithEntitlements(e Entitlements) Option {
	return func(m *Middleware) { m.entitlements = e }
}

func WithRecorder(r DecisionRecorder) Option {
	return func(m *Middleware) { m.recorder = r }
}

func NewMiddleware(engine *Engine, source SettingsSource, registry *templates.Registry, opts ...Option) *Middleware {
	m := &Middleware{
		engine:    engine,
		settings:  source,
		templates: registry,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handler intercepts requests while maintenance is enabled and the caller
// has no bypass. Bypassed requests reach next untouched.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap, ok := m.snapshot(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		rc := m.requestContext(r)
		decision := m.engine.Evaluate(snap, rc)

		if m.recorder != nil {
			m.recorder.RecordDecision(decision.String(), string(decision.Reason))
		}

		if decision.Bypass {
			next.ServeHTTP(w, r)
			return
		}

		log.Trace().Str("ip", rc.IP).Str("path", rc.Path).Msg("Serving maintenance page")
		m.ServePage(w, r, snap)
	})
}

// ServePage writes the 503 maintenance response for snap
func (m *Middleware) ServePage(w http.ResponseWriter, r *http.Request, snap settings.Snapshot) {
	body := m.Render(r.Context(), snap)

	h := w.Header()
	h.Set("Retry-After", strconv.Itoa(RetryAfter))
	h.Set("Cache-Control", "no-cache, must-revalidate, max-age=0, no-store, private")
	h.Set("Expires", "Wed, 11 Jan 1984 05:00:00 GMT")
	h.Set("Pragma", "no-cache")
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusServiceUnavailable)

	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(body); err != nil {
		log.Debug().Err(err).Msg("Failed to write maintenance page")
	}
}

// Render applies the license entitlements to snap and renders the chosen template
func (m *Middleware) Render(ctx context.Context, snap settings.Snapshot) []byte {
	rc := templates.BuildRenderContext(snap)
	id := snap.Template

	if !m.entitled(ctx, models.FeatureCustomCSS) {
		rc.CustomCSS = ""
	}
	if !m.entitled(ctx, models.FeatureCountdownTimer) {
		rc.CountdownEnabled = false
	}
	if !m.entitled(ctx, models.FeatureSocialLinks) {
		rc.ShowSocial = false
	}
	if t := m.templates.Resolve(id); t.Premium && !m.entitled(ctx, models.FeaturePremiumTemplates) {
		log.Debug().Str("template", t.ID).Msg("Premium template requires a license, using default")
		id = m.templates.DefaultID()
	}

	return m.templates.Render(id, rc)
}

func (m *Middleware) entitled(ctx context.Context, feature string) bool {
	if m.entitlements == nil {
		return models.HasFeature(models.PlanFree, feature)
	}
	return m.entitlements.Entitled(ctx, feature)
}

func (m *Middleware) snapshot(ctx context.Context) (settings.Snapshot, bool) {
	snap, err := m.settings.Snapshot(ctx)
	if err == nil {
		return snap, true
	}

	if last, ok := m.settings.LastGood(); ok {
		log.Warn().Err(err).Msg("Failed to load settings, using last known snapshot")
		return last, true
	}

	log.Error().Err(err).Msg("Failed to load settings and no previous snapshot, passing request through")
	return settings.Snapshot{}, false
}

func (m *Middleware) requestContext(r *http.Request) RequestContext {
	rc := RequestContext{
		IP:   ClientIP(r),
		Path: r.URL.Path,
	}
	if m.identity != nil {
		rc.Authenticated, rc.Roles = m.identity(r)
	}
	return rc
}
