// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package templates renders the maintenance page.
package templates

import (
	"bytes"
	"embed"
	"html/template"
	"io"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/ezmaint/internal/settings"
)

//go:embed themes/*.html
var themeFS embed.FS

var themes = template.Must(template.New("themes").Funcs(funcs).ParseFS(themeFS, "themes/*.html"))

var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrDefaultTemplate  = errors.New("the default template cannot be removed")
)

// FallbackBody is served when no registered template can be rendered
const FallbackBody = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><meta name="robots" content="noindex, nofollow"><title>Service Unavailable</title></head>
<body><h1>Service Unavailable</h1><p>The site is temporarily unavailable. Please try again later.</p></body>
</html>
`

type Renderer interface {
	Render(w io.Writer, rc RenderContext) error
}

type RendererFunc func(w io.Writer, rc RenderContext) error

func (f RendererFunc) Render(w io.Writer, rc RenderContext) error {
	return f(w, rc)
}

type Template struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Premium     bool     `json:"premium"`
	Renderer    Renderer `json:"-"`
}

func (t Template) Render(w io.Writer, rc RenderContext) error {
	if t.Renderer == nil {
		return errors.Wrapf(ErrTemplateNotFound, "template %q has no renderer", t.ID)
	}
	return t.Renderer.Render(w, rc)
}

// Registry maps template ids to templates. The default entry is always present.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]Template
	defaultID string
}

// NewRegistry returns a registry holding the built-in templates
func NewRegistry() *Registry {
	r := &Registry{
		templates: make(map[string]Template),
		defaultID: settings.DefaultTemplate,
	}

	for _, t := range builtins() {
		r.templates[t.ID] = t
	}

	return r
}

func builtins() []Template {
	return []Template{
		{ID: "modern", Name: "Modern", Description: "Clean and modern design with gradient backgrounds", Renderer: themeRenderer("modern.html")},
		{ID: "minimal", Name: "Minimal", Description: "Simple and elegant minimalist design", Renderer: themeRenderer("minimal.html")},
		{ID: "corporate", Name: "Corporate", Description: "Professional corporate style", Renderer: themeRenderer("corporate.html")},
		{ID: "payment-required", Name: "Payment Required", Description: "Special template for non-payment situations", Renderer: themeRenderer("payment-required.html")},
	}
}

func themeRenderer(name string) Renderer {
	return RendererFunc(func(w io.Writer, rc RenderContext) error {
		return themes.ExecuteTemplate(w, name, rc)
	})
}

// DefaultID returns the id served when nothing else resolves
func (r *Registry) DefaultID() string {
	return r.defaultID
}

// Register adds or replaces a template
func (r *Registry) Register(t Template) error {
	if t.ID == "" {
		return errors.New("template id is required")
	}
	if t.Renderer == nil {
		return errors.Errorf("template %q has no renderer", t.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.ID] = t
	return nil
}

// Remove deletes a template. The default template is refused.
func (r *Registry) Remove(id string) error {
	if id == r.defaultID {
		return ErrDefaultTemplate
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.templates[id]; !ok {
		return errors.Wrapf(ErrTemplateNotFound, "remove %q", id)
	}
	delete(r.templates, id)
	return nil
}

// Lookup returns the template registered under id
func (r *Registry) Lookup(id string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[id]
	return t, ok
}

// Resolve returns the template for id, or the default when id is unknown
func (r *Registry) Resolve(id string) Template {
	if t, ok := r.Lookup(id); ok {
		return t
	}

	if id != "" {
		log.Warn().Str("template", id).Strs("suggestions", r.Suggest(id)).Msg("Unknown template, using default")
	}

	t, _ := r.Lookup(r.defaultID)
	return t
}

// Suggest returns registered ids that fuzzily match id, best match first
func (r *Registry) Suggest(id string) []string {
	needle := strings.ToLower(strings.TrimSpace(id))
	if needle == "" {
		return nil
	}

	type scored struct {
		id    string
		score int
	}

	var matches []scored
	for _, candidate := range r.IDs() {
		switch {
		case fuzzy.MatchNormalizedFold(needle, candidate):
			matches = append(matches, scored{id: candidate, score: fuzzy.RankMatchNormalizedFold(needle, candidate)})
		case fuzzy.MatchNormalizedFold(candidate, needle):
			matches = append(matches, scored{id: candidate, score: fuzzy.RankMatchNormalizedFold(candidate, needle)})
		case fuzzy.LevenshteinDistance(needle, candidate) <= 2:
			matches = append(matches, scored{id: candidate, score: fuzzy.LevenshteinDistance(needle, candidate)})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score < matches[j].score
		}
		return matches[i].id < matches[j].id
	})

	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.id
	}
	return out
}

// IDs returns every registered id, sorted
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.templates))
	for id := range r.templates {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// List returns every registered template with the default first
func (r *Registry) List() []Template {
	ids := r.IDs()

	list := make([]Template, 0, len(ids))
	if t, ok := r.Lookup(r.defaultID); ok {
		list = append(list, t)
	}
	for _, id := range ids {
		if id == r.defaultID {
			continue
		}
		if t, ok := r.Lookup(id); ok {
			list = append(list, t)
		}
	}
	return list
}

// Render renders the template for id. A failing template falls back to the
// default; if that fails too the static FallbackBody is returned.
// The returned bytes are always a complete page.
func (r *Registry) Render(id string, rc RenderContext) []byte {
	t := r.Resolve(id)

	var buf bytes.Buffer
	err := t.Render(&buf, rc)
	if err == nil {
		return buf.Bytes()
	}

	log.Error().Err(err).Str("template", t.ID).Msg("Failed to render template")

	if t.ID != r.defaultID {
		if def, ok := r.Lookup(r.defaultID); ok {
			buf.Reset()
			err := def.Render(&buf, rc)
			if err == nil {
				return buf.Bytes()
			}
			log.Error().Err(err).Str("template", def.ID).Msg("Failed to render default template")
		}
	}

	return []byte(FallbackBody)
}
