// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package templates

import (
	"html"
	"html/template"
	"strings"
	"time"

	"github.com/autobrr/ezmaint/internal/settings"
)

const countdownLayout = "January 2, 2006"

var countdownInputLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

var funcs = template.FuncMap{
	"modeLabel":     ModeLabel,
	"modeIcon":      ModeIcon,
	"countdownDate": FormatCountdown,
	"paragraphs":    Paragraphs,
	"css":           func(s string) template.CSS { return template.CSS(s) },
	"hasSocial": func(rc RenderContext) bool {
		return rc.SocialFacebook != "" || rc.SocialTwitter != "" || rc.SocialInstagram != ""
	},
}

// ModeLabel returns the human readable name of a mode
func ModeLabel(mode string) string {
	switch mode {
	case settings.ModeConstruction:
		return "Under Construction"
	case settings.ModePaymentOverdue:
		return "Payment Required"
	default:
		return "Maintenance Mode"
	}
}

func ModeIcon(mode string) string {
	switch mode {
	case settings.ModeConstruction:
		return "🚧"
	case settings.ModePaymentOverdue:
		return "💳"
	default:
		return "🔧"
	}
}

// FormatCountdown renders a stored countdown date as "January 2, 2006".
// Values that do not parse are returned unchanged.
func FormatCountdown(value string) string {
	value = strings.TrimSpace(value)
	for _, layout := range countdownInputLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format(countdownLayout)
		}
	}
	return value
}

// Paragraphs escapes text and turns blank-line separated blocks into
// <p> elements and single newlines into <br>.
func Paragraphs(text string) template.HTML {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	var b strings.Builder
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.Trim(block, "\n")
		if strings.TrimSpace(block) == "" {
			continue
		}

		lines := strings.Split(block, "\n")
		for i, line := range lines {
			lines[i] = html.EscapeString(strings.TrimSpace(line))
		}

		b.WriteString("<p>")
		b.WriteString(strings.Join(lines, "<br>\n"))
		b.WriteString("</p>\n")
	}

	return template.HTML(b.String())
}
