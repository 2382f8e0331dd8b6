// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package templates

import (
	"strings"

	"github.com/autobrr/ezmaint/internal/settings"
)

const defaultSiteName = "Site"

// RenderContext is everything a maintenance page template may read.
// The field set is fixed; templates never see a missing value.
type RenderContext struct {
	Mode             string `json:"mode"`
	Title            string `json:"title"`
	Message          string `json:"message"`
	ThemeMode        string `json:"theme_mode"`
	BgColor          string `json:"bg_color"`
	TextColor        string `json:"text_color"`
	AccentColor      string `json:"accent_color"`
	LogoURL          string `json:"logo_url"`
	ShowLogo         bool   `json:"show_logo"`
	ShowSocial       bool   `json:"show_social"`
	ShowContact      bool   `json:"show_contact"`
	ContactEmail     string `json:"contact_email"`
	ContactPhone     string `json:"contact_phone"`
	SocialFacebook   string `json:"social_facebook"`
	SocialTwitter    string `json:"social_twitter"`
	SocialInstagram  string `json:"social_instagram"`
	CountdownEnabled bool   `json:"countdown_enabled"`
	CountdownDate    string `json:"countdown_date"`
	CustomCSS        string `json:"custom_css"`
	SiteName         string `json:"site_name"`
}

// BuildRenderContext maps a settings snapshot onto the render contract.
// Empty values that a template cannot work without are replaced by their
// defaults, so the result is usable for any snapshot including the zero value.
func BuildRenderContext(s settings.Snapshot) RenderContext {
	defaults := settings.DefaultSnapshot()

	or := func(value, fallback string) string {
		if strings.TrimSpace(value) == "" {
			return fallback
		}
		return value
	}

	return RenderContext{
		Mode:             or(s.Mode, defaults.Mode),
		Title:            or(s.Title, defaults.Title),
		Message:          or(s.Message, defaults.Message),
		ThemeMode:        or(s.ThemeMode, defaults.ThemeMode),
		BgColor:          or(s.BgColor, defaults.BgColor),
		TextColor:        or(s.TextColor, defaults.TextColor),
		AccentColor:      or(s.AccentColor, defaults.AccentColor),
		LogoURL:          s.LogoURL,
		ShowLogo:         s.ShowLogo,
		ShowSocial:       s.ShowSocial,
		ShowContact:      s.ShowContact,
		ContactEmail:     s.ContactEmail,
		ContactPhone:     s.ContactPhone,
		SocialFacebook:   s.SocialFacebook,
		SocialTwitter:    s.SocialTwitter,
		SocialInstagram:  s.SocialInstagram,
		CountdownEnabled: s.CountdownEnabled,
		CountdownDate:    s.CountdownDate,
		CustomCSS:        s.CustomCSS,
		SiteName:         or(s.SiteName, defaultSiteName),
	}
}
