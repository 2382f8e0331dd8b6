// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package settings

import "slices"

// Snapshot is a complete, typed copy of every setting.
// Absent keys hold their defaults.
type Snapshot struct {
	Enabled          bool     `json:"enabled"`
	Mode             string   `json:"mode"`
	Template         string   `json:"template"`
	Title            string   `json:"title"`
	Message          string   `json:"message"`
	ThemeMode        string   `json:"theme_mode"`
	BgColor          string   `json:"bg_color"`
	TextColor        string   `json:"text_color"`
	AccentColor      string   `json:"accent_color"`
	LogoURL          string   `json:"logo_url"`
	ShowLogo         bool     `json:"show_logo"`
	CustomCSS        string   `json:"custom_css"`
	BypassRoles      []string `json:"bypass_roles"`
	BypassIPs        []string `json:"bypass_ips"`
	ShowContact      bool     `json:"show_contact"`
	ContactEmail     string   `json:"contact_email"`
	ContactPhone     string   `json:"contact_phone"`
	ShowSocial       bool     `json:"show_social"`
	SocialFacebook   string   `json:"social_facebook"`
	SocialTwitter    string   `json:"social_twitter"`
	SocialInstagram  string   `json:"social_instagram"`
	CountdownEnabled bool     `json:"countdown_enabled"`
	CountdownDate    string   `json:"countdown_date"`

	// SiteName comes from the configuration, not the options table
	SiteName string `json:"site_name"`
}

// Clone returns a copy that shares no slices with s
func (s Snapshot) Clone() Snapshot {
	s.BypassRoles = slices.Clone(s.BypassRoles)
	s.BypassIPs = slices.Clone(s.BypassIPs)
	return s
}

// DefaultSnapshot returns the snapshot of an empty store
func DefaultSnapshot() Snapshot {
	return snapshotFrom(func(f Field) any { return f.defaultValue() })
}

func snapshotFrom(value func(Field) any) Snapshot {
	str := func(key string) string {
		f := schemaIndex[key]
		if s, ok := value(f).(string); ok {
			return s
		}
		return f.Default.(string)
	}
	boolean := func(key string) bool {
		f := schemaIndex[key]
		if b, ok := value(f).(bool); ok {
			return b
		}
		return f.Default.(bool)
	}
	set := func(key string) []string {
		f := schemaIndex[key]
		if s, ok := value(f).([]string); ok && s != nil {
			return slices.Clone(s)
		}
		return slices.Clone(f.Default.([]string))
	}

	return Snapshot{
		Enabled:          boolean(KeyEnabled),
		Mode:             str(KeyMode),
		Template:         str(KeyTemplate),
		Title:            str(KeyTitle),
		Message:          str(KeyMessage),
		ThemeMode:        str(KeyThemeMode),
		BgColor:          str(KeyBgColor),
		TextColor:        str(KeyTextColor),
		AccentColor:      str(KeyAccentColor),
		LogoURL:          str(KeyLogoURL),
		ShowLogo:         boolean(KeyShowLogo),
		CustomCSS:        str(KeyCustomCSS),
		BypassRoles:      set(KeyBypassRoles),
		BypassIPs:        set(KeyBypassIPs),
		ShowContact:      boolean(KeyShowContact),
		ContactEmail:     str(KeyContactEmail),
		ContactPhone:     str(KeyContactPhone),
		ShowSocial:       boolean(KeyShowSocial),
		SocialFacebook:   str(KeySocialFacebook),
		SocialTwitter:    str(KeySocialTwitter),
		SocialInstagram:  str(KeySocialInstagram),
		CountdownEnabled: boolean(KeyCountdownEnabled),
		CountdownDate:    str(KeyCountdownDate),
	}
}
