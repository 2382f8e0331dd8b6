// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package settings is the typed view over the ezmp_ options.
// Every key has a kind that decides how input is coerced and a default that
// fills the snapshot when the key is absent.
package settings

import (
	"slices"
	"strings"
)

type Kind int

const (
	KindBool Kind = iota
	KindText
	KindMultiline
	KindEnum
	KindColor
	KindURL
	KindEmail
	KindCSS
	KindSet
	KindTemplateID
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindText:
		return "text"
	case KindMultiline:
		return "multiline"
	case KindEnum:
		return "enum"
	case KindColor:
		return "color"
	case KindURL:
		return "url"
	case KindEmail:
		return "email"
	case KindCSS:
		return "css"
	case KindSet:
		return "set"
	case KindTemplateID:
		return "template"
	default:
		return "unknown"
	}
}

// Modes
const (
	ModeMaintenance    = "maintenance"
	ModeConstruction   = "construction"
	ModePaymentOverdue = "payment_overdue"
)

// Keys
const (
	KeyEnabled          = "enabled"
	KeyMode             = "mode"
	KeyTemplate         = "template"
	KeyTitle            = "title"
	KeyMessage          = "message"
	KeyThemeMode        = "theme_mode"
	KeyBgColor          = "bg_color"
	KeyTextColor        = "text_color"
	KeyAccentColor      = "accent_color"
	KeyLogoURL          = "logo_url"
	KeyShowLogo         = "show_logo"
	KeyCustomCSS        = "custom_css"
	KeyBypassRoles      = "bypass_roles"
	KeyBypassIPs        = "bypass_ips"
	KeyShowContact      = "show_contact"
	KeyContactEmail     = "contact_email"
	KeyContactPhone     = "contact_phone"
	KeyShowSocial       = "show_social"
	KeySocialFacebook   = "social_facebook"
	KeySocialTwitter    = "social_twitter"
	KeySocialInstagram  = "social_instagram"
	KeyCountdownEnabled = "countdown_enabled"
	KeyCountdownDate    = "countdown_date"
)

const DefaultTemplate = "modern"

// Field describes one setting
type Field struct {
	Key     string
	Kind    Kind
	Default any
	Enum    []string
}

var Modes = []string{ModeMaintenance, ModeConstruction, ModePaymentOverdue}
var ThemeModes = []string{"dark", "light"}

// Schema lists every setting in display order
var Schema = []Field{
	{Key: KeyEnabled, Kind: KindBool, Default: false},
	{Key: KeyMode, Kind: KindEnum, Default: ModeMaintenance, Enum: Modes},
	{Key: KeyTemplate, Kind: KindTemplateID, Default: DefaultTemplate},
	{Key: KeyTitle, Kind: KindText, Default: "Under Maintenance"},
	{Key: KeyMessage, Kind: KindMultiline, Default: "We're currently performing scheduled maintenance. We'll be back shortly!"},
	{Key: KeyThemeMode, Kind: KindEnum, Default: "dark", Enum: ThemeModes},
	{Key: KeyBgColor, Kind: KindColor, Default: "#0b0f12"},
	{Key: KeyTextColor, Kind: KindColor, Default: "#ffffff"},
	{Key: KeyAccentColor, Kind: KindColor, Default: "#a3e635"},
	{Key: KeyLogoURL, Kind: KindURL, Default: ""},
	{Key: KeyShowLogo, Kind: KindBool, Default: true},
	{Key: KeyCustomCSS, Kind: KindCSS, Default: ""},
	{Key: KeyBypassRoles, Kind: KindSet, Default: []string{"administrator"}},
	{Key: KeyBypassIPs, Kind: KindSet, Default: []string{}},
	{Key: KeyShowContact, Kind: KindBool, Default: false},
	// default filled from the configured admin email
	{Key: KeyContactEmail, Kind: KindEmail, Default: ""},
	{Key: KeyContactPhone, Kind: KindText, Default: ""},
	{Key: KeyShowSocial, Kind: KindBool, Default: false},
	{Key: KeySocialFacebook, Kind: KindText, Default: ""},
	{Key: KeySocialTwitter, Kind: KindText, Default: ""},
	{Key: KeySocialInstagram, Kind: KindText, Default: ""},
	{Key: KeyCountdownEnabled, Kind: KindBool, Default: false},
	{Key: KeyCountdownDate, Kind: KindText, Default: ""},
}

var schemaIndex = func() map[string]Field {
	m := make(map[string]Field, len(Schema))
	for _, f := range Schema {
		m[f.Key] = f
	}
	return m
}()

// Lookup returns the field for key
func Lookup(key string) (Field, bool) {
	f, ok := schemaIndex[key]
	return f, ok
}

// Keys returns every key in schema order
func Keys() []string {
	keys := make([]string, len(Schema))
	for i, f := range Schema {
		keys[i] = f.Key
	}
	return keys
}

// kindForName derives the kind from the key-name convention:
// *color, *url and *email keys are validated as such.
func kindForName(key string) (Kind, bool) {
	switch {
	case strings.HasSuffix(key, "color"):
		return KindColor, true
	case strings.HasSuffix(key, "url"):
		return KindURL, true
	case strings.HasSuffix(key, "email"):
		return KindEmail, true
	}
	return 0, false
}

func (f Field) defaultValue() any {
	if set, ok := f.Default.([]string); ok {
		return slices.Clone(set)
	}
	return f.Default
}
