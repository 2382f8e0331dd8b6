// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package settings

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/spf13/cast"
)

// ValidationError is returned when a value cannot be coerced for its key.
// Nothing is written when it is returned.
type ValidationError struct {
	Key    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid value for %s: %s", e.Key, e.Reason)
}

var (
	hexColorPattern   = regexp.MustCompile(`^#(?:[0-9a-f]{3}|[0-9a-f]{6})$`)
	tagPattern        = regexp.MustCompile(`(?s)<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	templateIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
)

// Coerce converts value into the stored representation for f.
// Output types: bool for KindBool, []string for KindSet, string otherwise.
func (f Field) Coerce(value any) (any, error) {
	invalid := func(reason string) error {
		return &ValidationError{Key: f.Key, Reason: reason}
	}

	switch f.Kind {
	case KindBool:
		b, err := toBool(value)
		if err != nil {
			return nil, invalid("expected a boolean")
		}
		return b, nil

	case KindSet:
		set, err := toSet(value)
		if err != nil {
			return nil, invalid("expected a list of strings")
		}
		return set, nil
	}

	s, err := toScalarString(value)
	if err != nil {
		return nil, invalid("expected a string")
	}

	switch f.Kind {
	case KindText:
		return SanitizeText(s), nil

	case KindMultiline:
		return sanitizeMultiline(s), nil

	case KindEnum:
		s = strings.ToLower(strings.TrimSpace(s))
		if !slices.Contains(f.Enum, s) {
			return nil, invalid("must be one of " + strings.Join(f.Enum, ", "))
		}
		return s, nil

	case KindColor:
		c, ok := SanitizeHexColor(s)
		if !ok {
			return nil, invalid("expected a hex color like #a3e635")
		}
		if c == "" {
			return f.defaultValue(), nil
		}
		return c, nil

	case KindURL:
		u, ok := SanitizeURL(s)
		if !ok {
			return nil, invalid("expected an http or https URL")
		}
		return u, nil

	case KindEmail:
		e, ok := SanitizeEmail(s)
		if !ok {
			return nil, invalid("expected an email address")
		}
		return e, nil

	case KindCSS:
		return sanitizeCSS(s), nil

	case KindTemplateID:
		s = strings.ToLower(SanitizeText(s))
		if !templateIDPattern.MatchString(s) {
			return nil, invalid("expected a template id")
		}
		return s, nil
	}

	return nil, invalid("unsupported setting")
}

// SanitizeText strips tags, collapses whitespace and trims
func SanitizeText(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "<", "")
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// sanitizeMultiline keeps line breaks; the page escapes the text when rendering
func sanitizeMultiline(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(s)
}

// sanitizeCSS drops '<' so the value cannot close the style element
func sanitizeCSS(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "<", ""))
}

// SanitizeHexColor accepts #rgb and #rrggbb. An empty input is valid and returns "".
func SanitizeHexColor(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", true
	}
	if !hexColorPattern.MatchString(s) {
		return "", false
	}
	return s, true
}

// SanitizeURL normalizes to an absolute http(s) URL. Scheme-less input gets http://,
// an empty input clears the value.
func SanitizeURL(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", true
	}

	switch {
	case strings.Contains(s, "://"):
	case strings.HasPrefix(s, "//"):
		s = "http:" + s
	default:
		s = "http://" + s
	}

	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}
	u.Scheme = scheme

	return u.String(), true
}

// SanitizeEmail keeps the bare address. An empty input clears the value.
func SanitizeEmail(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", true
	}

	addr, err := mail.ParseAddress(s)
	if err != nil {
		return "", false
	}
	return strings.ToLower(addr.Address), true
}

func toBool(value any) (bool, error) {
	switch v := value.(type) {
	case float64:
		return v != 0, nil
	case string:
		v = strings.ToLower(strings.TrimSpace(v))
		switch v {
		case "on", "yes":
			return true, nil
		case "off", "no", "":
			return false, nil
		}
		return cast.ToBoolE(v)
	}
	return cast.ToBoolE(value)
}

func toScalarString(value any) (string, error) {
	switch value.(type) {
	case []any, []string, map[string]any:
		return "", fmt.Errorf("unexpected %T", value)
	}
	return cast.ToStringE(value)
}

// toSet accepts a list or a newline/comma separated string.
// Elements are sanitized as text, empties and duplicates dropped.
func toSet(value any) ([]string, error) {
	var items []string

	switch v := value.(type) {
	case nil:
	case string:
		items = strings.FieldsFunc(v, func(r rune) bool {
			return r == '\n' || r == '\r' || r == ','
		})
	case []string:
		items = v
	case []any:
		items = make([]string, 0, len(v))
		for _, el := range v {
			item, err := toScalarString(el)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
	default:
		return nil, fmt.Errorf("expected a list, got %T", value)
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		item = SanitizeText(item)
		if item == "" || slices.Contains(out, item) {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}
