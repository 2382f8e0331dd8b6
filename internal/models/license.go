// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	LicenseKeyOption       = OptionPrefix + "license_key"
	LicenseEmailOption     = OptionPrefix + "license_email"
	LicenseStatusOption    = OptionPrefix + "license_status"
	LicensePlanOption      = OptionPrefix + "license_plan"
	LicenseExpiresOption   = OptionPrefix + "license_expires"
	LicenseVerifiedOption  = OptionPrefix + "license_verified"
	LicenseLastCheckOption = OptionPrefix + "license_last_check"
	SiteIDOption           = OptionPrefix + "site_id"
)

// LicenseStatus constants
const (
	LicenseStatusActive  = "active"
	LicenseStatusInvalid = "invalid"
	LicenseStatusUnset   = "unset"
)

// Plan tiers
const (
	PlanFree     = "free"
	PlanPro      = "pro"
	PlanBusiness = "business"
)

// Features
const (
	FeatureBasicTemplates     = "basic_templates"
	FeatureColorCustomization = "color_customization"
	FeatureBasicAccessControl = "basic_access_control"
	FeaturePremiumTemplates   = "premium_templates"
	FeatureCountdownTimer     = "countdown_timer"
	FeatureSocialLinks        = "social_links"
	FeatureCustomCSS          = "custom_css"
	FeatureAPIAccess          = "api_access"
	FeatureWhiteLabel         = "white_label"
	FeaturePrioritySupport    = "priority_support"
	FeatureMultisite          = "multisite"
)

var freeFeatures = []string{
	FeatureBasicTemplates,
	FeatureColorCustomization,
	FeatureBasicAccessControl,
}

var proFeatures = append(slices.Clone(freeFeatures),
	FeaturePremiumTemplates,
	FeatureCountdownTimer,
	FeatureSocialLinks,
	FeatureCustomCSS,
	FeatureAPIAccess,
)

var businessFeatures = append(slices.Clone(proFeatures),
	FeatureWhiteLabel,
	FeaturePrioritySupport,
	FeatureMultisite,
)

var planFeatures = map[string][]string{
	PlanFree:     freeFeatures,
	PlanPro:      proFeatures,
	PlanBusiness: businessFeatures,
}

// PlanFeatures returns the features unlocked by plan. Unknown plans get nothing.
func PlanFeatures(plan string) []string {
	return slices.Clone(planFeatures[plan])
}

// HasFeature is a static lookup, free ⊂ pro ⊂ business
func HasFeature(plan, feature string) bool {
	return slices.Contains(planFeatures[plan], feature)
}

// NormalizePlan maps anything unknown to free
func NormalizePlan(plan string) string {
	plan = strings.ToLower(strings.TrimSpace(plan))
	if _, ok := planFeatures[plan]; ok {
		return plan
	}
	return PlanFree
}

// License is the single per-installation license record
type License struct {
	Key            string     `json:"licenseKey"`
	Email          string     `json:"email"`
	Status         string     `json:"status"`
	Plan           string     `json:"plan"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	LastVerifiedAt *time.Time `json:"lastVerifiedAt,omitempty"`
}

// IsValidOffline returns true if the cached active status may still be trusted:
// the last successful verification is younger than grace.
func (l *License) IsValidOffline(now time.Time, grace time.Duration) bool {
	if l.Status != LicenseStatusActive || l.LastVerifiedAt == nil {
		return false
	}
	return now.Sub(*l.LastVerifiedAt) < grace
}

// licenseOptions lists every option that makes up the record
var licenseOptions = []string{
	LicenseKeyOption,
	LicenseEmailOption,
	LicenseStatusOption,
	LicensePlanOption,
	LicenseExpiresOption,
	LicenseVerifiedOption,
}

// LicenseStore maps the license record onto ezmp_license_* options
type LicenseStore struct {
	options *OptionStore
}

func NewLicenseStore(options *OptionStore) *LicenseStore {
	return &LicenseStore{options: options}
}

// Load never fails for a missing record, it returns an unset license
func (s *LicenseStore) Load(ctx context.Context) (*License, error) {
	l := &License{Status: LicenseStatusUnset, Plan: PlanFree}

	stringFields := map[string]*string{
		LicenseKeyOption:    &l.Key,
		LicenseEmailOption:  &l.Email,
		LicenseStatusOption: &l.Status,
		LicensePlanOption:   &l.Plan,
	}
	for name, dest := range stringFields {
		if err := s.options.Get(ctx, name, dest); err != nil && !errors.Is(err, ErrOptionNotFound) {
			return nil, err
		}
	}

	timeFields := map[string]**time.Time{
		LicenseExpiresOption:  &l.ExpiresAt,
		LicenseVerifiedOption: &l.LastVerifiedAt,
	}
	for name, dest := range timeFields {
		var t *time.Time
		if err := s.options.Get(ctx, name, &t); err != nil && !errors.Is(err, ErrOptionNotFound) {
			return nil, err
		}
		*dest = t
	}

	if l.Status == "" {
		l.Status = LicenseStatusUnset
	}
	l.Plan = NormalizePlan(l.Plan)

	return l, nil
}

// Save writes the whole record atomically
func (s *LicenseStore) Save(ctx context.Context, l *License) error {
	return s.options.SetMany(ctx, map[string]any{
		LicenseKeyOption:      l.Key,
		LicenseEmailOption:    l.Email,
		LicenseStatusOption:   l.Status,
		LicensePlanOption:     NormalizePlan(l.Plan),
		LicenseExpiresOption:  l.ExpiresAt,
		LicenseVerifiedOption: l.LastVerifiedAt,
	})
}

// SetStatus overwrites only the cached status
func (s *LicenseStore) SetStatus(ctx context.Context, status string) error {
	return s.options.Set(ctx, LicenseStatusOption, status)
}

// Clear removes every license field
func (s *LicenseStore) Clear(ctx context.Context) error {
	return s.options.Delete(ctx, licenseOptions...)
}

func (s *LicenseStore) LastCheck(ctx context.Context) (time.Time, error) {
	var t time.Time
	if err := s.options.Get(ctx, LicenseLastCheckOption, &t); err != nil {
		if errors.Is(err, ErrOptionNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return t, nil
}

func (s *LicenseStore) SetLastCheck(ctx context.Context, t time.Time) error {
	return s.options.Set(ctx, LicenseLastCheckOption, t)
}

// SiteID returns the installation identifier, creating it with newID on first use
func (s *LicenseStore) SiteID(ctx context.Context, newID func() string) (string, error) {
	var id string
	err := s.options.Get(ctx, SiteIDOption, &id)
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && !errors.Is(err, ErrOptionNotFound) {
		return "", err
	}

	if _, err := s.options.Add(ctx, SiteIDOption, newID()); err != nil {
		return "", err
	}

	// another writer may have won the insert
	if err := s.options.Get(ctx, SiteIDOption, &id); err != nil {
		return "", err
	}
	return id, nil
}

// MaskLicenseKey keeps the first 8 characters for display and logs
func MaskLicenseKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:8] + "***"
}
