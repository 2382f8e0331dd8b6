// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/ezmaint/internal/licenseserver"
	"github.com/autobrr/ezmaint/internal/models"
	"github.com/autobrr/ezmaint/internal/settings"
)

const (
	DefaultGracePeriod   = 7 * 24 * time.Hour
	DefaultCheckInterval = 24 * time.Hour

	schedulerTick = time.Hour
)

// LicenseClient is the remote licensing service
type LicenseClient interface {
	Activate(ctx context.Context, licenseKey, email, siteID string) (*licenseserver.Reply, error)
	Deactivate(ctx context.Context, licenseKey, siteID string) (*licenseserver.Reply, error)
	Verify(ctx context.Context, licenseKey, siteID string) (*licenseserver.Reply, error)
}

// LicenseResult is what callers get back instead of transport errors
type LicenseResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Plan    string `json:"plan,omitempty"`
}

// LicenseInfo is the display form of the license record
type LicenseInfo struct {
	LicenseKey     string     `json:"licenseKey"`
	Email          string     `json:"email"`
	Status         string     `json:"status"`
	Plan           string     `json:"plan"`
	EffectivePlan  string     `json:"effectivePlan"`
	Active         bool       `json:"active"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	LastVerifiedAt *time.Time `json:"lastVerifiedAt,omitempty"`
	Features       []string   `json:"features"`
}

type LicenseOptions struct {
	GracePeriod   time.Duration
	CheckInterval time.Duration
	Now           func() time.Time
	NewSiteID     func() string
}

// LicenseService owns the license record: activation, deactivation and
// periodic verification with an offline grace period.
type LicenseService struct {
	store         *models.LicenseStore
	audit         *models.AuditLogStore
	client        LicenseClient
	gracePeriod   time.Duration
	checkInterval time.Duration
	now           func() time.Time
	newSiteID     func() string
}

func NewLicenseService(store *models.LicenseStore, audit *models.AuditLogStore, client LicenseClient, opts LicenseOptions) *LicenseService {
	s := &LicenseService{
		store:         store,
		audit:         audit,
		client:        client,
		gracePeriod:   opts.GracePeriod,
		checkInterval: opts.CheckInterval,
		now:           opts.Now,
		newSiteID:     opts.NewSiteID,
	}

	if s.gracePeriod <= 0 {
		s.gracePeriod = DefaultGracePeriod
	}
	if s.checkInterval <= 0 {
		s.checkInterval = DefaultCheckInterval
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newSiteID == nil {
		s.newSiteID = uuid.NewString
	}

	return s
}

// Activate registers the key with the licensing service and stores the record.
// Nothing is persisted unless the service confirms.
func (s *LicenseService) Activate(ctx context.Context, licenseKey, email string) LicenseResult {
	licenseKey = settings.SanitizeText(licenseKey)
	if licenseKey == "" {
		return LicenseResult{Message: "License key is required"}
	}

	email, ok := settings.SanitizeEmail(email)
	if !ok {
		return LicenseResult{Message: "Please enter a valid email address"}
	}

	siteID, err := s.store.SiteID(ctx, s.newSiteID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load site identifier")
		return LicenseResult{Message: "License activation failed"}
	}

	reply, err := s.client.Activate(ctx, licenseKey, email, siteID)
	if err != nil {
		log.Error().Err(err).Str("licenseKey", models.MaskLicenseKey(licenseKey)).Msg("Failed to reach license server")
		return LicenseResult{Message: "Connection error: " + err.Error()}
	}

	if !reply.Success {
		log.Warn().Str("licenseKey", models.MaskLicenseKey(licenseKey)).Str("reason", reply.Message).Msg("License activation rejected")
		if reply.Message != "" {
			return LicenseResult{Message: reply.Message}
		}
		return LicenseResult{Message: "License activation failed"}
	}

	now := s.now()
	plan := models.NormalizePlan(reply.Plan)
	record := &models.License{
		Key:            licenseKey,
		Email:          email,
		Status:         models.LicenseStatusActive,
		Plan:           plan,
		ExpiresAt:      reply.ExpiresAt,
		LastVerifiedAt: &now,
	}

	if err := s.store.Save(ctx, record); err != nil {
		log.Error().Err(err).Msg("Failed to store license")
		return LicenseResult{Message: "License activation failed"}
	}

	if err := s.store.SetLastCheck(ctx, now); err != nil {
		log.Warn().Err(err).Msg("Failed to record license check time")
	}

	s.appendAudit(ctx, models.AuditLicenseActivated, map[string]string{
		"license_key": redactForAudit(licenseKey),
		"plan":        plan,
	})

	log.Info().Str("licenseKey", models.MaskLicenseKey(licenseKey)).Str("plan", plan).Msg("License activated")

	return LicenseResult{Success: true, Message: "License activated successfully!", Plan: plan}
}

// Deactivate tells the licensing service (best-effort) and always clears the
// local record, whatever the remote outcome.
func (s *LicenseService) Deactivate(ctx context.Context) LicenseResult {
	record, err := s.store.Load(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load license, clearing anyway")
		record = &models.License{}
	}

	if record.Key == "" {
		if err := s.store.Clear(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to clear license")
		}
		return LicenseResult{Message: "No license key found"}
	}

	siteID, err := s.store.SiteID(ctx, s.newSiteID)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load site identifier")
	}

	if _, err := s.client.Deactivate(ctx, record.Key, siteID); err != nil {
		log.Warn().Err(err).Str("licenseKey", models.MaskLicenseKey(record.Key)).Msg("Remote license deactivation failed, clearing locally")
	}

	if err := s.store.Clear(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to clear license")
		return LicenseResult{Message: "Could not clear license"}
	}

	s.appendAudit(ctx, models.AuditLicenseDeactivated, map[string]string{
		"license_key": redactForAudit(record.Key),
	})

	log.Info().Str("licenseKey", models.MaskLicenseKey(record.Key)).Msg("License deactivated")

	return LicenseResult{Success: true, Message: "License deactivated successfully"}
}

// Verify re-checks the stored key. When the service cannot be reached the
// cached active status is kept while the last successful check is younger
// than the grace period; after that the license is marked invalid.
func (s *LicenseService) Verify(ctx context.Context) bool {
	record, err := s.store.Load(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load license")
		return false
	}

	if record.Key == "" {
		return false
	}

	siteID, err := s.store.SiteID(ctx, s.newSiteID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load site identifier")
		return record.IsValidOffline(s.now(), s.gracePeriod)
	}

	reply, err := s.client.Verify(ctx, record.Key, siteID)
	if err != nil {
		return s.verifyOffline(ctx, record, err)
	}

	if !reply.Success {
		log.Warn().Str("licenseKey", models.MaskLicenseKey(record.Key)).Str("reason", reply.Message).Msg("License rejected by license server")
		if err := s.store.SetStatus(ctx, models.LicenseStatusInvalid); err != nil {
			log.Error().Err(err).Msg("Failed to store license status")
		}
		return false
	}

	now := s.now()
	status := reply.Status
	if status == "" {
		status = models.LicenseStatusActive
	}
	if status != models.LicenseStatusActive {
		status = models.LicenseStatusInvalid
	}

	record.Status = status
	record.Plan = models.NormalizePlan(reply.Plan)
	record.ExpiresAt = reply.ExpiresAt
	record.LastVerifiedAt = &now

	if err := s.store.Save(ctx, record); err != nil {
		log.Error().Err(err).Msg("Failed to store verified license")
	}

	log.Debug().Str("status", status).Str("plan", record.Plan).Msg("License verified")

	return status == models.LicenseStatusActive
}

func (s *LicenseService) verifyOffline(ctx context.Context, record *models.License, cause error) bool {
	if record.IsValidOffline(s.now(), s.gracePeriod) {
		log.Warn().Err(cause).Time("lastVerified", *record.LastVerifiedAt).Msg("License server unreachable, using cached status")
		return true
	}

	log.Warn().Err(cause).Msg("License server unreachable and grace period expired")

	if record.Status == models.LicenseStatusActive {
		if err := s.store.SetStatus(ctx, models.LicenseStatusInvalid); err != nil {
			log.Error().Err(err).Msg("Failed to store license status")
		}
		s.appendAudit(ctx, models.AuditLicenseGraceExpired, map[string]string{
			"license_key": redactForAudit(record.Key),
		})
	}

	return false
}

// IsActive reads the cached record only. The grace rule is part of the
// effective status: a stale active record is not active.
func (s *LicenseService) IsActive(ctx context.Context) bool {
	record, err := s.store.Load(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load license")
		return false
	}
	return record.IsValidOffline(s.now(), s.gracePeriod)
}

// HasFeature is a static plan lookup
func (s *LicenseService) HasFeature(plan, feature string) bool {
	return models.HasFeature(plan, feature)
}

// EffectivePlan is the stored plan while the license is active, free otherwise
func (s *LicenseService) EffectivePlan(ctx context.Context) string {
	record, err := s.store.Load(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load license")
		return models.PlanFree
	}
	if !record.IsValidOffline(s.now(), s.gracePeriod) {
		return models.PlanFree
	}
	return record.Plan
}

// Entitled reports whether the effective plan unlocks feature
func (s *LicenseService) Entitled(ctx context.Context, feature string) bool {
	return models.HasFeature(s.EffectivePlan(ctx), feature)
}

func (s *LicenseService) Info(ctx context.Context) (*LicenseInfo, error) {
	record, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	active := record.IsValidOffline(s.now(), s.gracePeriod)
	effective := models.PlanFree
	if active {
		effective = record.Plan
	}

	info := &LicenseInfo{
		Email:          record.Email,
		Status:         record.Status,
		Plan:           record.Plan,
		EffectivePlan:  effective,
		Active:         active,
		ExpiresAt:      record.ExpiresAt,
		LastVerifiedAt: record.LastVerifiedAt,
		Features:       models.PlanFeatures(effective),
	}
	if record.Key != "" {
		info.LicenseKey = models.MaskLicenseKey(record.Key)
	}

	return info, nil
}

// CheckDaily verifies at most once per check interval. Returns true when a
// verification ran.
func (s *LicenseService) CheckDaily(ctx context.Context) bool {
	last, err := s.store.LastCheck(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read last license check")
		return false
	}

	now := s.now()
	if !last.IsZero() && now.Sub(last) < s.checkInterval {
		return false
	}

	if err := s.store.SetLastCheck(ctx, now); err != nil {
		log.Error().Err(err).Msg("Failed to record license check time")
		return false
	}

	active := s.Verify(ctx)
	log.Debug().Bool("active", active).Msg("Scheduled license check finished")

	return true
}

// Run checks once at start and then every hour until ctx is done
func (s *LicenseService) Run(ctx context.Context) {
	ticker := time.NewTicker(schedulerTick)
	defer ticker.Stop()

	s.CheckDaily(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CheckDaily(ctx)
		}
	}
}

func (s *LicenseService) appendAudit(ctx context.Context, action string, details any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Append(ctx, action, details, ActorFrom(ctx)); err != nil {
		log.Error().Err(err).Str("action", action).Msg("Failed to write audit log")
	}
}

// redactForAudit keeps at most the first 8 characters and never more than
// half of the key
func redactForAudit(key string) string {
	return key[:min(8, len(key)/2)] + "..."
}
