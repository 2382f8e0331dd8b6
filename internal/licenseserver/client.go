// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package licenseserver talks to the remote licensing service.
package licenseserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

const (
	defaultRequestTimeout = 15 * time.Second
	maxReplySize          = 1 << 20

	// APIVersion of the control API reported to the licensing service
	APIVersion = "1.0.0"
)

// ErrUnavailable covers transport failures, timeouts, 5xx replies and replies
// that cannot be understood. Callers treat it as "could not reach the server".
var ErrUnavailable = errors.New("license server unavailable")

// Versions is sent on activation so the service can track installs
type Versions struct {
	App string `json:"app"`
	Go  string `json:"go"`
	API string `json:"api"`
}

// Reply is the parsed answer of the licensing service
type Reply struct {
	Success   bool       `json:"success"`
	Status    string     `json:"status,omitempty"`
	Plan      string     `json:"plan,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Message   string     `json:"message,omitempty"`
}

type Client struct {
	baseURL    string
	productID  string
	httpClient *http.Client
	versions   Versions
}

type Option func(*Client)

// WithTimeout bounds every request to the licensing service
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithAppVersion(version string) Option {
	return func(c *Client) {
		c.versions.App = normalizeVersion(version)
	}
}

func NewClient(baseURL, productID string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		productID:  productID,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		versions: Versions{
			App: normalizeVersion("dev"),
			Go:  normalizeVersion(runtime.Version()),
			API: APIVersion,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Client) Versions() Versions {
	return c.versions
}

type activateRequest struct {
	LicenseKey     string   `json:"license_key"`
	Email          string   `json:"email"`
	SiteIdentifier string   `json:"site_identifier"`
	ProductID      string   `json:"product_id"`
	Versions       Versions `json:"versions"`
}

type keyRequest struct {
	LicenseKey     string `json:"license_key"`
	SiteIdentifier string `json:"site_identifier"`
	ProductID      string `json:"product_id"`
}

func (c *Client) Activate(ctx context.Context, licenseKey, email, siteID string) (*Reply, error) {
	return c.post(ctx, "/activate", activateRequest{
		LicenseKey:     licenseKey,
		Email:          email,
		SiteIdentifier: siteID,
		ProductID:      c.productID,
		Versions:       c.versions,
	})
}

// Deactivate is best-effort, callers usually only log the error
func (c *Client) Deactivate(ctx context.Context, licenseKey, siteID string) (*Reply, error) {
	return c.post(ctx, "/deactivate", keyRequest{
		LicenseKey:     licenseKey,
		SiteIdentifier: siteID,
		ProductID:      c.productID,
	})
}

func (c *Client) Verify(ctx context.Context, licenseKey, siteID string) (*Reply, error) {
	return c.post(ctx, "/verify", keyRequest{
		LicenseKey:     licenseKey,
		SiteIdentifier: siteID,
		ProductID:      c.productID,
	})
}

func (c *Client) post(ctx context.Context, path string, payload any) (*Reply, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "ezmaint/"+c.versions.App)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read reply: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrUnavailable, path, resp.StatusCode)
	}

	reply, err := parseReply(data)
	if err != nil {
		log.Debug().Err(err).Int("status", resp.StatusCode).Str("path", path).Msg("Unusable reply from license server")
		return nil, err
	}

	return reply, nil
}

// parseReply reads the reply leniently: only a boolean "success" is required
func parseReply(data []byte) (*Reply, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: reply is not JSON", ErrUnavailable)
	}

	result := gjson.ParseBytes(data)

	success := result.Get("success")
	if success.Type != gjson.True && success.Type != gjson.False {
		return nil, fmt.Errorf("%w: reply has no success flag", ErrUnavailable)
	}

	reply := &Reply{
		Success: success.Bool(),
		Status:  strings.ToLower(result.Get("status").String()),
		Plan:    strings.ToLower(result.Get("plan").String()),
		Message: firstString(result, "message", "data.message", "error"),
	}

	if expires := result.Get("expires_at"); expires.Exists() {
		reply.ExpiresAt = parseExpiry(expires)
	}

	return reply, nil
}

func firstString(result gjson.Result, paths ...string) string {
	for _, path := range paths {
		if v := result.Get(path); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

var expiryLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseExpiry(v gjson.Result) *time.Time {
	switch v.Type {
	case gjson.Number:
		if v.Int() <= 0 {
			return nil
		}
		t := time.Unix(v.Int(), 0).UTC()
		return &t
	case gjson.String:
		s := strings.TrimSpace(v.String())
		for _, layout := range expiryLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				t = t.UTC()
				return &t
			}
		}
		if s != "" {
			log.Debug().Str("expires_at", s).Msg("Unrecognized license expiry format")
		}
	}
	return nil
}

// normalizeVersion turns "v1.2", "go1.24.1" or "dev" into a semver string
func normalizeVersion(version string) string {
	version = strings.TrimPrefix(strings.TrimSpace(version), "go")

	v, err := semver.NewVersion(version)
	if err != nil {
		return "0.0.0-" + sanitizePrerelease(version)
	}
	return v.String()
}

func sanitizePrerelease(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
