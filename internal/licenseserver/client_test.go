// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package licenseserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	client := NewClient("https://license.example.com/api/v1/", "ez-maintenance-pro")
	require.NotNil(t, client)

	assert.Equal(t, "https://license.example.com/api/v1", client.baseURL)
	assert.Equal(t, defaultRequestTimeout, client.httpClient.Timeout)
	assert.Equal(t, "0.0.0-dev", client.Versions().App)
	assert.Equal(t, APIVersion, client.Versions().API)

	client = NewClient("http://x", "p", WithTimeout(3*time.Second), WithAppVersion("v1.4"))
	assert.Equal(t, 3*time.Second, client.httpClient.Timeout)
	assert.Equal(t, "1.4.0", client.Versions().App)
}

func TestClient_Activate(t *testing.T) {
	var got map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/activate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": true, "plan": "Pro", "expires_at": "2026-01-01"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "ez-maintenance-pro", WithAppVersion("2.1.0"))
	reply, err := client.Activate(t.Context(), "ABC123", "a@b.com", "site-1")
	require.NoError(t, err)

	assert.True(t, reply.Success)
	assert.Equal(t, "pro", reply.Plan)
	require.NotNil(t, reply.ExpiresAt)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), *reply.ExpiresAt)

	assert.Equal(t, "ABC123", got["license_key"])
	assert.Equal(t, "a@b.com", got["email"])
	assert.Equal(t, "site-1", got["site_identifier"])
	assert.Equal(t, "ez-maintenance-pro", got["product_id"])
	versions, ok := got["versions"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "2.1.0", versions["app"])
	assert.NotEmpty(t, versions["go"])
}

func TestClient_Replies(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		unavailable bool
		want        *Reply
	}{
		{
			name:   "verify_active",
			status: http.StatusOK,
			body:   `{"success": true, "status": "active", "plan": "business", "expires_at": 1798761600}`,
			want:   &Reply{Success: true, Status: "active", Plan: "business"},
		},
		{
			name:   "rejected_with_message",
			status: http.StatusForbidden,
			body:   `{"success": false, "message": "License key has been revoked"}`,
			want:   &Reply{Success: false, Message: "License key has been revoked"},
		},
		{
			name:   "nested_message",
			status: http.StatusOK,
			body:   `{"success": false, "data": {"message": "Site limit reached"}}`,
			want:   &Reply{Success: false, Message: "Site limit reached"},
		},
		{
			name:        "server_error",
			status:      http.StatusBadGateway,
			body:        `{"success": false}`,
			unavailable: true,
		},
		{
			name:        "html_error_page",
			status:      http.StatusNotFound,
			body:        `<html>not found</html>`,
			unavailable: true,
		},
		{
			name:        "missing_success",
			status:      http.StatusOK,
			body:        `{"status": "active"}`,
			unavailable: true,
		},
		{
			name:        "string_success",
			status:      http.StatusOK,
			body:        `{"success": "true"}`,
			unavailable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			reply, err := NewClient(srv.URL, "p").Verify(t.Context(), "ABC123", "site-1")
			if tt.unavailable {
				assert.ErrorIs(t, err, ErrUnavailable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Success, reply.Success)
			assert.Equal(t, tt.want.Status, reply.Status)
			assert.Equal(t, tt.want.Plan, reply.Plan)
			assert.Equal(t, tt.want.Message, reply.Message)
		})
	}
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := NewClient(srv.URL, "p", WithTimeout(50*time.Millisecond))
	_, err := client.Deactivate(t.Context(), "ABC123", "site-1")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClient_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, "p").Verify(t.Context(), "ABC123", "site-1")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestParseExpiry(t *testing.T) {
	tests := []struct {
		body string
		want *time.Time
	}{
		{body: `{"success":true,"expires_at":"2026-01-01T10:00:00Z"}`, want: ptr(time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC))},
		{body: `{"success":true,"expires_at":"2026-01-01 10:00:00"}`, want: ptr(time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC))},
		{body: `{"success":true,"expires_at":""}`},
		{body: `{"success":true,"expires_at":null}`},
		{body: `{"success":true,"expires_at":"soon"}`},
		{body: `{"success":true,"expires_at":0}`},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			reply, err := parseReply([]byte(tt.body))
			require.NoError(t, err)
			if tt.want == nil {
				assert.Nil(t, reply.ExpiresAt)
				return
			}
			require.NotNil(t, reply.ExpiresAt)
			assert.True(t, tt.want.Equal(*reply.ExpiresAt))
		})
	}
}

func TestNormalizeVersion(t *testing.T) {
	tests := map[string]string{
		"v1.2":     "1.2.0",
		"1.4.3":    "1.4.3",
		"go1.24.1": "1.24.1",
		"dev":      "0.0.0-dev",
		"":         "0.0.0-unknown",
	}

	for input, want := range tests {
		assert.Equal(t, want, normalizeVersion(input), input)
	}
}

func ptr[T any](v T) *T {
	return &v
}
