// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/ezmaint/internal/auth"
	"github.com/autobrr/ezmaint/internal/models"
	"github.com/autobrr/ezmaint/internal/settings"
)

// newConfigDir writes a config.toml into a fresh directory and returns the directory
func newConfigDir(t *testing.T, extra string) string {
	t.Helper()

	dir := t.TempDir()
	content := "sessionSecret = \"test-secret\"\n" + extra
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0644))
	return dir
}

func openTestStack(t *testing.T, configDir, dataDir string) *stack {
	t.Helper()

	cfg, err := loadConfig(configDir, dataDir)
	require.NoError(t, err)

	st, err := openStack(context.Background(), cfg, "test")
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st
}

func TestRunCreateUserCommand(t *testing.T) {
	tests := []struct {
		name              string
		args              []string
		useDataDir        bool
		setupExistingUser bool
		expectedError     bool
		expectedRoles     []string
	}{
		{
			name:          "create_user_with_flags",
			args:          []string{"--username", "testuser", "--password", "testpassword123"},
			expectedRoles: []string{models.RoleAdministrator},
		},
		{
			name:          "create_user_custom_data_dir",
			args:          []string{"--username", "testuser2", "--password", "testpassword456"},
			useDataDir:    true,
			expectedRoles: []string{models.RoleAdministrator},
		},
		{
			name:          "custom_roles",
			args:          []string{"--username", "editor", "--password", "testpassword123", "--role", "Editor", "--role", "support"},
			expectedRoles: []string{"editor", "support"},
		},
		{
			name:              "duplicate_user",
			setupExistingUser: true,
			args:              []string{"--username", "existinguser", "--password", "password123"},
			expectedError:     true,
		},
		{
			name:          "password_too_short",
			args:          []string{"--username", "testuser", "--password", "short"},
			expectedError: true,
		},
		{
			name:          "blank_username",
			args:          []string{"--username", "   ", "--password", "testpassword123"},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configDir := newConfigDir(t, "")
			dataDir := ""
			if tt.useDataDir {
				dataDir = filepath.Join(t.TempDir(), "custom-data")
			}

			if tt.setupExistingUser {
				st := openTestStack(t, configDir, dataDir)
				_, err := auth.NewService("test-secret", st.users).CreateUser(context.Background(), "existinguser", "password123", nil)
				require.NoError(t, err)
				st.Close()
			}

			args := append([]string{"--config-dir", configDir}, tt.args...)
			if dataDir != "" {
				args = append(args, "--data-dir", dataDir)
			}

			output, err := execute(t, RunCreateUserCommand(), args...)
			if tt.expectedError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, output, "created successfully")

			if tt.useDataDir {
				_, err := os.Stat(filepath.Join(dataDir, "ezmaint.db"))
				require.NoError(t, err)
			}

			st := openTestStack(t, configDir, dataDir)
			user, err := st.users.GetByUsername(context.Background(), tt.args[1])
			require.NoError(t, err)
			assert.Equal(t, tt.expectedRoles, user.Roles)
		})
	}
}

func TestRunChangePasswordCommand(t *testing.T) {
	tests := []struct {
		name          string
		args          []string
		setupUser     bool
		expectedError bool
	}{
		{
			name:      "change_password_with_flags",
			setupUser: true,
			args:      []string{"--username", "testuser", "--new-password", "newpassword456"},
		},
		{
			name:          "no_database_exists",
			args:          []string{"--username", "testuser", "--new-password", "newpassword456"},
			expectedError: true,
		},
		{
			name:          "new_password_too_short",
			setupUser:     true,
			args:          []string{"--username", "testuser", "--new-password", "short"},
			expectedError: true,
		},
		{
			name:          "username_not_found",
			setupUser:     true,
			args:          []string{"--username", "nonexistentuser", "--new-password", "newpassword456"},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configDir := newConfigDir(t, "")

			if tt.setupUser {
				st := openTestStack(t, configDir, "")
				_, err := auth.NewService("test-secret", st.users).CreateUser(context.Background(), "testuser", "oldpassword123", nil)
				require.NoError(t, err)
				st.Close()
			}

			output, err := execute(t, RunChangePasswordCommand(), append([]string{"--config-dir", configDir}, tt.args...)...)
			if tt.expectedError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, output, "Password changed successfully for user 'testuser'")

			st := openTestStack(t, configDir, "")
			authService := auth.NewService("test-secret", st.users)
			_, err = authService.Login(context.Background(), "testuser", "newpassword456")
			assert.NoError(t, err)
			_, err = authService.Login(context.Background(), "testuser", "oldpassword123")
			assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
		})
	}
}

func TestRunGenerateAPIKeyCommand(t *testing.T) {
	configDir := newConfigDir(t, "")

	first, err := execute(t, RunGenerateAPIKeyCommand(), "--config-dir", configDir)
	require.NoError(t, err)
	second, err := execute(t, RunGenerateAPIKeyCommand(), "--config-dir", configDir)
	require.NoError(t, err)

	firstKey := strings.SplitN(first, "\n", 2)[0]
	secondKey := strings.SplitN(second, "\n", 2)[0]
	require.NotEmpty(t, firstKey)
	assert.NotEqual(t, firstKey, secondKey)
	assert.Contains(t, second, "will not be shown again")

	st := openTestStack(t, configDir, "")
	assert.ErrorIs(t, st.apiKeys.Validate(context.Background(), firstKey), models.ErrInvalidAPIKey)
	assert.NoError(t, st.apiKeys.Validate(context.Background(), secondKey))
}

func TestRunResetSettingsCommand(t *testing.T) {
	configDir := newConfigDir(t, "")

	st := openTestStack(t, configDir, "")
	ctx := context.Background()
	require.NoError(t, st.settings.Seed(ctx))
	require.NoError(t, st.settings.Set(ctx, settings.KeyTitle, "Custom title"))
	st.Close()

	_, err := execute(t, RunResetSettingsCommand(), "--config-dir", configDir)
	require.Error(t, err, "reset needs --yes")

	output, err := execute(t, RunResetSettingsCommand(), "--config-dir", configDir, "--yes")
	require.NoError(t, err)
	assert.Contains(t, output, "Settings reset to defaults")

	st = openTestStack(t, configDir, "")
	snap, err := st.settings.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Under Maintenance", snap.Title)
}

func fakeLicenseServer(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/activate" && body["license_key"] == "EZMP-GOOD-KEY-1234":
			fmt.Fprint(w, `{"success":true,"status":"active","plan":"pro","expires_at":"2030-01-01"}`)
		case r.URL.Path == "/activate":
			fmt.Fprint(w, `{"success":false,"message":"Invalid license key"}`)
		case r.URL.Path == "/verify":
			fmt.Fprint(w, `{"success":true,"status":"active","plan":"pro"}`)
		default:
			fmt.Fprint(w, `{"success":true}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunLicenseCommand(t *testing.T) {
	srv := fakeLicenseServer(t)
	configDir := newConfigDir(t, fmt.Sprintf("[license]\nserverUrl = %q\n", srv.URL))
	args := func(extra ...string) []string {
		return append(extra, "--config-dir", configDir)
	}

	_, err := execute(t, RunLicenseCommand(), args("activate", "--key", "EZMP-BAD", "--email", "owner@example.com")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid license key")

	output, err := execute(t, RunLicenseCommand(), args("activate", "--key", "EZMP-GOOD-KEY-1234", "--email", "owner@example.com")...)
	require.NoError(t, err)
	assert.Contains(t, output, "(plan: pro)")

	output, err = execute(t, RunLicenseCommand(), args("status")...)
	require.NoError(t, err)
	assert.Contains(t, output, "Active:         true")
	assert.Contains(t, output, "Expires:        2030-01-01T00:00:00Z")
	assert.NotContains(t, output, "EZMP-GOOD-KEY-1234")

	output, err = execute(t, RunLicenseCommand(), args("verify")...)
	require.NoError(t, err)
	assert.Contains(t, output, "License is active")

	output, err = execute(t, RunLicenseCommand(), args("deactivate")...)
	require.NoError(t, err)
	assert.Contains(t, output, "License deactivated successfully")

	output, err = execute(t, RunLicenseCommand(), args("status")...)
	require.NoError(t, err)
	assert.Contains(t, output, "License:        (none)")
	assert.Contains(t, output, "Active:         false")

	_, err = execute(t, RunLicenseCommand(), args("verify")...)
	assert.Error(t, err)
}
