// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/autobrr/ezmaint/internal/database"
	"github.com/autobrr/ezmaint/internal/licenseserver"
	"github.com/autobrr/ezmaint/internal/models"
	"github.com/autobrr/ezmaint/internal/settings"
)

type testEnv struct {
	db       *database.DB
	options  *models.OptionStore
	licenses *models.LicenseStore
	audit    *models.AuditLogStore
	settings *settings.Store
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	options := models.NewOptionStore(db.Conn())
	store, err := settings.NewStore(options, settings.Options{SiteName: "Test"})
	require.NoError(t, err)
	t.Cleanup(store.Close)

	return &testEnv{
		db:       db,
		options:  options,
		licenses: models.NewLicenseStore(options),
		audit:    models.NewAuditLogStore(db.Conn()),
		settings: store,
	}
}

func (e *testEnv) actions(t *testing.T) []string {
	t.Helper()
	entries, err := e.audit.Recent(t.Context(), 100)
	require.NoError(t, err)

	var actions []string
	for i := len(entries) - 1; i >= 0; i-- {
		actions = append(actions, entries[i].Action)
	}
	return actions
}

// fakeLicenseClient returns canned replies and counts calls
type fakeLicenseClient struct {
	mu    sync.Mutex
	reply *licenseserver.Reply
	err   error
	calls map[string]int
}

func (f *fakeLicenseClient) record(op string) (*licenseserver.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[op]++
	return f.reply, f.err
}

func (f *fakeLicenseClient) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeLicenseClient) Activate(ctx context.Context, licenseKey, email, siteID string) (*licenseserver.Reply, error) {
	return f.record("activate")
}

func (f *fakeLicenseClient) Deactivate(ctx context.Context, licenseKey, siteID string) (*licenseserver.Reply, error) {
	return f.record("deactivate")
}

func (f *fakeLicenseClient) Verify(ctx context.Context, licenseKey, siteID string) (*licenseserver.Reply, error) {
	return f.record("verify")
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
