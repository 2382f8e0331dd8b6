// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	apimiddleware "github.com/autobrr/ezmaint/internal/api/middleware"
	"github.com/autobrr/ezmaint/internal/auth"
	"github.com/autobrr/ezmaint/internal/config"
	"github.com/autobrr/ezmaint/internal/database"
	"github.com/autobrr/ezmaint/internal/domain"
	"github.com/autobrr/ezmaint/internal/gate"
	"github.com/autobrr/ezmaint/internal/licenseserver"
	"github.com/autobrr/ezmaint/internal/metrics"
	"github.com/autobrr/ezmaint/internal/models"
	"github.com/autobrr/ezmaint/internal/proxy"
	"github.com/autobrr/ezmaint/internal/services"
	"github.com/autobrr/ezmaint/internal/settings"
	"github.com/autobrr/ezmaint/internal/templates"
	"github.com/autobrr/ezmaint/internal/web/swagger"
)

const adminPath = "/_ezmaint"

type stubLicenseClient struct{}

func (stubLicenseClient) Activate(context.Context, string, string, string) (*licenseserver.Reply, error) {
	return &licenseserver.Reply{Success: true, Status: models.LicenseStatusActive, Plan: models.PlanPro}, nil
}

func (stubLicenseClient) Deactivate(context.Context, string, string) (*licenseserver.Reply, error) {
	return &licenseserver.Reply{Success: true}, nil
}

func (stubLicenseClient) Verify(context.Context, string, string) (*licenseserver.Reply, error) {
	return &licenseserver.Reply{Success: true, Status: models.LicenseStatusActive, Plan: models.PlanPro}, nil
}

type testServer struct {
	router http.Handler
	auth   *auth.Service
	apiKey string
}

func newTestServer(t *testing.T, rateLimit domain.ControlRateLimit) *testServer {
	t.Helper()
	ctx := context.Background()

	db, err := database.New(filepath.Join(t.TempDir(), "ezmaint.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	options := models.NewOptionStore(db.Conn())
	audit := models.NewAuditLogStore(db.Conn())
	apiKeys := models.NewAPIKeyStore(options)

	store, err := settings.NewStore(options, settings.Options{SiteName: "Example"})
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.Seed(ctx))

	authService := auth.NewService("test-secret", models.NewUserStore(db.Conn()))
	license := services.NewLicenseService(models.NewLicenseStore(options), audit, stubLicenseClient{}, services.LicenseOptions{})
	registry := templates.NewRegistry()
	metricsManager := metrics.NewManager(store, license)

	page := gate.NewMiddleware(gate.NewEngine(), store, registry,
		gate.WithIdentity(authService.SessionRoles),
		gate.WithEntitlements(license),
		gate.WithRecorder(metricsManager),
	)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "upstream ok")
	}))
	t.Cleanup(upstream.Close)

	site, err := proxy.NewHandler(upstream.URL)
	require.NoError(t, err)

	docs, err := swagger.NewHandler(adminPath)
	require.NoError(t, err)

	apiKey, err := apiKeys.Rotate(ctx)
	require.NoError(t, err)

	router := NewRouter(&Dependencies{
		Config: &config.AppConfig{Config: &domain.Config{
			AdminPath:        adminPath,
			ControlRateLimit: rateLimit,
		}},
		DB:             db,
		AuthService:    authService,
		APIKeyStore:    apiKeys,
		Settings:       store,
		Control:        services.NewControlService(store, audit),
		License:        license,
		Templates:      registry,
		Gate:           page,
		Upstream:       site,
		MetricsManager: metricsManager,
		Swagger:        docs,
	})

	return &testServer{router: router, auth: authService, apiKey: apiKey}
}

func (s *testServer) do(t *testing.T, method, path, body string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "203.0.113.7:5555"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if mutate != nil {
		mutate(req)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) withKey(req *http.Request) {
	req.Header.Set(apimiddleware.APIKeyHeader, s.apiKey)
}

// TestAllEndpointsDocumented ensures every API route is documented in openapi.yaml
func TestAllEndpointsDocumented(t *testing.T) {
	srv := newTestServer(t, domain.ControlRateLimit{})

	var actualRoutes []Route
	walkFunc := func(method string, path string, handler http.Handler, middlewares ...func(http.Handler) http.Handler) error {
		actualRoutes = append(actualRoutes, Route{Method: method, Path: path})
		return nil
	}
	require.NoError(t, chi.Walk(srv.router.(*chi.Mux), walkFunc))

	spec, err := swagger.GetOpenAPISpec()
	require.NoError(t, err)

	var openapiSpec map[string]any
	require.NoError(t, yaml.Unmarshal(spec, &openapiSpec))

	documentedPaths := make(map[string]map[string]bool)
	if paths, ok := openapiSpec["paths"].(map[string]any); ok {
		for path, pathItem := range paths {
			documentedPaths[path] = make(map[string]bool)
			if methods, ok := pathItem.(map[string]any); ok {
				for method := range methods {
					switch method {
					case "get", "post", "put", "delete", "patch":
						documentedPaths[path][strings.ToUpper(method)] = true
					}
				}
			}
		}
	}

	var undocumented []string
	apiRoutes := 0
	for _, route := range actualRoutes {
		path := strings.TrimPrefix(route.Path, adminPath)
		if !strings.HasPrefix(path, "/api/") {
			continue
		}

		if path == "/api/docs" || path == "/api/openapi.json" {
			continue
		}
		apiRoutes++

		// chi keeps the trailing slash of mounted "/" routes
		path = strings.TrimSuffix(path, "/")

		if !documentedPaths[path][route.Method] {
			undocumented = append(undocumented, route.Method+" "+path)
		}
	}

	assert.Empty(t, undocumented, "Please add these endpoints to internal/web/swagger/openapi.yaml")
	assert.Equal(t, countDocumentedEndpoints(documentedPaths), apiRoutes, "OpenAPI documents endpoints the router does not serve")
}

// Route represents a single route
type Route struct {
	Method string
	Path   string
}

func countDocumentedEndpoints(paths map[string]map[string]bool) int {
	count := 0
	for _, methods := range paths {
		count += len(methods)
	}
	return count
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, domain.ControlRateLimit{})

	rec := srv.do(t, http.MethodGet, adminPath+"/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestControlRequiresCredentials(t *testing.T) {
	srv := newTestServer(t, domain.ControlRateLimit{})

	tests := []struct {
		name   string
		mutate func(*http.Request)
		want   int
	}{
		{name: "no_credentials", want: http.StatusUnauthorized},
		{
			name:   "wrong_key",
			mutate: func(r *http.Request) { r.Header.Set(apimiddleware.APIKeyHeader, "nope") },
			want:   http.StatusUnauthorized,
		},
		{name: "valid_key", mutate: srv.withKey, want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(t, http.MethodGet, adminPath+"/api/v1/status", "", tt.mutate)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestAPIKeyRotationNeedsSession(t *testing.T) {
	srv := newTestServer(t, domain.ControlRateLimit{})

	rec := srv.do(t, http.MethodPost, adminPath+"/api/v1/api-key", "", srv.withKey)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestActivateInterceptsSite(t *testing.T) {
	srv := newTestServer(t, domain.ControlRateLimit{})

	rec := srv.do(t, http.MethodGet, "/shop", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "upstream ok", rec.Body.String())

	rec = srv.do(t, http.MethodPost, adminPath+"/api/v1/activate", `{"mode":"construction","message":"Back soon"}`, srv.withKey)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var activated struct {
		Success bool            `json:"success"`
		Status  services.Status `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &activated))
	assert.True(t, activated.Success)
	assert.True(t, activated.Status.Enabled)
	assert.Equal(t, settings.ModeConstruction, activated.Status.Mode)

	rec = srv.do(t, http.MethodGet, "/shop", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "3600", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "Back soon")

	// the admin surface is never gated
	rec = srv.do(t, http.MethodGet, adminPath+"/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodPost, adminPath+"/api/v1/deactivate", "", srv.withKey)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodGet, "/shop", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestActivateRejectsUnknownMode(t *testing.T) {
	srv := newTestServer(t, domain.ControlRateLimit{})

	rec := srv.do(t, http.MethodPost, adminPath+"/api/v1/activate", `{"mode":"party"}`, srv.withKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestActivateModeIsCaseInsensitive(t *testing.T) {
	tests := []struct {
		mode string
		want string
	}{
		{mode: "Construction", want: settings.ModeConstruction},
		{mode: " PAYMENT_OVERDUE ", want: settings.ModePaymentOverdue},
		{mode: "maintenance", want: settings.ModeMaintenance},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			srv := newTestServer(t, domain.ControlRateLimit{})

			rec := srv.do(t, http.MethodPost, adminPath+"/api/v1/activate", `{"mode":"`+tt.mode+`"}`, srv.withKey)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var activated struct {
				Status services.Status `json:"status"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &activated))
			assert.Equal(t, tt.want, activated.Status.Mode)
		})
	}
}

func TestAdminSessionBypassesGate(t *testing.T) {
	srv := newTestServer(t, domain.ControlRateLimit{})

	_, err := srv.auth.CreateUser(context.Background(), "admin", "correct-horse", []string{models.RoleAdministrator})
	require.NoError(t, err)

	rec := srv.do(t, http.MethodPost, adminPath+"/api/v1/toggle", "", srv.withKey)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"enabled":true`)

	rec = srv.do(t, http.MethodPost, adminPath+"/api/auth/login", `{"username":"admin","password":"correct-horse"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	withSession := func(r *http.Request) {
		for _, c := range cookies {
			r.AddCookie(c)
		}
	}

	rec = srv.do(t, http.MethodGet, "/", "", withSession)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "upstream ok", rec.Body.String())

	rec = srv.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = srv.do(t, http.MethodPost, adminPath+"/api/v1/api-key", "", withSession)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "api_key")

	// the previous key is gone after rotation
	rec = srv.do(t, http.MethodGet, adminPath+"/api/v1/status", "", srv.withKey)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestControlRateLimit(t *testing.T) {
	srv := newTestServer(t, domain.ControlRateLimit{RequestsPerSecond: 0.001, Burst: 2})

	for range 2 {
		rec := srv.do(t, http.MethodGet, adminPath+"/api/v1/status", "", srv.withKey)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := srv.do(t, http.MethodGet, adminPath+"/api/v1/status", "", srv.withKey)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// the site itself is not throttled
	rec = srv.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTemplatePreview(t *testing.T) {
	srv := newTestServer(t, domain.ControlRateLimit{})

	rec := srv.do(t, http.MethodGet, adminPath+"/api/v1/templates/minimal/preview", "", srv.withKey)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	rec = srv.do(t, http.MethodGet, adminPath+"/api/v1/templates/moden/preview", "", srv.withKey)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "modern")
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, domain.ControlRateLimit{})

	srv.do(t, http.MethodGet, "/", "", nil)

	rec := srv.do(t, http.MethodGet, adminPath+"/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ezmaint_maintenance_enabled 0")
	assert.Contains(t, rec.Body.String(), `ezmaint_gate_decisions_total{decision="bypass",reason="disabled"} 1`)
}
