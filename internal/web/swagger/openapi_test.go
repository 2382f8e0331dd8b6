// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: MIT

package swagger

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func loadSpec(t *testing.T) map[string]any {
	t.Helper()
	require.NotEmpty(t, openapiYAML, "OpenAPI spec is empty")

	var spec map[string]any
	require.NoError(t, yaml.Unmarshal(openapiYAML, &spec))
	return spec
}

func TestOpenAPISpec(t *testing.T) {
	spec := loadSpec(t)

	assert.NotNil(t, spec["openapi"])
	assert.NotNil(t, spec["info"])

	paths, ok := spec["paths"].(map[string]any)
	require.True(t, ok, "'paths' is not a map")

	totalEndpoints := 0
	for _, pathItem := range paths {
		if methods, ok := pathItem.(map[string]any); ok {
			for method := range methods {
				switch method {
				case "get", "post", "put", "delete", "patch":
					totalEndpoints++
				}
			}
		}
	}
	t.Logf("OpenAPI spec documents %d endpoints", totalEndpoints)

	components, ok := spec["components"].(map[string]any)
	require.True(t, ok, "Missing or invalid 'components' section")

	schemas, ok := components["schemas"].(map[string]any)
	require.True(t, ok, "Missing or invalid 'schemas' section")

	for _, schema := range []string{"Error", "User", "ApiKey", "Status", "Mode", "Settings", "Template", "License", "LicenseResult"} {
		assert.NotNil(t, schemas[schema], "Missing schema: %s", schema)
	}
}

func TestOpenAPISecuritySchemes(t *testing.T) {
	spec := loadSpec(t)

	components := spec["components"].(map[string]any)
	securitySchemes, ok := components["securitySchemes"].(map[string]any)
	require.True(t, ok, "Missing or invalid 'securitySchemes' section")

	apiKey, ok := securitySchemes["ApiKeyAuth"].(map[string]any)
	require.True(t, ok, "Missing security scheme: ApiKeyAuth")
	assert.Equal(t, "X-EZMP-API-Key", apiKey["name"])

	assert.NotNil(t, securitySchemes["SessionAuth"], "Missing security scheme: SessionAuth")
}

func TestServeOpenAPISpecPrependsCurrentServer(t *testing.T) {
	h, err := NewHandler("/_ezmaint/")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/_ezmaint/api/openapi.json", nil)
	req.Host = "example.com"
	req.Header.Set("X-Forwarded-Proto", "https")
	rec := httptest.NewRecorder()

	h.ServeOpenAPISpec(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Servers []struct {
			URL string `json:"url"`
		} `json:"servers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Servers, 2)
	assert.Equal(t, "https://example.com/_ezmaint", body.Servers[0].URL)
	assert.Equal(t, "/_ezmaint", body.Servers[1].URL)

	// the parsed document itself is untouched
	assert.Len(t, h.spec["servers"], 1)
}

func TestServeSwaggerUI(t *testing.T) {
	h, err := NewHandler("/ops")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeSwaggerUI(rec, httptest.NewRequest(http.MethodGet, "/ops/api/docs", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `url: "/ops/api/openapi.json"`)
	assert.NotContains(t, rec.Body.String(), "{{OPENAPI_URL}}")
}
