// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHandlerValidatesUpstream(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "http", url: "http://127.0.0.1:8080"},
		{name: "https_with_path", url: "https://example.com/base"},
		{name: "no_scheme", url: "127.0.0.1:8080", wantErr: true},
		{name: "ftp", url: "ftp://example.com", wantErr: true},
		{name: "no_host", url: "http://", wantErr: true},
		{name: "empty", url: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := NewHandler(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, h)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, h)
		})
	}
}

func TestHandlerForwardsRequests(t *testing.T) {
	var gotPath, gotQuery, gotHost, gotForwardedHost string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotHost = r.Host
		gotForwardedHost = r.Header.Get("X-Forwarded-Host")
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusTeapot)
		_, _ = io.WriteString(w, "hello from upstream")
	}))
	defer upstream.Close()

	h, err := NewHandler(upstream.URL)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "http://shop.example.com/products/42?color=red", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "hello from upstream", rec.Body.String())
	assert.Equal(t, "yes", rec.Header().Get("X-Upstream"))
	assert.Equal(t, "/products/42", gotPath)
	assert.Equal(t, "color=red", gotQuery)
	assert.Equal(t, "shop.example.com", gotHost)
	assert.Equal(t, "shop.example.com", gotForwardedHost)
}

func TestHandlerUpstreamDown(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	url := upstream.URL
	upstream.Close()

	h, err := NewHandler(url)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"Failed to connect to upstream site"}`, rec.Body.String())
}

func TestBufferPool(t *testing.T) {
	pool := NewBufferPool()

	buf := pool.Get()
	assert.Len(t, buf, bufferSize)
	pool.Put(buf)

	// foreign sizes are dropped, not pooled
	pool.Put(make([]byte, 10))
	assert.Len(t, pool.Get(), bufferSize)
}
