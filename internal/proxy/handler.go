// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package proxy

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Handler forwards requests that passed the gate to the upstream site
type Handler struct {
	upstream   *url.URL
	bufferPool *BufferPool
	proxy      *httputil.ReverseProxy
}

// NewHandler creates a reverse proxy for upstreamURL
func NewHandler(upstreamURL string) (*Handler, error) {
	upstream, err := url.Parse(strings.TrimSpace(upstreamURL))
	if err != nil {
		return nil, errors.Wrap(err, "invalid upstream url")
	}
	if upstream.Scheme != "http" && upstream.Scheme != "https" {
		return nil, errors.Errorf("upstream url must be http or https, got %q", upstreamURL)
	}
	if upstream.Host == "" {
		return nil, errors.Errorf("upstream url has no host: %q", upstreamURL)
	}

	bufferPool := NewBufferPool()

	h := &Handler{
		upstream:   upstream,
		bufferPool: bufferPool,
	}

	h.proxy = &httputil.ReverseProxy{
		Rewrite:      h.rewriteRequest,
		BufferPool:   bufferPool,
		ErrorHandler: h.errorHandler,
	}

	return h, nil
}

// Upstream returns the proxied site's base URL
func (h *Handler) Upstream() *url.URL {
	u := *h.upstream
	return &u
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.proxy.ServeHTTP(w, r)
}

func (h *Handler) rewriteRequest(pr *httputil.ProxyRequest) {
	pr.SetURL(h.upstream)
	pr.SetXForwarded()

	// keep the public host so the site builds correct absolute links
	pr.Out.Host = pr.In.Host

	log.Trace().
		Str("method", pr.In.Method).
		Str("path", pr.In.URL.Path).
		Str("target", pr.Out.URL.String()).
		Msg("Proxying request upstream")
}

func (h *Handler) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	log.Error().
		Err(err).
		Str("upstream", h.upstream.Host).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("Proxy request failed")

	// generic error, upstream details stay in the log
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	_, _ = w.Write([]byte(`{"error":"Failed to connect to upstream site"}`))
}
