// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

const defaultConfigTemplate = `# config.toml - ezmaint configuration

# Address the gateway listens on
host = "{{ .Host }}"
port = {{ .Port }}

# Path prefix for the control API, login and health endpoints.
# Everything outside it is gated and proxied to upstreamUrl.
adminPath = "/_ezmaint"

# The real site
upstreamUrl = "http://127.0.0.1:8080"

# Shown on the maintenance page; adminEmail is the default contact address
siteName = "My Site"
adminEmail = ""

# Secret used to sign session cookies
sessionSecret = "{{ .SessionSecret }}"

# Log level: TRACE, DEBUG, INFO, WARN, ERROR
logLevel = "INFO"

# Log file path, empty logs to stderr only
#logPath = "/var/log/ezmaint.log"

# Directory for the database, defaults to next to this file
#dataDir = "/var/lib/ezmaint"

# Use X-Real-IP / X-Forwarded-For as the client address (only behind a trusted proxy)
trustProxyHeaders = false

# Seconds a settings snapshot may be served from memory
settingsCacheTTL = 5

# Prometheus metrics at <adminPath>/metrics
metricsEnabled = false

#pprofEnabled = false

[license]
serverUrl = "https://licensing.ez-it-solutions.com/api/v1"
productId = "ez-maintenance-pro"
# seconds
requestTimeout = 15
validationInterval = "24h"
offlineGracePeriod = "168h"

[controlRateLimit]
requestsPerSecond = 5.0
burst = 20

[httpTimeouts]
# seconds
readTimeout = 60
writeTimeout = 120
idleTimeout = 180
`

// WriteDefaultConfig writes a default config file to configPath.
// An existing file is left untouched.
func WriteDefaultConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	secret, err := generateSecureToken(32)
	if err != nil {
		return fmt.Errorf("failed to generate session secret: %w", err)
	}

	tmpl, err := template.New("config").Parse(defaultConfigTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse config template: %w", err)
	}

	file, err := os.OpenFile(configPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	data := struct {
		Host          string
		Port          int
		SessionSecret string
	}{
		Host:          detectHost(),
		Port:          7480,
		SessionSecret: secret,
	}

	if err := tmpl.Execute(file, data); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// detectHost binds to all interfaces inside containers
func detectHost() string {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return "0.0.0.0"
	}
	if os.Getenv("EZMAINT__HOST") != "" {
		return os.Getenv("EZMAINT__HOST")
	}
	return "localhost"
}
