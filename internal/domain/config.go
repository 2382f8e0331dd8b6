// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// Config represents the application configuration
type Config struct {
	Host              string           `toml:"host" mapstructure:"host"`
	Port              int              `toml:"port" mapstructure:"port"`
	AdminPath         string           `toml:"adminPath" mapstructure:"adminPath"`
	UpstreamURL       string           `toml:"upstreamUrl" mapstructure:"upstreamUrl"`
	SiteName          string           `toml:"siteName" mapstructure:"siteName"`
	AdminEmail        string           `toml:"adminEmail" mapstructure:"adminEmail"`
	SessionSecret     string           `toml:"sessionSecret" mapstructure:"sessionSecret"`
	LogLevel          string           `toml:"logLevel" mapstructure:"logLevel"`
	LogPath           string           `toml:"logPath" mapstructure:"logPath"`
	DataDir           string           `toml:"dataDir" mapstructure:"dataDir"`
	MetricsEnabled    bool             `toml:"metricsEnabled" mapstructure:"metricsEnabled"`
	PprofEnabled      bool             `toml:"pprofEnabled" mapstructure:"pprofEnabled"`
	TrustProxyHeaders bool             `toml:"trustProxyHeaders" mapstructure:"trustProxyHeaders"`
	SettingsCacheTTL  int              `toml:"settingsCacheTTL" mapstructure:"settingsCacheTTL"` // seconds
	License           LicenseConfig    `toml:"license" mapstructure:"license"`
	ControlRateLimit  ControlRateLimit `toml:"controlRateLimit" mapstructure:"controlRateLimit"`
	HTTPTimeouts      HTTPTimeouts     `toml:"httpTimeouts" mapstructure:"httpTimeouts"`
}

// HTTPTimeouts represents HTTP server timeout configuration
type HTTPTimeouts struct {
	ReadTimeout  int `toml:"readTimeout" mapstructure:"readTimeout"`   // seconds
	WriteTimeout int `toml:"writeTimeout" mapstructure:"writeTimeout"` // seconds
	IdleTimeout  int `toml:"idleTimeout" mapstructure:"idleTimeout"`   // seconds
}

// LicenseConfig represents the licensing service settings.
// Durations are Go duration strings ("24h", "168h").
type LicenseConfig struct {
	ServerURL          string `toml:"serverUrl" mapstructure:"serverUrl"`
	ProductID          string `toml:"productId" mapstructure:"productId"`
	RequestTimeout     int    `toml:"requestTimeout" mapstructure:"requestTimeout"` // seconds
	ValidationInterval string `toml:"validationInterval" mapstructure:"validationInterval"`
	OfflineGracePeriod string `toml:"offlineGracePeriod" mapstructure:"offlineGracePeriod"`
}

// ControlRateLimit throttles the control API
type ControlRateLimit struct {
	RequestsPerSecond float64 `toml:"requestsPerSecond" mapstructure:"requestsPerSecond"`
	Burst             int     `toml:"burst" mapstructure:"burst"`
}
