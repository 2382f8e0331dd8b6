// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/autobrr/ezmaint/internal/domain"
)

const (
	envPrefix      = "EZMAINT__"
	configFileName = "config.toml"
	databaseName   = "ezmaint.db"

	defaultValidationInterval = 24 * time.Hour
	defaultOfflineGracePeriod = 7 * 24 * time.Hour
	defaultLicenseTimeout     = 15 * time.Second
)

type AppConfig struct {
	Config *domain.Config

	viper      *viper.Viper
	configPath string
	dataDir    string
}

// New loads the configuration from a directory or a direct .toml path.
// A default config file is written when none exists yet.
func New(configDirOrPath string) (*AppConfig, error) {
	c := &AppConfig{
		viper:  viper.New(),
		Config: &domain.Config{},
	}

	c.defaults()
	c.bindEnvironment()

	if err := c.load(configDirOrPath); err != nil {
		return nil, err
	}

	if err := c.viper.Unmarshal(c.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if c.Config.SessionSecret == "" {
		secret, err := generateSecureToken(32)
		if err != nil {
			return nil, fmt.Errorf("failed to generate session secret: %w", err)
		}
		log.Warn().Msg("No sessionSecret configured, sessions will not survive a restart")
		c.Config.SessionSecret = secret
	}

	c.Config.AdminPath = normalizeAdminPath(c.Config.AdminPath)

	return c, nil
}

func (c *AppConfig) defaults() {
	c.viper.SetDefault("host", "localhost")
	c.viper.SetDefault("port", 7480)
	c.viper.SetDefault("adminPath", "/_ezmaint")
	c.viper.SetDefault("upstreamUrl", "http://127.0.0.1:8080")
	c.viper.SetDefault("siteName", "My Site")
	c.viper.SetDefault("adminEmail", "")
	c.viper.SetDefault("sessionSecret", "")
	c.viper.SetDefault("logLevel", "INFO")
	c.viper.SetDefault("logPath", "")
	c.viper.SetDefault("dataDir", "")
	c.viper.SetDefault("metricsEnabled", false)
	c.viper.SetDefault("pprofEnabled", false)
	c.viper.SetDefault("trustProxyHeaders", false)
	c.viper.SetDefault("settingsCacheTTL", 5)

	c.viper.SetDefault("license.serverUrl", "https://licensing.ez-it-solutions.com/api/v1")
	c.viper.SetDefault("license.productId", "ez-maintenance-pro")
	c.viper.SetDefault("license.requestTimeout", 15)
	c.viper.SetDefault("license.validationInterval", "24h")
	c.viper.SetDefault("license.offlineGracePeriod", "168h")

	c.viper.SetDefault("controlRateLimit.requestsPerSecond", 5.0)
	c.viper.SetDefault("controlRateLimit.burst", 20)

	c.viper.SetDefault("httpTimeouts.readTimeout", 60)
	c.viper.SetDefault("httpTimeouts.writeTimeout", 120)
	c.viper.SetDefault("httpTimeouts.idleTimeout", 180)
}

func (c *AppConfig) bindEnvironment() {
	bindings := map[string]string{
		"host":                               "HOST",
		"port":                               "PORT",
		"adminPath":                          "ADMIN_PATH",
		"upstreamUrl":                        "UPSTREAM_URL",
		"siteName":                           "SITE_NAME",
		"adminEmail":                         "ADMIN_EMAIL",
		"sessionSecret":                      "SESSION_SECRET",
		"logLevel":                           "LOG_LEVEL",
		"logPath":                            "LOG_PATH",
		"dataDir":                            "DATA_DIR",
		"metricsEnabled":                     "METRICS_ENABLED",
		"pprofEnabled":                       "PPROF_ENABLED",
		"trustProxyHeaders":                  "TRUST_PROXY_HEADERS",
		"settingsCacheTTL":                   "SETTINGS_CACHE_TTL",
		"license.serverUrl":                  "LICENSE_SERVER_URL",
		"license.productId":                  "LICENSE_PRODUCT_ID",
		"license.requestTimeout":             "LICENSE_REQUEST_TIMEOUT",
		"license.validationInterval":         "LICENSE_VALIDATION_INTERVAL",
		"license.offlineGracePeriod":         "LICENSE_OFFLINE_GRACE_PERIOD",
		"controlRateLimit.burst":             "CONTROL_RATE_LIMIT_BURST",
		"httpTimeouts.readTimeout":           "HTTP_READ_TIMEOUT",
		"httpTimeouts.writeTimeout":          "HTTP_WRITE_TIMEOUT",
		"httpTimeouts.idleTimeout":           "HTTP_IDLE_TIMEOUT",
		"controlRateLimit.requestsPerSecond": "CONTROL_RATE_LIMIT_RPS",
	}

	for key, env := range bindings {
		_ = c.viper.BindEnv(key, envPrefix+env)
	}
}

func (c *AppConfig) load(configDirOrPath string) error {
	c.configPath = c.resolveConfigPath(configDirOrPath)

	if _, err := os.Stat(c.configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(c.configPath); err != nil {
			return fmt.Errorf("failed to create default config: %w", err)
		}
		log.Info().Str("path", c.configPath).Msg("Created default configuration file")
	}

	c.viper.SetConfigFile(c.configPath)
	c.viper.SetConfigType("toml")

	if err := c.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config %s: %w", c.configPath, err)
	}

	return nil
}

// resolveConfigPath accepts a directory or a direct file path.
// Anything ending in .toml, or an existing regular file, is used as-is.
func (c *AppConfig) resolveConfigPath(configDirOrPath string) string {
	if configDirOrPath == "" {
		return filepath.Join(GetDefaultConfigDir(), configFileName)
	}

	if strings.HasSuffix(strings.ToLower(configDirOrPath), ".toml") {
		return configDirOrPath
	}

	if info, err := os.Stat(configDirOrPath); err == nil && !info.IsDir() {
		return configDirOrPath
	}

	return filepath.Join(configDirOrPath, configFileName)
}

// GetDefaultConfigDir returns the OS-specific config directory
func GetDefaultConfigDir() string {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "ezmaint")
		}
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ezmaint")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "ezmaint")
}

// SetDataDir overrides the data directory from the CLI
func (c *AppConfig) SetDataDir(dir string) {
	c.dataDir = dir
}

// GetDatabasePath returns the sqlite database path.
// Precedence: CLI flag, env/config dataDir, then next to the config file.
func (c *AppConfig) GetDatabasePath() string {
	if c.dataDir != "" {
		return filepath.Join(c.dataDir, databaseName)
	}

	if c.Config.DataDir != "" {
		return filepath.Join(c.Config.DataDir, databaseName)
	}

	return filepath.Join(filepath.Dir(c.configPath), databaseName)
}

// ConfigPath returns the resolved config file path
func (c *AppConfig) ConfigPath() string {
	return c.configPath
}

// LicenseValidationInterval returns how often the license is re-verified
func (c *AppConfig) LicenseValidationInterval() time.Duration {
	return parseDuration(c.Config.License.ValidationInterval, defaultValidationInterval)
}

// LicenseOfflineGracePeriod returns how long a cached active status is trusted
// while the licensing service is unreachable
func (c *AppConfig) LicenseOfflineGracePeriod() time.Duration {
	return parseDuration(c.Config.License.OfflineGracePeriod, defaultOfflineGracePeriod)
}

// LicenseRequestTimeout returns the timeout for license server calls
func (c *AppConfig) LicenseRequestTimeout() time.Duration {
	if c.Config.License.RequestTimeout <= 0 {
		return defaultLicenseTimeout
	}
	return time.Duration(c.Config.License.RequestTimeout) * time.Second
}

// SettingsCacheTTL returns how long a settings snapshot may be served from cache
func (c *AppConfig) SettingsCacheTTL() time.Duration {
	if c.Config.SettingsCacheTTL < 0 {
		return 0
	}
	return time.Duration(c.Config.SettingsCacheTTL) * time.Second
}

// ApplyLogConfig sets the global log level and output
func (c *AppConfig) ApplyLogConfig() {
	level, err := zerolog.ParseLevel(strings.ToLower(c.Config.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var writer io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}

	if c.Config.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(c.Config.LogPath), 0755); err != nil {
			log.Error().Err(err).Str("path", c.Config.LogPath).Msg("Failed to create log directory")
		} else if file, err := os.OpenFile(c.Config.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640); err != nil {
			log.Error().Err(err).Str("path", c.Config.LogPath).Msg("Failed to open log file")
		} else {
			writer = zerolog.MultiLevelWriter(writer, file)
		}
	}

	log.Logger = zerolog.New(writer).With().Timestamp().Logger()
}

// WatchConfig re-applies the log level when the config file changes
func (c *AppConfig) WatchConfig() {
	c.viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		newLevel := c.viper.GetString("logLevel")
		if newLevel == c.Config.LogLevel {
			return
		}

		log.Info().Str("file", e.Name).Str("logLevel", newLevel).Msg("Config changed, updating log level")
		c.Config.LogLevel = newLevel

		level, err := zerolog.ParseLevel(strings.ToLower(newLevel))
		if err != nil || level == zerolog.NoLevel {
			return
		}
		zerolog.SetGlobalLevel(level)
	})
	c.viper.WatchConfig()
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}

	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		log.Warn().Str("value", value).Dur("fallback", fallback).Msg("Invalid duration in config, using default")
		return fallback
	}

	return d
}

func normalizeAdminPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == "/" {
		return "/_ezmaint"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimSuffix(p, "/")
}

// generateSecureToken returns length random bytes hex encoded
func generateSecureToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
