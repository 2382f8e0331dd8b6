// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/autobrr/ezmaint/internal/api"
	"github.com/autobrr/ezmaint/internal/auth"
	"github.com/autobrr/ezmaint/internal/config"
	"github.com/autobrr/ezmaint/internal/gate"
	"github.com/autobrr/ezmaint/internal/metrics"
	"github.com/autobrr/ezmaint/internal/proxy"
	"github.com/autobrr/ezmaint/internal/services"
	"github.com/autobrr/ezmaint/internal/templates"
	"github.com/autobrr/ezmaint/internal/web/swagger"
)

var Version = "dev"

func main() {
	var rootCmd = &cobra.Command{
		Use:   "ezmaint",
		Short: "Maintenance page gateway for your site",
		Long: `ezmaint - sits in front of a site and serves a maintenance, construction
or payment page to visitors while letting administrators through.`,
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	rootCmd.Version = Version

	rootCmd.AddCommand(RunServeCommand())
	rootCmd.AddCommand(RunVersionCommand(Version))
	rootCmd.AddCommand(RunGenerateConfigCommand())
	rootCmd.AddCommand(RunCreateUserCommand())
	rootCmd.AddCommand(RunChangePasswordCommand())
	rootCmd.AddCommand(RunGenerateAPIKeyCommand())
	rootCmd.AddCommand(RunLicenseCommand())
	rootCmd.AddCommand(RunResetSettingsCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func RunServeCommand() *cobra.Command {
	var (
		configDir string
		dataDir   string
		logPath   string
		pprofFlag bool
	)

	var command = &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway",
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory path (default is OS-specific: ~/.config/ezmaint/ or %APPDATA%\\ezmaint\\). Can also be a direct path to a .toml file")
	command.Flags().StringVar(&dataDir, "data-dir", "", "data directory for the database (default is next to config file)")
	command.Flags().StringVar(&logPath, "log-path", "", "log file path (default is stderr)")
	command.Flags().BoolVar(&pprofFlag, "pprof", false, "enable pprof server on :6060")

	command.Run = func(cmd *cobra.Command, args []string) {
		app := NewApplication(Version, configDir, dataDir, logPath, pprofFlag)
		app.runServer()
	}

	return command
}

func RunVersionCommand(version string) *cobra.Command {
	var command = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of ezmaint",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version)
		},
	}

	return command
}

func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a default configuration file",
		Long: `Generate a default configuration file without starting the gateway.

If no --config-dir is specified, uses the OS-specific default location:
- Linux/macOS: ~/.config/ezmaint/config.toml
- Windows: %APPDATA%\ezmaint\config.toml

You can specify either a directory path or a direct file path:
- Directory: ezmaint generate-config --config-dir /path/to/config/
- File: ezmaint generate-config --config-dir /path/to/myconfig.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := resolveConfigFile(configDir)

			if _, err := os.Stat(configPath); err == nil {
				cmd.Printf("Configuration file already exists at: %s\n", configPath)
				cmd.Println("Skipping generation to avoid overwriting existing configuration.")
				return nil
			}

			if err := config.WriteDefaultConfig(configPath); err != nil {
				return fmt.Errorf("failed to create configuration file: %w", err)
			}

			cmd.Printf("Configuration file created successfully at: %s\n", configPath)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")

	return command
}

func resolveConfigFile(configDir string) string {
	if configDir == "" {
		return filepath.Join(config.GetDefaultConfigDir(), "config.toml")
	}
	if strings.HasSuffix(strings.ToLower(configDir), ".toml") {
		return configDir
	}
	if info, err := os.Stat(configDir); err == nil && !info.IsDir() {
		return configDir
	}
	return filepath.Join(configDir, "config.toml")
}

type Application struct {
	version   string
	configDir string
	dataDir   string
	logPath   string
	pprofFlag bool
}

func NewApplication(version, configDir, dataDir, logPath string, pprofFlag bool) *Application {
	return &Application{
		version:   version,
		configDir: configDir,
		dataDir:   dataDir,
		logPath:   logPath,
		pprofFlag: pprofFlag,
	}
}

func (app *Application) runServer() {
	log.Info().Str("version", app.version).Msg("Starting ezmaint")

	cfg, err := config.New(app.configDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize configuration")
	}

	if app.dataDir != "" {
		cfg.SetDataDir(app.dataDir)
	}
	if app.logPath != "" {
		cfg.Config.LogPath = app.logPath
	}
	if app.pprofFlag {
		cfg.Config.PprofEnabled = true
	}

	cfg.ApplyLogConfig()
	cfg.WatchConfig()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	rt, err := openStack(ctx, cfg, app.version)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer rt.Close()

	if err := rt.settings.Seed(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed default settings")
	}

	if hasUser, err := rt.users.Exists(ctx); err == nil && !hasUser {
		log.Warn().Msg("No admin account yet, create one with 'ezmaint create-user'")
	}

	authService := auth.NewService(cfg.Config.SessionSecret, rt.users)
	registry := templates.NewRegistry()

	var metricsManager *metrics.Manager
	gateOpts := []gate.Option{
		gate.WithIdentity(authService.SessionRoles),
		gate.WithEntitlements(rt.license),
	}
	if cfg.Config.MetricsEnabled {
		metricsManager = metrics.NewManager(rt.settings, rt.license)
		gateOpts = append(gateOpts, gate.WithRecorder(metricsManager))
		log.Info().Str("path", cfg.Config.AdminPath+"/metrics").Msg("Prometheus metrics enabled")
	}

	page := gate.NewMiddleware(gate.NewEngine(), rt.settings, registry, gateOpts...)

	upstream, err := proxy.NewHandler(cfg.Config.UpstreamURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize upstream proxy")
	}

	swaggerHandler, err := swagger.NewHandler(cfg.Config.AdminPath)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize API docs")
	}

	go rt.license.Run(ctx)

	deps := &api.Dependencies{
		Config:         cfg,
		DB:             rt.db,
		AuthService:    authService,
		APIKeyStore:    rt.apiKeys,
		Settings:       rt.settings,
		Control:        services.NewControlService(rt.settings, rt.audit),
		License:        rt.license,
		Templates:      registry,
		Gate:           page,
		Upstream:       upstream,
		MetricsManager: metricsManager,
		Swagger:        swaggerHandler,
	}

	router := api.NewRouter(deps)

	readTimeout := time.Duration(cfg.Config.HTTPTimeouts.ReadTimeout) * time.Second
	writeTimeout := time.Duration(cfg.Config.HTTPTimeouts.WriteTimeout) * time.Second
	idleTimeout := time.Duration(cfg.Config.HTTPTimeouts.IdleTimeout) * time.Second

	if readTimeout == 0 {
		readTimeout = 60 * time.Second
	}
	if writeTimeout == 0 {
		writeTimeout = 120 * time.Second
	}
	if idleTimeout == 0 {
		idleTimeout = 180 * time.Second
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Config.Host, cfg.Config.Port),
		Handler:      router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	go func() {
		log.Info().
			Str("address", srv.Addr).
			Str("upstream", upstream.Upstream().String()).
			Str("adminPath", cfg.Config.AdminPath).
			Dur("readTimeout", readTimeout).
			Dur("writeTimeout", writeTimeout).
			Dur("idleTimeout", idleTimeout).
			Msg("Starting HTTP server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	if cfg.Config.PprofEnabled {
		go func() {
			log.Info().Msg("Starting pprof server on :6060")
			log.Info().Msg("Access profiling at: http://localhost:6060/debug/pprof/")
			if err := http.ListenAndServe(":6060", nil); err != nil {
				log.Error().Err(err).Msg("Profiling server failed")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
