// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/autobrr/ezmaint/internal/auth"
	"github.com/autobrr/ezmaint/internal/config"
	"github.com/autobrr/ezmaint/internal/models"
	"github.com/autobrr/ezmaint/internal/services"
)

const configDirUsage = "config directory or file path (defaults to OS-specific location)"
const dataDirUsage = "data directory path (defaults to next to config file)"

func readPassword(prompt string) (string, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Print(prompt)
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(password), nil
	}

	fmt.Fprint(os.Stderr, prompt)
	var password string
	if _, err := fmt.Scanln(&password); err != nil {
		return "", fmt.Errorf("failed to read password from stdin: %w", err)
	}
	return password, nil
}

// withStack opens the config and storage for a one-shot admin command
func withStack(cmd *cobra.Command, configDir, dataDir string, fn func(ctx context.Context, st *stack) error) error {
	cfg, err := loadConfig(configDir, dataDir)
	if err != nil {
		return err
	}

	return runWithStack(cmd, cfg, fn)
}

func runWithStack(cmd *cobra.Command, cfg *config.AppConfig, fn func(ctx context.Context, st *stack) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := openStack(ctx, cfg, Version)
	if err != nil {
		return err
	}
	defer st.Close()

	return fn(ctx, st)
}

func RunCreateUserCommand() *cobra.Command {
	var configDir, dataDir, username, password string
	var roles []string

	command := &cobra.Command{
		Use:   "create-user",
		Short: "Create an admin account",
		Long: `Create a user account without starting the gateway.

Users with a role listed in the bypass_roles setting (administrator by
default) see the real site while maintenance is enabled and can use the
control API with their session.

If no --config-dir is specified, uses the OS-specific default location:
- Linux/macOS: ~/.config/ezmaint/config.toml
- Windows: %APPDATA%\ezmaint\config.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" {
				fmt.Print("Enter username: ")
				if _, err := fmt.Scanln(&username); err != nil {
					return fmt.Errorf("failed to read username: %w", err)
				}
			}

			username = strings.TrimSpace(username)
			if username == "" {
				return fmt.Errorf("username cannot be empty")
			}

			if password == "" {
				var err error
				password, err = readPassword("Enter password: ")
				if err != nil {
					return err
				}
			}

			if len(password) < 8 {
				return fmt.Errorf("password must be at least 8 characters long")
			}

			return withStack(cmd, configDir, dataDir, func(ctx context.Context, st *stack) error {
				authService := auth.NewService(st.cfg.Config.SessionSecret, st.users)

				user, err := authService.CreateUser(ctx, username, password, roles)
				if err != nil {
					if errors.Is(err, models.ErrUserAlreadyExists) {
						return fmt.Errorf("user '%s' already exists", username)
					}
					return fmt.Errorf("failed to create user: %w", err)
				}

				cmd.Printf("User '%s' created successfully with ID: %d (roles: %s)\n",
					user.Username, user.ID, strings.Join(user.Roles, ", "))
				return nil
			})
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "", configDirUsage)
	command.Flags().StringVar(&dataDir, "data-dir", "", dataDirUsage)
	command.Flags().StringVar(&username, "username", "", "username for the new account")
	command.Flags().StringVar(&password, "password", "", "password for the new account (will prompt if not provided)")
	command.Flags().StringArrayVar(&roles, "role", []string{models.RoleAdministrator}, "role of the new account, repeatable")

	return command
}

func RunChangePasswordCommand() *cobra.Command {
	var configDir, dataDir, username, newPassword string

	command := &cobra.Command{
		Use:   "change-password",
		Short: "Change the password of an existing user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configDir, dataDir)
			if err != nil {
				return err
			}

			dbPath := cfg.GetDatabasePath()
			if _, err := os.Stat(dbPath); os.IsNotExist(err) {
				return fmt.Errorf("database not found at %s. Create a user first with 'create-user' command", dbPath)
			}

			if username == "" {
				fmt.Print("Enter username: ")
				if _, err := fmt.Scanln(&username); err != nil {
					return fmt.Errorf("failed to read username: %w", err)
				}
			}

			return runWithStack(cmd, cfg, func(ctx context.Context, st *stack) error {
				if _, err := st.users.GetByUsername(ctx, username); err != nil {
					if errors.Is(err, models.ErrUserNotFound) {
						return fmt.Errorf("username '%s' not found", username)
					}
					return fmt.Errorf("failed to verify username: %w", err)
				}

				if newPassword == "" {
					var err error
					newPassword, err = readPassword("Enter new password: ")
					if err != nil {
						return err
					}
				}

				authService := auth.NewService(st.cfg.Config.SessionSecret, st.users)
				if err := authService.ChangePassword(ctx, username, newPassword); err != nil {
					if errors.Is(err, auth.ErrWeakPassword) {
						return fmt.Errorf("password must be at least 8 characters long")
					}
					return fmt.Errorf("failed to update password: %w", err)
				}

				cmd.Printf("Password changed successfully for user '%s'\n", username)
				return nil
			})
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "", configDirUsage)
	command.Flags().StringVar(&dataDir, "data-dir", "", dataDirUsage)
	command.Flags().StringVar(&username, "username", "", "username of the account")
	command.Flags().StringVar(&newPassword, "new-password", "", "new password (will prompt if not provided)")

	return command
}

func RunGenerateAPIKeyCommand() *cobra.Command {
	var configDir, dataDir string

	command := &cobra.Command{
		Use:   "generate-api-key",
		Short: "Create a new control API key",
		Long: `Create a new control API key and print it once.

Send it in the X-EZMP-API-Key header. Any previous key stops working.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStack(cmd, configDir, dataDir, func(ctx context.Context, st *stack) error {
				rawKey, err := st.apiKeys.Rotate(ctx)
				if err != nil {
					return fmt.Errorf("failed to create API key: %w", err)
				}

				cmd.Println(rawKey)
				cmd.PrintErrln("Save this key securely - it will not be shown again")
				return nil
			})
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "", configDirUsage)
	command.Flags().StringVar(&dataDir, "data-dir", "", dataDirUsage)

	return command
}

func RunResetSettingsCommand() *cobra.Command {
	var configDir, dataDir string
	var yes bool

	command := &cobra.Command{
		Use:   "reset-settings",
		Short: "Restore every setting to its default",
		Long: `Restore every setting to its default value.

The stored license and the control API key are removed as well.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to reset without --yes")
			}

			return withStack(cmd, configDir, dataDir, func(ctx context.Context, st *stack) error {
				control := services.NewControlService(st.settings, st.audit)
				if err := control.Reset(ctx); err != nil {
					return err
				}

				cmd.Println("Settings reset to defaults")
				return nil
			})
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "", configDirUsage)
	command.Flags().StringVar(&dataDir, "data-dir", "", dataDirUsage)
	command.Flags().BoolVar(&yes, "yes", false, "confirm the reset")

	return command
}
