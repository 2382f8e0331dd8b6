// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func RunLicenseCommand() *cobra.Command {
	var configDir, dataDir string

	command := &cobra.Command{
		Use:   "license",
		Short: "Manage the premium license of this site",
	}

	command.PersistentFlags().StringVar(&configDir, "config-dir", "", configDirUsage)
	command.PersistentFlags().StringVar(&dataDir, "data-dir", "", dataDirUsage)

	run := func(fn func(ctx context.Context, cmd *cobra.Command, st *stack) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			return withStack(cmd, configDir, dataDir, func(ctx context.Context, st *stack) error {
				return fn(ctx, cmd, st)
			})
		}
	}

	var key, email string
	activate := &cobra.Command{
		Use:   "activate",
		Short: "Activate a license key for this site",
		RunE: run(func(ctx context.Context, cmd *cobra.Command, st *stack) error {
			result := st.license.Activate(ctx, key, email)
			if !result.Success {
				return fmt.Errorf("license activation failed: %s", result.Message)
			}
			cmd.Printf("%s (plan: %s)\n", result.Message, result.Plan)
			return nil
		}),
	}
	activate.Flags().StringVar(&key, "key", "", "license key")
	activate.Flags().StringVar(&email, "email", "", "email address the license was bought with")
	_ = activate.MarkFlagRequired("key")
	_ = activate.MarkFlagRequired("email")

	deactivate := &cobra.Command{
		Use:   "deactivate",
		Short: "Release the license from this site",
		RunE: run(func(ctx context.Context, cmd *cobra.Command, st *stack) error {
			result := st.license.Deactivate(ctx)
			cmd.Println(result.Message)
			return nil
		}),
	}

	verify := &cobra.Command{
		Use:   "verify",
		Short: "Verify the license with the licensing service now",
		RunE: run(func(ctx context.Context, cmd *cobra.Command, st *stack) error {
			if !st.license.Verify(ctx) {
				return fmt.Errorf("license is not active")
			}
			cmd.Println("License is active")
			return nil
		}),
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the stored license without contacting the licensing service",
		RunE: run(func(ctx context.Context, cmd *cobra.Command, st *stack) error {
			info, err := st.license.Info(ctx)
			if err != nil {
				return fmt.Errorf("failed to load license: %w", err)
			}

			key := info.LicenseKey
			if key == "" {
				key = "(none)"
			}

			cmd.Printf("License:        %s\n", key)
			cmd.Printf("Status:         %s\n", info.Status)
			cmd.Printf("Active:         %t\n", info.Active)
			cmd.Printf("Plan:           %s (effective: %s)\n", info.Plan, info.EffectivePlan)
			if info.ExpiresAt != nil {
				cmd.Printf("Expires:        %s\n", info.ExpiresAt.Format(time.RFC3339))
			}
			if info.LastVerifiedAt != nil {
				cmd.Printf("Last verified:  %s\n", info.LastVerifiedAt.Format(time.RFC3339))
			}
			cmd.Printf("Features:       %s\n", strings.Join(info.Features, ", "))
			return nil
		}),
	}

	command.AddCommand(activate, deactivate, verify, status)

	return command
}
