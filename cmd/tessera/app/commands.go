// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the tessera command-line
// application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/tessera/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "tessera",
	DisableAutoGenTag: true,
	Short:             "Tessera is a multi-tenant SSO and OAuth2 authorization service",
	Long: `Tessera is a multi-tenant single-sign-on service. Tenants are realms; each
realm has OAuth2 clients authenticating with client credentials and serves
users authenticating with a password or through a third-party identity
provider (VK, Yandex, or any OIDC issuer). Tessera issues JWT access/refresh
pairs, answers introspection, and moves authenticated sessions between
realms.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
}

// NewRootCmd creates a new root command for the tessera CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Fatalf("Failed to bind debug flag: %v", err)
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(newMigrateCmd())

	return rootCmd
}
