// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contractly Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/contractly/authcore/internal/config"
	"github.com/contractly/authcore/internal/logging"
	"github.com/contractly/authcore/internal/store"
	"github.com/contractly/authcore/internal/xdg"
)

const serviceName = "authcore"

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the authcore CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *Deps) *cobra.Command {
	deps = deps.withDefaults()

	cmd := &cobra.Command{
		Use:   "authcore",
		Short: "Contractly authentication core",
		Long: `authcore authenticates users, issues and rotates access/refresh tokens,
manages login sessions and resolves effective permissions.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML, default $XDG_CONFIG_HOME/authcore/config.yaml)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd(deps))
	cmd.AddCommand(NewMigrateCmd(deps))
	cmd.AddCommand(NewSeedCmd(deps))
	cmd.AddCommand(NewReapCmd(deps))
	cmd.AddCommand(NewUserCmd(deps))
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// loadConfig reads the config file named by --config, or the XDG default
// when present, and overlays the environment and the command's flags. It does
// not validate.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configFile
	if path == "" {
		if found, ok := xdg.FindConfigFile(); ok {
			path = found
		}
	}
	return config.Load(path, cmd.Flags())
}

// setupLogger installs the process logger described by cfg.
func setupLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	opts := cfg.LoggingOptions(serviceName, version)
	opts.Writer = cmd.ErrOrStderr()
	return logging.SetDefault(opts)
}

// connect opens the database described by cfg.
func connect(ctx context.Context, deps *Deps, cfg *config.Config, logger *slog.Logger) (Pool, error) {
	dsn, err := cfg.RequireDatabaseURL()
	if err != nil {
		return nil, err
	}
	return deps.Connect(ctx, dsn, store.ConnectOptions{
		MaxConns:     cfg.Database.MaxConns,
		PingAttempts: cfg.Database.PingAttempts,
		PingBackoff:  cfg.Database.PingBackoff,
		Logger:       logger,
	})
}
