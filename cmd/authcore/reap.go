// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contractly Contributors

package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/contractly/authcore/internal/auth"
	"github.com/contractly/authcore/internal/auth/postgres"
)

// NewReapCmd creates the reap subcommand.
func NewReapCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Revoke expired sessions once",
		Long: `Marks every unrevoked session whose expiry has passed as revoked.
Sessions are never deleted. Useful from cron when serve runs with the reaper off.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReap(cmd, deps)
		},
	}
}

func runReap(cmd *cobra.Command, deps *Deps) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogger(cmd, cfg)

	pool, err := connect(ctx, deps, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	reaper, err := auth.NewSessionReaper(postgres.NewSessionRepository(pool), cfg.Reaper.Interval, nil, logger)
	if err != nil {
		return err
	}
	n, err := reaper.Sweep(ctx)
	if err != nil {
		return err
	}
	cmd.Printf("Revoked %d expired session(s)\n", n)
	return nil
}
