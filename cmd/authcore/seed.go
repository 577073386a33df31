// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contractly Contributors

package main

import (
	"bytes"
	"context"
	_ "embed"
	"io"
	"os"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/contractly/authcore/internal/auth"
	"github.com/contractly/authcore/internal/auth/postgres"
)

// Default timeout for seed command.
const defaultSeedTimeout = 30 * time.Second

//go:embed catalog.yaml
var defaultCatalog []byte

// seedConfig holds configuration for the seed command.
type seedConfig struct {
	timeout     time.Duration
	file        string
	skipMigrate bool
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd(deps *Deps) *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the role and permission catalogue",
		Long: `Applies pending migrations and upserts the role/permission catalogue.
Without --file the built-in catalogue is used. This command is idempotent.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd, deps, cfg)
		},
	}

	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for database operations (e.g., 30s, 1m)")
	cmd.Flags().StringVar(&cfg.file, "file", "", "catalogue YAML file (default: built-in catalogue)")
	cmd.Flags().BoolVar(&cfg.skipMigrate, "skip-migrate", false, "do not apply pending migrations first")

	return cmd
}

func runSeed(cmd *cobra.Command, deps *Deps, scfg *seedConfig) error {
	catalog, err := readCatalog(scfg.file)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogger(cmd, cfg)

	if !scfg.skipMigrate {
		if err := withMigrator(cmd, deps, runMigrateUp); err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
		}
	}

	// cmd.Context() respects SIGINT/SIGTERM.
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, scfg.timeout)
	defer cancel()

	pool, err := connect(ctx, deps, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := catalog.Apply(ctx, postgres.NewPermissionRepository(pool), postgres.NewTransactor(pool)); err != nil {
		return oops.Code("SEED_FAILED").With("operation", "apply catalogue").Wrap(err)
	}

	logger.Info("catalogue applied", "permissions", len(catalog.Permissions), "roles", len(catalog.Roles))
	cmd.Printf("Seeded %d permission(s) and %d role(s)\n", len(catalog.Permissions), len(catalog.Roles))
	return nil
}

// readCatalog loads path, or the built-in catalogue when path is empty.
func readCatalog(path string) (*auth.Catalog, error) {
	var r io.Reader = bytes.NewReader(defaultCatalog)
	if path != "" {
		f, err := os.Open(path) //nolint:gosec // operator-supplied path
		if err != nil {
			return nil, oops.Code("CATALOG_READ_FAILED").With("path", path).Wrap(err)
		}
		defer f.Close() //nolint:errcheck // read-only
		r = f
	}
	return auth.LoadCatalog(r)
}
