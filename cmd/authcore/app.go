// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contractly Contributors

package main

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/contractly/authcore/internal/auth"
	"github.com/contractly/authcore/internal/auth/postgres"
	"github.com/contractly/authcore/internal/config"
)

// app is the wired auth core on top of one database handle.
type app struct {
	accounts     *postgres.AccountRepository
	sessions     *postgres.SessionRepository
	permissions  *postgres.PermissionRepository
	transactor   *postgres.Transactor
	resolver     *auth.PermissionResolver
	orchestrator *auth.AuthOrchestrator
	metrics      *auth.Metrics
	logger       *slog.Logger
}

// newApp wires the repositories, services and orchestrator. reg may be nil,
// in which case metrics go to a private registry.
func newApp(cfg *config.Config, db postgres.DB, reg prometheus.Registerer, logger *slog.Logger) (*app, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	a := &app{
		accounts:    postgres.NewAccountRepository(db),
		sessions:    postgres.NewSessionRepository(db),
		permissions: postgres.NewPermissionRepository(db),
		transactor:  postgres.NewTransactor(db),
		metrics:     auth.NewMetrics(reg),
		logger:      logger,
	}

	hasher := auth.NewArgon2idHasher()

	var err error
	a.resolver, err = auth.NewPermissionResolver(a.permissions, logger)
	if err != nil {
		return nil, err
	}

	authenticator, err := auth.NewAuthenticationService(a.accounts, a.transactor, hasher,
		auth.WithLockoutPolicy(cfg.LockoutPolicy()),
		auth.WithAuthenticationLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	registration, err := auth.NewRegistrationService(a.accounts, hasher, logger)
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewTokenService(cfg.TokenConfig(), a.sessions, a.accounts, a.resolver,
		auth.WithTokenLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	a.orchestrator, err = auth.NewAuthOrchestrator(auth.OrchestratorDeps{
		Authenticator: authenticator,
		Registration:  registration,
		Resolver:      a.resolver,
		Tokens:        tokens,
		Accounts:      a.accounts,
		Sessions:      a.sessions,
		Permissions:   a.permissions,
		Transactor:    a.transactor,
		Hasher:        hasher,
	},
		auth.WithLogoutPolicy(cfg.LogoutPolicy()),
		auth.WithDefaultRole(cfg.Registration.DefaultRole),
		auth.WithMetrics(a.metrics),
		auth.WithOrchestratorLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// newReaper creates the expired-session reaper for cfg.
func (a *app) newReaper(cfg *config.Config) (*auth.SessionReaper, error) {
	return auth.NewSessionReaper(a.sessions, cfg.Reaper.Interval, a.metrics, a.logger)
}
