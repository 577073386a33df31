// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contractly Contributors

//go:build integration

package auth_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/contractly/authcore/internal/auth"
	authpg "github.com/contractly/authcore/internal/auth/postgres"
	"github.com/contractly/authcore/internal/store"
)

func TestAuth(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Auth Core Integration Suite")
}

// testEnv holds the database and a fully wired auth core on top of it.
type testEnv struct {
	ctx       context.Context
	pool      *pgxpool.Pool
	container testcontainers.Container

	Accounts     *authpg.AccountRepository
	Sessions     *authpg.SessionRepository
	Permissions  *authpg.PermissionRepository
	Transactor   *authpg.Transactor
	Resolver     *auth.PermissionResolver
	Tokens       *auth.TokenService
	Orchestrator *auth.AuthOrchestrator
}

var env *testEnv

var _ = BeforeSuite(func() {
	var err error
	env, err = setupAuthTestEnv()
	Expect(err).NotTo(HaveOccurred())
})

var _ = AfterSuite(func() {
	if env != nil {
		env.cleanup()
	}
})

func setupAuthTestEnv() (*testEnv, error) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("authcore_test"),
		postgres.WithUsername("authcore"),
		postgres.WithPassword("authcore"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	migrator, err := store.NewMigrator(connStr, nil)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		_ = container.Terminate(ctx)
		return nil, err
	}
	_ = migrator.Close()

	pool, err := store.Connect(ctx, connStr, store.DefaultConnectOptions())
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	e := &testEnv{
		ctx:         ctx,
		pool:        pool,
		container:   container,
		Accounts:    authpg.NewAccountRepository(pool),
		Sessions:    authpg.NewSessionRepository(pool),
		Permissions: authpg.NewPermissionRepository(pool),
		Transactor:  authpg.NewTransactor(pool),
	}
	if err := e.wire(); err != nil {
		e.cleanup()
		return nil, err
	}
	return e, nil
}

func (e *testEnv) wire() error {
	logger := slog.New(slog.DiscardHandler)
	hasher := auth.NewArgon2idHasherWithParams(auth.Argon2Params{
		Time: 1, Memory: 8 * 1024, Threads: 1, SaltLen: 16, KeyLen: 32,
	})

	var err error
	e.Resolver, err = auth.NewPermissionResolver(e.Permissions, logger)
	if err != nil {
		return err
	}
	authn, err := auth.NewAuthenticationService(e.Accounts, e.Transactor, hasher,
		auth.WithAuthenticationLogger(logger))
	if err != nil {
		return err
	}
	registration, err := auth.NewRegistrationService(e.Accounts, hasher, logger)
	if err != nil {
		return err
	}
	e.Tokens, err = auth.NewTokenService(auth.TokenConfig{
		Issuer:     "authcore-it",
		Audience:   "authcore-it-api",
		SigningKey: []byte("integration-signing-key-0123456789"),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	}, e.Sessions, e.Accounts, e.Resolver, auth.WithTokenLogger(logger))
	if err != nil {
		return err
	}
	e.Orchestrator, err = auth.NewAuthOrchestrator(auth.OrchestratorDeps{
		Authenticator: authn,
		Registration:  registration,
		Resolver:      e.Resolver,
		Tokens:        e.Tokens,
		Accounts:      e.Accounts,
		Sessions:      e.Sessions,
		Permissions:   e.Permissions,
		Transactor:    e.Transactor,
		Hasher:        hasher,
	}, auth.WithDefaultRole("Developer"), auth.WithOrchestratorLogger(logger))
	return err
}

func (e *testEnv) cleanup() {
	if e.pool != nil {
		e.pool.Close()
	}
	if e.container != nil {
		_ = e.container.Terminate(e.ctx)
	}
}

// truncate empties every auth table between specs.
func (e *testEnv) truncate() {
	_, err := e.pool.Exec(e.ctx, `TRUNCATE users, roles, permissions CASCADE`)
	Expect(err).NotTo(HaveOccurred())
}
