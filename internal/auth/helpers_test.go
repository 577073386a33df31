// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contractly Contributors

package auth_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/contractly/authcore/internal/auth"
	"github.com/contractly/authcore/internal/auth/memory"
)

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

// clock is a settable time source shared by every service of a harness.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// harness is a fully wired auth core on the in-memory store.
type harness struct {
	store        *memory.Store
	clock        *clock
	hasher       *auth.Argon2idHasher
	registry     *prometheus.Registry
	metrics      *auth.Metrics
	resolver     *auth.PermissionResolver
	auth         *auth.AuthenticationService
	registration *auth.RegistrationService
	tokens       *auth.TokenService
	orchestrator *auth.AuthOrchestrator
}

func testTokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		Issuer:     "authcore-test",
		Audience:   "authcore-test-api",
		SigningKey: testSigningKey,
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	}
}

func newHarness(t *testing.T, opts ...auth.OrchestratorOption) *harness {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	h := &harness{
		store:    memory.New(),
		clock:    newClock(),
		hasher:   auth.NewArgon2idHasherWithParams(fastParams),
		registry: prometheus.NewRegistry(),
	}
	h.metrics = auth.NewMetrics(h.registry)

	var err error
	h.resolver, err = auth.NewPermissionResolver(h.store.Permissions(), logger)
	require.NoError(t, err)

	h.auth, err = auth.NewAuthenticationService(h.store.Accounts(), h.store, h.hasher,
		auth.WithAuthenticationClock(h.clock.Now),
		auth.WithAuthenticationLogger(logger),
	)
	require.NoError(t, err)

	h.registration, err = auth.NewRegistrationService(h.store.Accounts(), h.hasher, logger)
	require.NoError(t, err)

	h.tokens, err = auth.NewTokenService(testTokenConfig(), h.store.Sessions(), h.store.Accounts(), h.resolver,
		auth.WithTokenClock(h.clock.Now),
		auth.WithTokenLogger(logger),
	)
	require.NoError(t, err)

	base := []auth.OrchestratorOption{
		auth.WithMetrics(h.metrics),
		auth.WithOrchestratorLogger(logger),
		auth.WithOrchestratorClock(h.clock.Now),
	}
	h.orchestrator, err = auth.NewAuthOrchestrator(auth.OrchestratorDeps{
		Authenticator: h.auth,
		Registration:  h.registration,
		Resolver:      h.resolver,
		Tokens:        h.tokens,
		Accounts:      h.store.Accounts(),
		Sessions:      h.store.Sessions(),
		Permissions:   h.store.Permissions(),
		Transactor:    h.store,
		Hasher:        h.hasher,
	}, append(base, opts...)...)
	require.NoError(t, err)

	return h
}

func registration(email, password string) auth.RegistrationRequest {
	return auth.RegistrationRequest{
		Email:    email,
		Password: password,
		Profile: auth.UserProfile{
			FirstName: "Alice",
			LastName:  "Smith",
			Skills:    []string{"go"},
		},
		Specializations: []auth.Specialization{auth.SpecBackend},
	}
}

// createUser registers an account directly, without opening a session.
func (h *harness) createUser(t *testing.T, email, password string) *auth.User {
	t.Helper()
	u, err := h.registration.Register(context.Background(), registration(email, password))
	require.NoError(t, err)
	return u
}

// seedRole declares codes and a role granting all of them.
func (h *harness) seedRole(t *testing.T, role string, codes ...string) {
	t.Helper()
	ctx := context.Background()
	perms := h.store.Permissions()
	for _, c := range codes {
		_, err := perms.UpsertPermission(ctx, c, true)
		require.NoError(t, err)
	}
	_, err := perms.UpsertRole(ctx, role, true, codes)
	require.NoError(t, err)
}

func (h *harness) assignRole(t *testing.T, userID ulid.ULID, role string) {
	t.Helper()
	require.NoError(t, h.store.Permissions().AssignRole(context.Background(), userID, role))
}
