// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contractly Contributors

package main

import (
	"bytes"
	"context"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/contractly/authcore/internal/observability"
	"github.com/contractly/authcore/internal/store"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

// mockMigrator implements Migrator for testing.
type mockMigrator struct {
	version  uint
	dirty    bool
	versions []uint
	upErr    error
	calls    []string
	closed   bool
}

func (m *mockMigrator) Up() error {
	m.calls = append(m.calls, "up")
	if m.upErr != nil {
		return m.upErr
	}
	if len(m.versions) > 0 {
		m.version = m.versions[len(m.versions)-1]
	}
	return nil
}

func (m *mockMigrator) Down() error {
	m.calls = append(m.calls, "down")
	m.version = 0
	return nil
}

func (m *mockMigrator) Steps(n int) error {
	m.calls = append(m.calls, "steps")
	m.version = uint(int(m.version) + n) //nolint:gosec // test values are small
	return nil
}

func (m *mockMigrator) Version() (uint, bool, error) {
	return m.version, m.dirty, nil
}

func (m *mockMigrator) Force(version int) error {
	m.calls = append(m.calls, "force")
	m.version = uint(version) //nolint:gosec // test values are small
	m.dirty = false
	return nil
}

func (m *mockMigrator) PendingMigrations() ([]uint, error) {
	var pending []uint
	for _, v := range m.versions {
		if v > m.version {
			pending = append(pending, v)
		}
	}
	return pending, nil
}

func (m *mockMigrator) AppliedMigrations() ([]uint, error) {
	var applied []uint
	for _, v := range m.versions {
		if v <= m.version {
			applied = append(applied, v)
		}
	}
	return applied, nil
}

func (m *mockMigrator) Close() error {
	m.closed = true
	return nil
}

// mockObservabilityServer implements ObservabilityServer for testing.
type mockObservabilityServer struct {
	registry *prometheus.Registry
	started  atomic.Bool
	stopped  atomic.Bool
	startErr error
}

func (m *mockObservabilityServer) Start() (<-chan error, error) {
	if m.startErr != nil {
		return nil, m.startErr
	}
	m.started.Store(true)
	return make(chan error, 1), nil
}

func (m *mockObservabilityServer) Stop(context.Context) error {
	m.stopped.Store(true)
	return nil
}

func (m *mockObservabilityServer) Addr() string { return "127.0.0.1:9100" }

func (m *mockObservabilityServer) Registry() prometheus.Registerer { return m.registry }

// testDeps returns Deps backed by a pgxmock pool, a mock migrator and a mock
// observability server.
func testDeps(t *testing.T) (*Deps, pgxmock.PgxPoolIface, *mockMigrator, *mockObservabilityServer) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	migrator := &mockMigrator{versions: []uint{1, 2, 3}}
	obs := &mockObservabilityServer{registry: prometheus.NewRegistry()}

	deps := &Deps{
		Connect: func(context.Context, string, store.ConnectOptions) (Pool, error) {
			return mock, nil
		},
		MigratorFactory: func(string, *slog.Logger) (Migrator, error) {
			return migrator, nil
		},
		ObservabilityServerFactory: func(string, string, observability.ReadinessChecker, *slog.Logger) ObservabilityServer {
			return obs
		},
	}
	return deps, mock, migrator, obs
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, deps *Deps, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("AUTHCORE_SIGNING_KEY", "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	configFile = ""

	cmd := newRootCmd(deps)
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(append([]string{"--log.format=text"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}
