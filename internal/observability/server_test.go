// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contractly Contributors

package observability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, readiness ReadinessChecker) *Server {
	t.Helper()
	server := NewServer("127.0.0.1:0", "1.2.3", readiness, slog.New(slog.DiscardHandler))
	_, err := server.Start()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})
	return server
}

func get(t *testing.T, server *Server, path string) (int, string) {
	t.Helper()
	resp, err := http.Get("http://" + server.Addr() + path)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_Metrics(t *testing.T) {
	server := startServer(t, nil)

	logins := prometheus.NewCounter(prometheus.CounterOpts{Name: "authcore_test_total", Help: "test"})
	require.NoError(t, server.Registry().Register(logins))
	logins.Inc()

	status, body := get(t, server, "/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "# HELP")
	assert.Contains(t, body, "go_")
	assert.Contains(t, body, "process_")
	assert.Contains(t, body, `authcore_build_info{version="1.2.3"} 1`)
	assert.Contains(t, body, "authcore_test_total 1")
}

func TestServer_Liveness(t *testing.T) {
	server := startServer(t, func(context.Context) error { return errors.New("db down") })

	status, body := get(t, server, "/healthz/liveness")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok\n", body)
}

func TestServer_Readiness(t *testing.T) {
	tests := []struct {
		name       string
		readiness  ReadinessChecker
		wantStatus int
		wantBody   string
	}{
		{name: "nil checker", readiness: nil, wantStatus: http.StatusOK, wantBody: "ok\n"},
		{name: "ready", readiness: func(context.Context) error { return nil }, wantStatus: http.StatusOK, wantBody: "ok\n"},
		{
			name:       "not ready",
			readiness:  func(context.Context) error { return errors.New("db down") },
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "not ready\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := startServer(t, tt.readiness)
			status, body := get(t, server, "/healthz/readiness")
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

func TestServer_DoubleStartFails(t *testing.T) {
	server := startServer(t, nil)
	_, err := server.Start()
	assert.Error(t, err)
}

func TestServer_StopIdempotent(t *testing.T) {
	server := NewServer("127.0.0.1:0", "dev", nil, slog.New(slog.DiscardHandler))
	assert.NoError(t, server.Stop(context.Background()))
	assert.Empty(t, server.Addr())
}

func TestServer_ErrorChannelClosesOnShutdown(t *testing.T) {
	server := NewServer("127.0.0.1:0", "dev", nil, slog.New(slog.DiscardHandler))
	errCh, err := server.Start()
	require.NoError(t, err)

	require.NoError(t, server.Stop(context.Background()))

	select {
	case err, ok := <-errCh:
		assert.False(t, ok, "channel should be closed without an error, got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("error channel was not closed")
	}
}
