// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contractly Contributors

// Package store owns the database connection and schema migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ConnectOptions tunes pool creation.
type ConnectOptions struct {
	// MaxConns caps the pool size. Zero keeps the pgx default.
	MaxConns int32
	// PingAttempts is how many times the initial ping is tried.
	PingAttempts uint64
	// PingBackoff is the first retry delay; it doubles up to 5s.
	PingBackoff time.Duration
	Logger      *slog.Logger
}

// DefaultConnectOptions returns sensible startup settings.
func DefaultConnectOptions() ConnectOptions {
	return ConnectOptions{
		PingAttempts: 8,
		PingBackoff:  250 * time.Millisecond,
		Logger:       slog.Default(),
	}
}

// Connect creates a pool for dsn and waits until the database answers a ping.
func Connect(ctx context.Context, dsn string, opts ConnectOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse dsn").Wrap(err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PingAttempts == 0 {
		opts.PingAttempts = 1
	}
	if opts.PingBackoff <= 0 {
		opts.PingBackoff = 250 * time.Millisecond
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	backoff := retry.WithMaxRetries(opts.PingAttempts-1,
		retry.WithCappedDuration(5*time.Second, retry.NewExponential(opts.PingBackoff)))

	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := pool.Ping(ctx); err != nil {
			opts.Logger.WarnContext(ctx, "database not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping").
			With("attempts", attempt).
			Wrap(err)
	}
	return pool, nil
}
