// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contractly Contributors

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/contractly/authcore/pkg/errutil"
)

// DefaultReapInterval is how often the reaper sweeps when not configured.
const DefaultReapInterval = 10 * time.Minute

// SessionReaper periodically revokes sessions that expired without being
// revoked. It is storage hygiene only; expired sessions are already unusable.
type SessionReaper struct {
	sessions SessionStore
	interval time.Duration
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewSessionReaper creates a SessionReaper.
func NewSessionReaper(sessions SessionStore, interval time.Duration, metrics *Metrics, logger *slog.Logger) (*SessionReaper, error) {
	if sessions == nil {
		return nil, oops.Errorf("session store is required")
	}
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionReaper{
		sessions: sessions,
		interval: interval,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Sweep runs one pass and returns the number of sessions revoked.
func (r *SessionReaper) Sweep(ctx context.Context) (int64, error) {
	n, err := r.sessions.RevokeExpired(ctx, r.now())
	if err != nil {
		return 0, oops.Code("SESSION_REAP_FAILED").With("operation", "revoke expired sessions").Wrap(err)
	}
	r.metrics.revoked("expired", n)
	if n > 0 {
		r.logger.InfoContext(ctx, "revoked expired sessions", "count", n)
	}
	return n, nil
}

// Run sweeps on every tick until ctx is cancelled. Sweep failures are logged
// and do not stop the loop.
func (r *SessionReaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				errutil.LogError(r.logger, "session reaper sweep failed", err)
			}
		}
	}
}
