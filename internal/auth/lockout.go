// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contractly Contributors

package auth

import (
	"time"

	"github.com/samber/oops"
)

// Lockout defaults.
const (
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = 15 * time.Minute
)

// LockoutPolicy blocks authentication after Threshold consecutive failures
// for Duration.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// DefaultLockoutPolicy returns the 5 failures / 15 minutes policy.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		Threshold: DefaultLockoutThreshold,
		Duration:  DefaultLockoutDuration,
	}
}

// Validate checks the policy values.
func (p LockoutPolicy) Validate() error {
	if p.Threshold < 1 {
		return oops.Code("LOCKOUT_INVALID_THRESHOLD").
			With("threshold", p.Threshold).
			Errorf("lockout threshold must be at least 1")
	}
	if p.Duration <= 0 {
		return oops.Code("LOCKOUT_INVALID_DURATION").
			With("duration", p.Duration.String()).
			Errorf("lockout duration must be positive")
	}
	return nil
}

// LockoutState is the pair of lockout fields stored on an account.
type LockoutState struct {
	FailedAttempts int
	BlockedUntil   *time.Time
}

// IsBlockedAt reports whether the block window is still open at now.
func (s LockoutState) IsBlockedAt(now time.Time) bool {
	return s.BlockedUntil != nil && s.BlockedUntil.After(now)
}

// RecordFailure returns the state after one more failed attempt.
// A block whose window has already elapsed starts a fresh count.
func (p LockoutPolicy) RecordFailure(s LockoutState, now time.Time) LockoutState {
	failures := s.FailedAttempts
	if s.BlockedUntil != nil && !s.BlockedUntil.After(now) {
		failures = 0
	}
	failures++

	next := LockoutState{FailedAttempts: failures}
	if failures >= p.Threshold {
		until := now.Add(p.Duration)
		next.BlockedUntil = &until
	}
	return next
}

// RecordSuccess returns the zero state.
func (p LockoutPolicy) RecordSuccess() LockoutState {
	return LockoutState{}
}

// lockoutOf extracts the lockout fields from a user.
func lockoutOf(u *User) LockoutState {
	return LockoutState{FailedAttempts: u.FailedLoginAttempts, BlockedUntil: u.LoginBlockedUntil}
}
