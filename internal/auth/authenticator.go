// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contractly Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/contractly/authcore/pkg/errutil"
)

// dummyPasswordHash is verified against when the email is unknown so the
// response time does not reveal whether the account exists. It never matches.
//
//nolint:gosec // G101: intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// AuthenticationService verifies credentials under the lockout policy.
type AuthenticationService struct {
	accounts AccountStore
	tx       Transactor
	hasher   PasswordHasher
	policy   LockoutPolicy
	logger   *slog.Logger
	now      func() time.Time
}

// AuthenticationOption configures an AuthenticationService.
type AuthenticationOption func(*AuthenticationService)

// WithLockoutPolicy overrides the default lockout policy.
func WithLockoutPolicy(p LockoutPolicy) AuthenticationOption {
	return func(s *AuthenticationService) { s.policy = p }
}

// WithAuthenticationClock overrides the clock.
func WithAuthenticationClock(now func() time.Time) AuthenticationOption {
	return func(s *AuthenticationService) { s.now = now }
}

// WithAuthenticationLogger sets the logger.
func WithAuthenticationLogger(logger *slog.Logger) AuthenticationOption {
	return func(s *AuthenticationService) { s.logger = logger }
}

// NewAuthenticationService creates an AuthenticationService.
func NewAuthenticationService(accounts AccountStore, tx Transactor, hasher PasswordHasher, opts ...AuthenticationOption) (*AuthenticationService, error) {
	if accounts == nil {
		return nil, oops.Errorf("account store is required")
	}
	if tx == nil {
		return nil, oops.Errorf("transactor is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}

	s := &AuthenticationService{
		accounts: accounts,
		tx:       tx,
		hasher:   hasher,
		policy:   DefaultLockoutPolicy(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.policy.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// outcome is decided inside the transaction and surfaced after commit, so
// lockout state is persisted on both success and failure.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeUnknownEmail
	outcomeBlocked
	outcomeWrongPassword
	outcomeInactive
)

// Authenticate verifies email and password. email must already be normalized.
// Every call against an existing account persists its lockout state; attempts
// on the same account serialize on the account row.
func (s *AuthenticationService) Authenticate(ctx context.Context, email, password string) (*User, error) {
	var (
		user   *User
		result outcome
	)

	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.accounts.GetByEmailForUpdate(ctx, email)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				_, _ = s.hasher.Verify(password, dummyPasswordHash) //nolint:errcheck // timing only
				result = outcomeUnknownEmail
				return nil
			}
			return oops.Code("AUTH_LOOKUP_FAILED").
				With("operation", "get account by email").
				Wrap(err)
		}

		now := s.now()
		state := lockoutOf(user)
		if state.IsBlockedAt(now) {
			result = outcomeBlocked
			return nil
		}

		valid, err := s.hasher.Verify(password, user.PasswordHash)
		if err != nil {
			return oops.Code("AUTH_VERIFY_FAILED").
				With("operation", "verify password").
				With("user_id", user.ID.String()).
				Wrap(err)
		}

		if !valid {
			state = s.policy.RecordFailure(state, now)
			result = outcomeWrongPassword
		} else {
			state = s.policy.RecordSuccess()
			result = outcomeSuccess
			if !user.Active {
				result = outcomeInactive
			}
		}

		if err := s.accounts.UpdateLockout(ctx, user.ID, state.FailedAttempts, state.BlockedUntil); err != nil {
			return oops.Code("AUTH_LOCKOUT_PERSIST_FAILED").
				With("operation", "persist lockout state").
				With("user_id", user.ID.String()).
				Wrap(err)
		}
		user.FailedLoginAttempts = state.FailedAttempts
		user.LoginBlockedUntil = state.BlockedUntil
		return nil
	})
	if err != nil {
		errutil.LogError(s.logger, "authentication failed with infrastructure error", err)
		return nil, err
	}

	switch result {
	case outcomeSuccess:
		s.upgradeHash(ctx, user, password)
		return user, nil
	case outcomeWrongPassword:
		if user.LoginBlockedUntil != nil {
			s.logger.WarnContext(ctx, "account blocked after repeated failures",
				"user_id", user.ID.String(),
				"failed_attempts", user.FailedLoginAttempts,
				"blocked_until", user.LoginBlockedUntil,
			)
		}
		return nil, errInvalidCredentials()
	case outcomeBlocked, outcomeInactive:
		return nil, errAccountBlocked()
	default:
		return nil, errInvalidCredentials()
	}
}

// upgradeHash re-hashes the password when the stored hash uses outdated
// parameters. It runs after the lockout transaction has committed; failure
// leaves the old hash in place.
func (s *AuthenticationService) upgradeHash(ctx context.Context, user *User, password string) {
	if !s.hasher.NeedsUpgrade(user.PasswordHash) {
		return
	}
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		return
	}
	if err := s.accounts.UpdatePassword(ctx, user.ID, newHash); err != nil {
		s.logger.WarnContext(ctx, "password hash upgrade failed", "user_id", user.ID.String(), "error", err)
		return
	}
	user.PasswordHash = newHash
}
