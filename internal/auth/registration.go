// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contractly Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/samber/oops"
)

// RegistrationRequest is the canonical input of account creation. Length and
// character-class checks on the password belong to the caller.
type RegistrationRequest struct {
	Email           string
	Password        string
	Profile         UserProfile
	Specializations []Specialization
}

// RegistrationService validates and creates accounts. It creates no session
// or token, so it can be reused outside the login flow.
type RegistrationService struct {
	accounts AccountStore
	hasher   PasswordHasher
	logger   *slog.Logger
}

// NewRegistrationService creates a RegistrationService.
func NewRegistrationService(accounts AccountStore, hasher PasswordHasher, logger *slog.Logger) (*RegistrationService, error) {
	if accounts == nil {
		return nil, oops.Errorf("account store is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RegistrationService{accounts: accounts, hasher: hasher, logger: logger}, nil
}

// Register validates req and persists a new user. Checks run in a fixed order
// so the reported code is deterministic: duplicate email, weak password,
// specializations, company data.
func (s *RegistrationService) Register(ctx context.Context, req RegistrationRequest) (*User, error) {
	email := NormalizeEmail(req.Email)

	_, err := s.accounts.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, errDuplicateAccount()
	case !errors.Is(err, ErrNotFound):
		return nil, oops.Code("REGISTER_FAILED").
			With("operation", "check existing email").
			Wrap(err)
	}

	if err := CheckPasswordStrength(req.Password, email, req.Profile.FirstName, req.Profile.LastName); err != nil {
		return nil, err
	}

	specs, err := NormalizeSpecializations(req.Specializations)
	if err != nil {
		return nil, err
	}

	profile, err := NormalizeProfile(req.Profile)
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, oops.Code("REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(email, hash, profile, specs)
	if err != nil {
		return nil, oops.Code("REGISTER_FAILED").
			With("operation", "build user").
			Wrap(err)
	}

	if err := s.accounts.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, errDuplicateAccount()
		}
		return nil, oops.Code("REGISTER_FAILED").
			With("operation", "persist user").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "account registered",
		"user_id", user.ID.String(),
		"specializations", len(user.Specializations),
	)
	return user, nil
}

// CheckPasswordStrength rejects passwords containing the email local part,
// the first name or the last name, compared case-insensitively. Empty
// components are ignored.
func CheckPasswordStrength(password, email, firstName, lastName string) error {
	lowered := strings.ToLower(password)
	for _, part := range []string{emailLocalPart(NormalizeEmail(email)), firstName, lastName} {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if strings.Contains(lowered, part) {
			return oops.Code(CodeWeakPassword).
				Errorf("password must not contain your email or name")
		}
	}
	return nil
}
