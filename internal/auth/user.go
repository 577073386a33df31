// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contractly Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Specialization is a professional tag a user registers with.
type Specialization string

// The fixed set of specializations accepted at registration.
const (
	SpecFrontend   Specialization = "frontend"
	SpecBackend    Specialization = "backend"
	SpecFullstack  Specialization = "fullstack"
	SpecMobile     Specialization = "mobile"
	SpecDevOps     Specialization = "devops"
	SpecData       Specialization = "data"
	SpecDesign     Specialization = "design"
	SpecQA         Specialization = "qa"
	SpecManagement Specialization = "management"
)

var knownSpecializations = map[Specialization]struct{}{
	SpecFrontend:   {},
	SpecBackend:    {},
	SpecFullstack:  {},
	SpecMobile:     {},
	SpecDevOps:     {},
	SpecData:       {},
	SpecDesign:     {},
	SpecQA:         {},
	SpecManagement: {},
}

// Valid reports whether s belongs to the enumerated set.
func (s Specialization) Valid() bool {
	_, ok := knownSpecializations[s]
	return ok
}

// User is the identity aggregate. It exclusively owns its Profile.
type User struct {
	ID                  ulid.ULID
	Email               string
	PasswordHash        string
	Active              bool
	FailedLoginAttempts int
	LoginBlockedUntil   *time.Time
	Specializations     []Specialization
	Profile             UserProfile
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// UserProfile holds personal and company details. It has no identity of its own.
type UserProfile struct {
	FirstName    string
	LastName     string
	Phone        string
	Skills       []string
	Country      string
	City         string
	Street       string
	PostalCode   string
	CompanyName  *string
	CompanyTaxID *string
}

// HasCompany reports whether both company fields are set.
func (p UserProfile) HasCompany() bool {
	return nonBlank(p.CompanyName) && nonBlank(p.CompanyTaxID)
}

// companyConsistent holds when the company name and tax id are both present or both absent.
func (p UserProfile) companyConsistent() bool {
	return nonBlank(p.CompanyName) == nonBlank(p.CompanyTaxID)
}

func nonBlank(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}

// NormalizeEmail trims and case-folds an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// emailLocalPart returns the part of an address before the last '@'.
func emailLocalPart(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 {
		return email[:i]
	}
	return email
}

// dedupeSpecializations drops duplicates while keeping first-seen order.
func dedupeSpecializations(specs []Specialization) []Specialization {
	seen := make(map[Specialization]struct{}, len(specs))
	out := make([]Specialization, 0, len(specs))
	for _, s := range specs {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// NormalizeSpecializations dedupes specs in first-seen order and checks that
// at least one remains and every tag is exactly one of the fixed set. Tags are
// not case-folded.
func NormalizeSpecializations(specs []Specialization) ([]Specialization, error) {
	out := dedupeSpecializations(specs)
	if len(out) == 0 {
		return nil, oops.Code(CodeInvalidSpecialization).
			Errorf("at least one specialization is required")
	}
	for _, s := range out {
		if !s.Valid() {
			return nil, oops.Code(CodeInvalidSpecialization).
				With("specialization", string(s)).
				Errorf("unknown specialization %q", s)
		}
	}
	return out, nil
}

// NormalizeProfile trims the names and collapses blank company fields to nil.
// The company name and tax id must be present together or absent together.
func NormalizeProfile(p UserProfile) (UserProfile, error) {
	if !p.companyConsistent() {
		return UserProfile{}, oops.Code(CodeInvalidCompanyData).
			Errorf("company name and tax id must be provided together")
	}
	if !nonBlank(p.CompanyName) {
		p.CompanyName = nil
	}
	if !nonBlank(p.CompanyTaxID) {
		p.CompanyTaxID = nil
	}
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	return p, nil
}

// NewUser creates a validated, active User with a fresh ID.
func NewUser(email, passwordHash string, profile UserProfile, specs []Specialization) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, oops.Code("USER_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if passwordHash == "" {
		return nil, oops.Code("USER_INVALID_HASH").Errorf("password hash cannot be empty")
	}

	now := time.Now()
	return &User{
		ID:              ulid.Make(),
		Email:           email,
		PasswordHash:    passwordHash,
		Active:          true,
		Specializations: dedupeSpecializations(specs),
		Profile:         profile,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// AccountStore manages user persistence. Methods join the transaction carried
// by ctx when one is present.
type AccountStore interface {
	// Create stores a new user with its profile and specializations.
	// Returns ErrDuplicateEmail if the email is taken.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by email (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByEmailForUpdate is GetByEmail that also locks the row until the
	// surrounding transaction ends.
	GetByEmailForUpdate(ctx context.Context, email string) (*User, error)

	// UpdateLockout persists the failed-attempt counter and block timestamp.
	UpdateLockout(ctx context.Context, id ulid.ULID, failedAttempts int, blockedUntil *time.Time) error

	// UpdatePassword replaces the password hash.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// UpdateProfile replaces the profile record. The profile is passed
	// through NormalizeProfile first.
	UpdateProfile(ctx context.Context, id ulid.ULID, profile UserProfile) error

	// SetSpecializations replaces the ordered specialization set. The set is
	// passed through NormalizeSpecializations first.
	SetSpecializations(ctx context.Context, id ulid.ULID, specs []Specialization) error

	// SetActive toggles the active flag.
	SetActive(ctx context.Context, id ulid.ULID, active bool) error

	// Delete removes a user and its profile.
	Delete(ctx context.Context, id ulid.ULID) error
}
