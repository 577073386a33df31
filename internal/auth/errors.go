// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contractly Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// Store sentinels. Repositories wrap these with oops context; services translate
// them into the coded errors below.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEmail is returned when an insert collides with an existing email.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrStaleRefreshToken is returned when a conditional rotation matched no row.
	ErrStaleRefreshToken = errors.New("refresh token no longer current")
)

// Error codes for expected outcomes. Anything carrying a different code (or none)
// is an infrastructure failure.
const (
	CodeInvalidCredentials    = "AUTH_INVALID_CREDENTIALS"
	CodeAccountBlocked        = "AUTH_ACCOUNT_BLOCKED"
	CodeDuplicateAccount      = "AUTH_DUPLICATE_ACCOUNT"
	CodeWeakPassword          = "AUTH_WEAK_PASSWORD"
	CodeInvalidSpecialization = "AUTH_INVALID_SPECIALIZATION"
	CodeInvalidCompanyData    = "AUTH_INVALID_COMPANY_DATA"
	CodeInvalidToken          = "AUTH_INVALID_TOKEN"
	CodeTokenExpired          = "AUTH_TOKEN_EXPIRED"
	CodeNotFound              = "AUTH_NOT_FOUND"
)

var expectedCodes = map[string]struct{}{
	CodeInvalidCredentials:    {},
	CodeAccountBlocked:        {},
	CodeDuplicateAccount:      {},
	CodeWeakPassword:          {},
	CodeInvalidSpecialization: {},
	CodeInvalidCompanyData:    {},
	CodeInvalidToken:          {},
	CodeTokenExpired:          {},
	CodeNotFound:              {},
}

// ErrorCode returns the oops code carried by err, or "" when err is not an oops error.
func ErrorCode(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := oopsErr.Code().(string)
	return code
}

// IsExpected reports whether err is one of the typed outcomes callers are
// expected to handle. Other errors should be mapped to a generic server error.
func IsExpected(err error) bool {
	_, ok := expectedCodes[ErrorCode(err)]
	return ok
}

// Taxonomy constructors. These never wrap a lower error: oops reports the
// deepest code in a chain, so wrapping a coded store error would leak it.

func errInvalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf("invalid email or password")
}

func errAccountBlocked() error {
	return oops.Code(CodeAccountBlocked).Errorf("account is blocked")
}

func errInvalidToken() error {
	return oops.Code(CodeInvalidToken).Errorf("invalid token")
}

func errTokenExpired() error {
	return oops.Code(CodeTokenExpired).Errorf("token has expired")
}
