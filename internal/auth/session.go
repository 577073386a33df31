// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contractly Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// RefreshTokenBytes is the amount of randomness in a refresh token (256 bits).
const RefreshTokenBytes = 32

// Session is one authenticated device/client. It references its user by ID only.
type Session struct {
	ID               ulid.ULID
	UserID           ulid.ULID
	RefreshTokenHash string
	DeviceIP         string
	UserAgent        string
	CreatedAt        time.Time
	ExpiresAt        time.Time
	Revoked          bool
	RevokedAt        *time.Time
}

// NewSession creates a validated Session. The ID is supplied by the caller so
// it can be embedded in the access token before the row exists.
// DeviceIP and UserAgent are optional.
func NewSession(id, userID ulid.ULID, refreshTokenHash, deviceIP, userAgent string, createdAt, expiresAt time.Time) (*Session, error) {
	if id.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_ID").Errorf("session ID cannot be zero")
	}
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if refreshTokenHash == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("refresh token hash cannot be empty")
	}
	if !expiresAt.After(createdAt) {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").Errorf("expiry must be after creation time")
	}

	return &Session{
		ID:               id,
		UserID:           userID,
		RefreshTokenHash: refreshTokenHash,
		DeviceIP:         deviceIP,
		UserAgent:        userAgent,
		CreatedAt:        createdAt,
		ExpiresAt:        expiresAt,
	}, nil
}

// IsActiveAt reports whether the session is neither revoked nor expired at t.
func (s *Session) IsActiveAt(t time.Time) bool {
	return !s.Revoked && t.Before(s.ExpiresAt)
}

// Revoke moves the session to its terminal state and pulls its expiry in to
// now (an already-past expiry is kept). Revoking twice keeps the original
// revocation time.
func (s *Session) Revoke(now time.Time) {
	if s.Revoked {
		return
	}
	s.Revoked = true
	s.RevokedAt = &now
	if now.Before(s.ExpiresAt) {
		s.ExpiresAt = now
	}
}

// GenerateRefreshToken creates an opaque random token and its hash.
// The plaintext goes to the client exactly once; only the hash is stored.
func GenerateRefreshToken() (token, hash string, err error) {
	buf := make([]byte, RefreshTokenBytes)
	if _, err = rand.Read(buf); err != nil {
		return "", "", oops.Code("REFRESH_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", RefreshTokenBytes).
			Wrap(err)
	}

	token = base64.RawURLEncoding.EncodeToString(buf)
	return token, HashRefreshToken(token), nil
}

// HashRefreshToken computes the hex SHA-256 of a refresh token.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// VerifyRefreshToken checks a plaintext token against a stored hash in constant time.
func VerifyRefreshToken(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashRefreshToken(token)), []byte(hash)) == 1
}

// SessionStore manages session persistence. Sessions are never physically
// deleted here; revocation is the only terminal transition.
type SessionStore interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// GetByID retrieves a session by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Session, error)

	// GetActiveByRefreshHash returns the session whose current hash matches,
	// provided it is not revoked and not expired at now.
	GetActiveByRefreshHash(ctx context.Context, hash string, now time.Time) (*Session, error)

	// Rotate swaps the refresh hash and expiry only if the stored hash still
	// equals currentHash and the session is active at now.
	// Returns ErrStaleRefreshToken if no row matched.
	Rotate(ctx context.Context, id ulid.ULID, currentHash, newHash string, newExpiry, now time.Time) error

	// ListByUser returns every session of the user, newest first.
	ListByUser(ctx context.Context, userID ulid.ULID) ([]*Session, error)

	// Revoke revokes one active session of the user. Returns ErrNotFound when
	// no active session with that ID belongs to the user.
	Revoke(ctx context.Context, userID, id ulid.ULID, now time.Time) error

	// RevokeAllForUser revokes every active session of the user and returns the count.
	RevokeAllForUser(ctx context.Context, userID ulid.ULID, now time.Time) (int64, error)

	// RevokeExpired marks expired-but-not-revoked sessions as revoked.
	RevokeExpired(ctx context.Context, now time.Time) (int64, error)
}
