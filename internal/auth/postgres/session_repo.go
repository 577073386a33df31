// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contractly Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/contractly/authcore/internal/auth"
)

const sessionColumns = `id, user_id, refresh_token_hash, device_ip, user_agent,
	created_at, expires_at, revoked, revoked_at`

// SessionRepository implements auth.SessionStore using PostgreSQL.
type SessionRepository struct {
	db DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, s *auth.Session) error {
	_, err := conn(ctx, r.db).Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, s.ID.String(), s.UserID.String(), s.RefreshTokenHash, s.DeviceIP, s.UserAgent,
		s.CreatedAt, s.ExpiresAt, s.Revoked, s.RevokedAt)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("user_id", s.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Session, error) {
	row := conn(ctx, r.db).QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE id = $1
	`, id.String())

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").With("session_id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").With("session_id", id.String()).Wrap(err)
	}
	return session, nil
}

// GetActiveByRefreshHash retrieves the unrevoked, unexpired session holding hash.
func (r *SessionRepository) GetActiveByRefreshHash(ctx context.Context, hash string, now time.Time) (*auth.Session, error) {
	row := conn(ctx, r.db).QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE refresh_token_hash = $1 AND NOT revoked AND expires_at > $2
	`, hash, now)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_BY_HASH_FAILED").
			With("operation", "get session by refresh hash").
			Wrap(err)
	}
	return session, nil
}

// Rotate swaps the refresh hash and expiry only while the stored hash still
// equals currentHash. Of two concurrent rotations of the same token, exactly
// one updates the row.
func (r *SessionRepository) Rotate(ctx context.Context, id ulid.ULID, currentHash, newHash string, newExpiry, now time.Time) error {
	result, err := conn(ctx, r.db).Exec(ctx, `
		UPDATE sessions SET refresh_token_hash = $3, expires_at = $4
		WHERE id = $1 AND refresh_token_hash = $2 AND NOT revoked AND expires_at > $5
	`, id.String(), currentHash, newHash, newExpiry, now)
	if err != nil {
		return oops.Code("SESSION_ROTATE_FAILED").
			With("operation", "rotate refresh hash").
			With("session_id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_STALE").With("session_id", id.String()).Wrap(auth.ErrStaleRefreshToken)
	}
	return nil
}

// ListByUser returns every session of the user, newest first.
func (r *SessionRepository) ListByUser(ctx context.Context, userID ulid.ULID) ([]*auth.Session, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID.String())
	if err != nil {
		return nil, oops.Code("SESSION_LIST_FAILED").
			With("operation", "list sessions by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	defer rows.Close()

	var sessions []*auth.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, oops.Code("SESSION_SCAN_FAILED").
				With("operation", "scan session row").
				Wrap(err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("SESSION_ROWS_ERROR").
			With("operation", "iterate session rows").
			Wrap(err)
	}
	return sessions, nil
}

// Revoke revokes one unrevoked session of the user.
func (r *SessionRepository) Revoke(ctx context.Context, userID, id ulid.ULID, now time.Time) error {
	result, err := conn(ctx, r.db).Exec(ctx, `
		UPDATE sessions SET revoked = TRUE, revoked_at = $3, expires_at = LEAST(expires_at, $3)
		WHERE id = $1 AND user_id = $2 AND NOT revoked
	`, id.String(), userID.String(), now)
	if err != nil {
		return oops.Code("SESSION_REVOKE_FAILED").
			With("operation", "revoke session").
			With("session_id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").
			With("user_id", userID.String()).
			With("session_id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// RevokeAllForUser revokes every active session of the user.
// No matching rows is a valid outcome.
func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID ulid.ULID, now time.Time) (int64, error) {
	result, err := conn(ctx, r.db).Exec(ctx, `
		UPDATE sessions SET revoked = TRUE, revoked_at = $2, expires_at = $2
		WHERE user_id = $1 AND NOT revoked AND expires_at > $2
	`, userID.String(), now)
	if err != nil {
		return 0, oops.Code("SESSION_REVOKE_ALL_FAILED").
			With("operation", "revoke sessions by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// RevokeExpired marks every expired, unrevoked session as revoked and
// returns the count.
func (r *SessionRepository) RevokeExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := conn(ctx, r.db).Exec(ctx, `
		UPDATE sessions SET revoked = TRUE, revoked_at = $1
		WHERE NOT revoked AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, oops.Code("SESSION_REVOKE_EXPIRED_FAILED").
			With("operation", "revoke expired sessions").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanSession scans sessionColumns. pgx.ErrNoRows is returned unchanged.
func scanSession(row pgx.Row) (*auth.Session, error) {
	var (
		s         auth.Session
		idStr     string
		userIDStr string
	)
	err := row.Scan(&idStr, &userIDStr, &s.RefreshTokenHash, &s.DeviceIP, &s.UserAgent,
		&s.CreatedAt, &s.ExpiresAt, &s.Revoked, &s.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers add context
		}
		return nil, oops.Code("SESSION_SCAN_FAILED").With("operation", "scan session").Wrap(err)
	}

	if s.ID, err = parseID(idStr, "session_id"); err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").Wrap(err)
	}
	if s.UserID, err = parseID(userIDStr, "user_id"); err != nil {
		return nil, oops.Code("SESSION_INVALID_USER_ID").Wrap(err)
	}
	return &s, nil
}

var _ auth.SessionStore = (*SessionRepository)(nil)
