// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contractly Contributors

package memory

import (
	"context"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/contractly/authcore/internal/auth"
)

// Sessions implements auth.SessionStore.
type Sessions struct {
	s *Store
}

// Create implements auth.SessionStore.
func (ss *Sessions) Create(ctx context.Context, session *auth.Session) error {
	return ss.s.write(ctx, func(st *state) error {
		if _, ok := st.users[session.UserID]; !ok {
			return oops.With("user_id", session.UserID.String()).Errorf("session references unknown user")
		}
		if _, exists := st.sessions[session.ID]; exists {
			return oops.With("session_id", session.ID.String()).Errorf("session already exists")
		}
		st.sessions[session.ID] = copySession(session)
		return nil
	})
}

// GetByID implements auth.SessionStore.
func (ss *Sessions) GetByID(_ context.Context, id ulid.ULID) (*auth.Session, error) {
	var out *auth.Session
	err := ss.s.read(func(st *state) error {
		sess, ok := st.sessions[id]
		if !ok {
			return oops.With("session_id", id.String()).Wrap(auth.ErrNotFound)
		}
		out = copySession(sess)
		return nil
	})
	return out, err
}

// GetActiveByRefreshHash implements auth.SessionStore.
func (ss *Sessions) GetActiveByRefreshHash(_ context.Context, hash string, now time.Time) (*auth.Session, error) {
	var out *auth.Session
	err := ss.s.read(func(st *state) error {
		for _, sess := range st.sessions {
			if sess.RefreshTokenHash == hash && sess.IsActiveAt(now) {
				out = copySession(sess)
				return nil
			}
		}
		return oops.Wrap(auth.ErrNotFound)
	})
	return out, err
}

// Rotate implements auth.SessionStore.
func (ss *Sessions) Rotate(ctx context.Context, id ulid.ULID, currentHash, newHash string, newExpiry, now time.Time) error {
	return ss.s.write(ctx, func(st *state) error {
		sess, ok := st.sessions[id]
		if !ok || sess.RefreshTokenHash != currentHash || !sess.IsActiveAt(now) {
			return oops.With("session_id", id.String()).Wrap(auth.ErrStaleRefreshToken)
		}
		sess.RefreshTokenHash = newHash
		sess.ExpiresAt = newExpiry
		return nil
	})
}

// ListByUser implements auth.SessionStore.
func (ss *Sessions) ListByUser(_ context.Context, userID ulid.ULID) ([]*auth.Session, error) {
	var out []*auth.Session
	err := ss.s.read(func(st *state) error {
		for _, sess := range st.sessions {
			if sess.UserID == userID {
				out = append(out, copySession(sess))
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b *auth.Session) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return b.ID.Compare(a.ID)
	})
	return out, err
}

// Revoke implements auth.SessionStore.
func (ss *Sessions) Revoke(ctx context.Context, userID, id ulid.ULID, now time.Time) error {
	return ss.s.write(ctx, func(st *state) error {
		sess, ok := st.sessions[id]
		if !ok || sess.UserID != userID || sess.Revoked {
			return oops.
				With("user_id", userID.String()).
				With("session_id", id.String()).
				Wrap(auth.ErrNotFound)
		}
		sess.Revoke(now)
		return nil
	})
}

// RevokeAllForUser implements auth.SessionStore.
func (ss *Sessions) RevokeAllForUser(ctx context.Context, userID ulid.ULID, now time.Time) (int64, error) {
	var n int64
	err := ss.s.write(ctx, func(st *state) error {
		for _, sess := range st.sessions {
			if sess.UserID == userID && sess.IsActiveAt(now) {
				sess.Revoke(now)
				n++
			}
		}
		return nil
	})
	return n, err
}

// RevokeExpired implements auth.SessionStore.
func (ss *Sessions) RevokeExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := ss.s.write(ctx, func(st *state) error {
		for _, sess := range st.sessions {
			if !sess.Revoked && !now.Before(sess.ExpiresAt) {
				sess.Revoke(now)
				n++
			}
		}
		return nil
	})
	return n, err
}
