// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contractly Contributors

package memory

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/contractly/authcore/internal/auth"
)

// Accounts implements auth.AccountStore.
type Accounts struct {
	s *Store
}

// Create implements auth.AccountStore.
func (a *Accounts) Create(ctx context.Context, user *auth.User) error {
	return a.s.write(ctx, func(st *state) error {
		email := auth.NormalizeEmail(user.Email)
		if _, taken := st.emails[email]; taken {
			return oops.With("email", email).Wrap(auth.ErrDuplicateEmail)
		}
		if _, exists := st.users[user.ID]; exists {
			return oops.With("user_id", user.ID.String()).Errorf("user already exists")
		}
		u := copyUser(user)
		u.Email = email
		st.users[u.ID] = u
		st.emails[email] = u.ID
		return nil
	})
}

// GetByID implements auth.AccountStore.
func (a *Accounts) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	var out *auth.User
	err := a.s.read(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return oops.With("user_id", id.String()).Wrap(auth.ErrNotFound)
		}
		out = copyUser(u)
		return nil
	})
	return out, err
}

// GetByEmail implements auth.AccountStore.
func (a *Accounts) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	var out *auth.User
	err := a.s.read(func(st *state) error {
		id, ok := st.emails[auth.NormalizeEmail(email)]
		if !ok {
			return oops.With("email", email).Wrap(auth.ErrNotFound)
		}
		out = copyUser(st.users[id])
		return nil
	})
	return out, err
}

// GetByEmailForUpdate implements auth.AccountStore. Transactions are
// serialized, so the plain read already holds the row for the caller.
func (a *Accounts) GetByEmailForUpdate(ctx context.Context, email string) (*auth.User, error) {
	return a.GetByEmail(ctx, email)
}

// UpdateLockout implements auth.AccountStore.
func (a *Accounts) UpdateLockout(ctx context.Context, id ulid.ULID, failedAttempts int, blockedUntil *time.Time) error {
	return a.update(ctx, id, func(u *auth.User) {
		u.FailedLoginAttempts = failedAttempts
		if blockedUntil != nil {
			t := *blockedUntil
			u.LoginBlockedUntil = &t
		} else {
			u.LoginBlockedUntil = nil
		}
	})
}

// UpdatePassword implements auth.AccountStore.
func (a *Accounts) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	return a.update(ctx, id, func(u *auth.User) { u.PasswordHash = passwordHash })
}

// UpdateProfile implements auth.AccountStore.
func (a *Accounts) UpdateProfile(ctx context.Context, id ulid.ULID, profile auth.UserProfile) error {
	p, err := auth.NormalizeProfile(profile)
	if err != nil {
		return err
	}
	return a.update(ctx, id, func(u *auth.User) { u.Profile = copyProfile(p) })
}

// SetSpecializations implements auth.AccountStore.
func (a *Accounts) SetSpecializations(ctx context.Context, id ulid.ULID, specs []auth.Specialization) error {
	normalized, err := auth.NormalizeSpecializations(specs)
	if err != nil {
		return err
	}
	return a.update(ctx, id, func(u *auth.User) { u.Specializations = normalized })
}

// SetActive implements auth.AccountStore.
func (a *Accounts) SetActive(ctx context.Context, id ulid.ULID, active bool) error {
	return a.update(ctx, id, func(u *auth.User) { u.Active = active })
}

// Delete implements auth.AccountStore. Sessions, role assignments and
// overrides of the user go with it.
func (a *Accounts) Delete(ctx context.Context, id ulid.ULID) error {
	return a.s.write(ctx, func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return oops.With("user_id", id.String()).Wrap(auth.ErrNotFound)
		}
		delete(st.emails, u.Email)
		delete(st.users, id)
		delete(st.assignments, id)
		delete(st.overrides, id)
		for sid, sess := range st.sessions {
			if sess.UserID == id {
				delete(st.sessions, sid)
			}
		}
		return nil
	})
}

func (a *Accounts) update(ctx context.Context, id ulid.ULID, fn func(u *auth.User)) error {
	return a.s.write(ctx, func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return oops.With("user_id", id.String()).Wrap(auth.ErrNotFound)
		}
		fn(u)
		u.UpdatedAt = time.Now()
		return nil
	})
}
