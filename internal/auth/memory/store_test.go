// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contractly Contributors

package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contractly/authcore/internal/auth"
	"github.com/contractly/authcore/internal/auth/memory"
	"github.com/contractly/authcore/pkg/errutil"
)

func newUser(t *testing.T, email string) *auth.User {
	t.Helper()
	company := "Acme"
	u, err := auth.NewUser(email, "$argon2id$hash", auth.UserProfile{
		FirstName:   "Alice",
		Skills:      []string{"go"},
		CompanyName: &company,
	}, []auth.Specialization{auth.SpecBackend})
	require.NoError(t, err)
	return u
}

func newSession(t *testing.T, userID ulid.ULID, hash string, createdAt time.Time) *auth.Session {
	t.Helper()
	s, err := auth.NewSession(ulid.Make(), userID, hash, "10.0.0.1", "ua", createdAt, createdAt.Add(time.Hour))
	require.NoError(t, err)
	return s
}

func TestStore_TransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	u := newUser(t, "alice@example.com")

	boom := errors.New("boom")
	err := s.InTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, s.Accounts().Create(ctx, u))
		require.NoError(t, s.Sessions().Create(ctx, newSession(t, u.ID, "h1", time.Now())))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.Accounts().GetByID(ctx, u.ID)
	assert.ErrorIs(t, err, auth.ErrNotFound)
	sessions, err := s.Sessions().ListByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestStore_TransactionCommits(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	u := newUser(t, "alice@example.com")

	require.NoError(t, s.InTransaction(ctx, func(ctx context.Context) error {
		return s.Accounts().Create(ctx, u)
	}))

	got, err := s.Accounts().GetByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestStore_NestedTransactionJoinsOuter(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	u := newUser(t, "alice@example.com")

	err := s.InTransaction(ctx, func(ctx context.Context) error {
		if err := s.InTransaction(ctx, func(ctx context.Context) error {
			return s.Accounts().Create(ctx, u)
		}); err != nil {
			return err
		}
		return errors.New("outer fails")
	})
	require.Error(t, err)

	_, err = s.Accounts().GetByID(ctx, u.ID)
	assert.ErrorIs(t, err, auth.ErrNotFound, "inner work rolls back with the outer transaction")
}

func TestAccounts_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.Accounts().Create(ctx, newUser(t, "alice@example.com")))

	err := s.Accounts().Create(ctx, newUser(t, "Alice@Example.com"))
	assert.ErrorIs(t, err, auth.ErrDuplicateEmail)
}

func TestAccounts_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	u := newUser(t, "alice@example.com")
	require.NoError(t, s.Accounts().Create(ctx, u))

	u.Profile.Skills[0] = "mutated"
	*u.Profile.CompanyName = "mutated"

	got, err := s.Accounts().GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "go", got.Profile.Skills[0])
	assert.Equal(t, "Acme", *got.Profile.CompanyName)

	got.Specializations[0] = auth.SpecQA
	again, err := s.Accounts().GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.SpecBackend, again.Specializations[0])
}

func TestAccounts_UpdateLockoutAndDelete(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	u := newUser(t, "alice@example.com")
	require.NoError(t, s.Accounts().Create(ctx, u))
	require.NoError(t, s.Sessions().Create(ctx, newSession(t, u.ID, "h1", time.Now())))

	until := time.Now().Add(time.Minute)
	require.NoError(t, s.Accounts().UpdateLockout(ctx, u.ID, 5, &until))
	got, err := s.Accounts().GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.FailedLoginAttempts)
	assert.True(t, got.LoginBlockedUntil.Equal(until))

	require.NoError(t, s.Accounts().Delete(ctx, u.ID))
	_, err = s.Accounts().GetByEmail(ctx, u.Email)
	assert.ErrorIs(t, err, auth.ErrNotFound)
	sessions, err := s.Sessions().ListByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	assert.ErrorIs(t, s.Accounts().SetActive(ctx, u.ID, false), auth.ErrNotFound)
}

func TestAccounts_UpdateProfileValidates(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	u := newUser(t, "alice@example.com")
	require.NoError(t, s.Accounts().Create(ctx, u))

	taxID := "PL123"
	err := s.Accounts().UpdateProfile(ctx, u.ID, auth.UserProfile{FirstName: "Alice", CompanyTaxID: &taxID})
	errutil.AssertErrorCode(t, err, auth.CodeInvalidCompanyData)

	got, err := s.Accounts().GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", *got.Profile.CompanyName)
	assert.Nil(t, got.Profile.CompanyTaxID)

	require.NoError(t, s.Accounts().UpdateProfile(ctx, u.ID, auth.UserProfile{FirstName: "  Bob "}))
	got, err = s.Accounts().GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bob", got.Profile.FirstName)
	assert.Nil(t, got.Profile.CompanyName)
}

func TestAccounts_SetSpecializationsValidates(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	u := newUser(t, "alice@example.com")
	require.NoError(t, s.Accounts().Create(ctx, u))

	for _, specs := range [][]auth.Specialization{nil, {"Backend"}, {auth.SpecQA, "astrology"}} {
		err := s.Accounts().SetSpecializations(ctx, u.ID, specs)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidSpecialization)
	}

	require.NoError(t, s.Accounts().SetSpecializations(ctx, u.ID,
		[]auth.Specialization{auth.SpecQA, auth.SpecData, auth.SpecQA}))
	got, err := s.Accounts().GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []auth.Specialization{auth.SpecQA, auth.SpecData}, got.Specializations)
}

func TestSessions_Rotate(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	u := newUser(t, "alice@example.com")
	require.NoError(t, s.Accounts().Create(ctx, u))
	now := time.Now()
	sess := newSession(t, u.ID, "h1", now)
	require.NoError(t, s.Sessions().Create(ctx, sess))

	require.NoError(t, s.Sessions().Rotate(ctx, sess.ID, "h1", "h2", now.Add(2*time.Hour), now))

	err := s.Sessions().Rotate(ctx, sess.ID, "h1", "h3", now.Add(2*time.Hour), now)
	assert.ErrorIs(t, err, auth.ErrStaleRefreshToken)

	_, err = s.Sessions().GetActiveByRefreshHash(ctx, "h1", now)
	assert.ErrorIs(t, err, auth.ErrNotFound)
	got, err := s.Sessions().GetActiveByRefreshHash(ctx, "h2", now)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
}

func TestSessions_Revocation(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	u := newUser(t, "alice@example.com")
	other := newUser(t, "bob@example.com")
	require.NoError(t, s.Accounts().Create(ctx, u))
	require.NoError(t, s.Accounts().Create(ctx, other))

	now := time.Now()
	a := newSession(t, u.ID, "a", now)
	b := newSession(t, u.ID, "b", now.Add(time.Second))
	c := newSession(t, other.ID, "c", now)
	for _, sess := range []*auth.Session{a, b, c} {
		require.NoError(t, s.Sessions().Create(ctx, sess))
	}

	assert.ErrorIs(t, s.Sessions().Revoke(ctx, other.ID, a.ID, now), auth.ErrNotFound, "foreign session")
	require.NoError(t, s.Sessions().Revoke(ctx, u.ID, a.ID, now))
	assert.ErrorIs(t, s.Sessions().Revoke(ctx, u.ID, a.ID, now), auth.ErrNotFound, "already revoked")

	n, err := s.Sessions().RevokeAllForUser(ctx, u.ID, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	list, err := s.Sessions().ListByUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID, "newest first")

	n, err = s.Sessions().RevokeExpired(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "only the other user's session was still unrevoked")
}

func TestSessions_CreateRequiresUser(t *testing.T) {
	s := memory.New()
	err := s.Sessions().Create(context.Background(), newSession(t, ulid.Make(), "h", time.Now()))
	assert.Error(t, err)
}
