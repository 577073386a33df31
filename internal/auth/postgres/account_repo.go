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

const emailConstraint = "users_email_key"

const selectUser = `
	SELECT u.id, u.email, u.password_hash, u.active, u.failed_login_attempts,
	       u.login_blocked_until, u.created_at, u.updated_at,
	       p.first_name, p.last_name, p.phone, p.skills, p.country, p.city,
	       p.street, p.postal_code, p.company_name, p.company_tax_id
	FROM users u
	JOIN user_profiles p ON p.user_id = u.id`

// AccountRepository implements auth.AccountStore using PostgreSQL.
// A user spans the users, user_profiles and user_specializations tables.
type AccountRepository struct {
	db DB
	tx *Transactor
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db DB) *AccountRepository {
	return &AccountRepository{db: db, tx: NewTransactor(db)}
}

// Create stores a new user with its profile and specializations.
func (r *AccountRepository) Create(ctx context.Context, user *auth.User) error {
	return r.tx.InTransaction(ctx, func(ctx context.Context) error {
		q := conn(ctx, r.db)
		_, err := q.Exec(ctx, `
			INSERT INTO users (id, email, password_hash, active, failed_login_attempts,
			                   login_blocked_until, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, user.ID.String(), auth.NormalizeEmail(user.Email), user.PasswordHash, user.Active,
			user.FailedLoginAttempts, user.LoginBlockedUntil, user.CreatedAt, user.UpdatedAt)
		if isUniqueViolation(err, emailConstraint) {
			return oops.Code("USER_EMAIL_TAKEN").With("email", user.Email).Wrap(auth.ErrDuplicateEmail)
		}
		if err != nil {
			return oops.Code("USER_CREATE_FAILED").
				With("operation", "insert user").
				With("user_id", user.ID.String()).
				Wrap(err)
		}

		if err := r.insertProfile(ctx, q, user.ID, user.Profile); err != nil {
			return err
		}
		return r.replaceSpecializations(ctx, q, user.ID, user.Specializations)
	})
}

// GetByID retrieves a user by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	return r.get(ctx, selectUser+` WHERE u.id = $1`, "user_id", id.String())
}

// GetByEmail retrieves a user by email, case-insensitively.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	return r.get(ctx, selectUser+` WHERE lower(u.email) = $1`, "email", auth.NormalizeEmail(email))
}

// GetByEmailForUpdate locks the users row until the surrounding transaction
// ends. Outside a transaction the lock is released immediately.
func (r *AccountRepository) GetByEmailForUpdate(ctx context.Context, email string) (*auth.User, error) {
	return r.get(ctx, selectUser+` WHERE lower(u.email) = $1 FOR UPDATE OF u`, "email", auth.NormalizeEmail(email))
}

// UpdateLockout persists the failed-attempt counter and block timestamp.
func (r *AccountRepository) UpdateLockout(ctx context.Context, id ulid.ULID, failedAttempts int, blockedUntil *time.Time) error {
	return r.exec(ctx, "update lockout", id, `
		UPDATE users SET failed_login_attempts = $2, login_blocked_until = $3, updated_at = now()
		WHERE id = $1
	`, failedAttempts, blockedUntil)
}

// UpdatePassword replaces the password hash.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	return r.exec(ctx, "update password", id, `
		UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1
	`, passwordHash)
}

// SetActive toggles the active flag.
func (r *AccountRepository) SetActive(ctx context.Context, id ulid.ULID, active bool) error {
	return r.exec(ctx, "set active", id, `
		UPDATE users SET active = $2, updated_at = now() WHERE id = $1
	`, active)
}

// UpdateProfile replaces the profile record.
func (r *AccountRepository) UpdateProfile(ctx context.Context, id ulid.ULID, profile auth.UserProfile) error {
	p, err := auth.NormalizeProfile(profile)
	if err != nil {
		return err
	}
	return r.exec(ctx, "update profile", id, `
		UPDATE user_profiles SET first_name = $2, last_name = $3, phone = $4, skills = $5,
		       country = $6, city = $7, street = $8, postal_code = $9,
		       company_name = $10, company_tax_id = $11
		WHERE user_id = $1
	`, p.FirstName, p.LastName, p.Phone, skillsOrEmpty(p.Skills), p.Country, p.City,
		p.Street, p.PostalCode, p.CompanyName, p.CompanyTaxID)
}

// SetSpecializations replaces the user's ordered specialization set.
func (r *AccountRepository) SetSpecializations(ctx context.Context, id ulid.ULID, specs []auth.Specialization) error {
	specs, err := auth.NormalizeSpecializations(specs)
	if err != nil {
		return err
	}
	return r.tx.InTransaction(ctx, func(ctx context.Context) error {
		q := conn(ctx, r.db)
		var exists bool
		if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id.String()).Scan(&exists); err != nil {
			return oops.Code("USER_UPDATE_FAILED").
				With("operation", "check user").
				With("user_id", id.String()).
				Wrap(err)
		}
		if !exists {
			return oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
		}
		if _, err := q.Exec(ctx, `DELETE FROM user_specializations WHERE user_id = $1`, id.String()); err != nil {
			return oops.Code("USER_UPDATE_FAILED").
				With("operation", "clear specializations").
				With("user_id", id.String()).
				Wrap(err)
		}
		return r.replaceSpecializations(ctx, q, id, specs)
	})
}

// Delete removes a user. Profile, specializations, sessions, role
// assignments and overrides cascade.
func (r *AccountRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM users WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("USER_DELETE_FAILED").With("user_id", id.String()).Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

func (r *AccountRepository) exec(ctx context.Context, operation string, id ulid.ULID, sql string, args ...any) error {
	result, err := conn(ctx, r.db).Exec(ctx, sql, append([]any{id.String()}, args...)...)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", operation).
			With("user_id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

func (r *AccountRepository) get(ctx context.Context, sql, field, value string) (*auth.User, error) {
	q := conn(ctx, r.db)
	user, err := scanUser(q.QueryRow(ctx, sql, value))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With(field, value).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").With(field, value).Wrap(err)
	}

	user.Specializations, err = r.loadSpecializations(ctx, q, user.ID)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *AccountRepository) insertProfile(ctx context.Context, q querier, id ulid.ULID, p auth.UserProfile) error {
	_, err := q.Exec(ctx, `
		INSERT INTO user_profiles (user_id, first_name, last_name, phone, skills, country,
		                           city, street, postal_code, company_name, company_tax_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, id.String(), p.FirstName, p.LastName, p.Phone, skillsOrEmpty(p.Skills), p.Country,
		p.City, p.Street, p.PostalCode, p.CompanyName, p.CompanyTaxID)
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert profile").
			With("user_id", id.String()).
			Wrap(err)
	}
	return nil
}

func (r *AccountRepository) replaceSpecializations(ctx context.Context, q querier, id ulid.ULID, specs []auth.Specialization) error {
	if len(specs) == 0 {
		return nil
	}
	values := make([]string, len(specs))
	for i, s := range specs {
		values[i] = string(s)
	}
	_, err := q.Exec(ctx, `
		INSERT INTO user_specializations (user_id, specialization, position)
		SELECT $1, s.value, s.ord FROM unnest($2::text[]) WITH ORDINALITY AS s(value, ord)
	`, id.String(), values)
	if err != nil {
		return oops.Code("USER_SPECIALIZATIONS_FAILED").
			With("operation", "insert specializations").
			With("user_id", id.String()).
			Wrap(err)
	}
	return nil
}

func (r *AccountRepository) loadSpecializations(ctx context.Context, q querier, id ulid.ULID) ([]auth.Specialization, error) {
	rows, err := q.Query(ctx, `
		SELECT specialization FROM user_specializations WHERE user_id = $1 ORDER BY position
	`, id.String())
	if err != nil {
		return nil, oops.Code("USER_SPECIALIZATIONS_FAILED").
			With("operation", "query specializations").
			With("user_id", id.String()).
			Wrap(err)
	}
	defer rows.Close()

	specs := []auth.Specialization{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, oops.Code("USER_SPECIALIZATIONS_FAILED").
				With("operation", "scan specialization").
				Wrap(err)
		}
		specs = append(specs, auth.Specialization(s))
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("USER_SPECIALIZATIONS_FAILED").
			With("operation", "iterate specializations").
			Wrap(err)
	}
	return specs, nil
}

// scanUser scans the selectUser column list. pgx.ErrNoRows is returned unchanged.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		u     auth.User
		p     auth.UserProfile
		idStr string
	)
	err := row.Scan(
		&idStr, &u.Email, &u.PasswordHash, &u.Active, &u.FailedLoginAttempts,
		&u.LoginBlockedUntil, &u.CreatedAt, &u.UpdatedAt,
		&p.FirstName, &p.LastName, &p.Phone, &p.Skills, &p.Country, &p.City,
		&p.Street, &p.PostalCode, &p.CompanyName, &p.CompanyTaxID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers add context
		}
		return nil, oops.Code("USER_SCAN_FAILED").Wrap(err)
	}

	u.ID, err = parseID(idStr, "user_id")
	if err != nil {
		return nil, oops.Code("USER_SCAN_FAILED").Wrap(err)
	}
	u.Profile = p
	return &u, nil
}

func skillsOrEmpty(skills []string) []string {
	if skills == nil {
		return []string{}
	}
	return skills
}

var _ auth.AccountStore = (*AccountRepository)(nil)
