// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contractly Contributors

package postgres

import (
	"context"
	"errors"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/contractly/authcore/internal/auth"
)

// PermissionRepository implements auth.PermissionStore using PostgreSQL.
type PermissionRepository struct {
	db DB
	tx *Transactor
}

// NewPermissionRepository creates a new PermissionRepository.
func NewPermissionRepository(db DB) *PermissionRepository {
	return &PermissionRepository{db: db, tx: NewTransactor(db)}
}

// ActiveRoleIDs returns the IDs of the user's active roles.
func (r *PermissionRepository) ActiveRoleIDs(ctx context.Context, userID ulid.ULID) ([]ulid.ULID, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `
		SELECT r.id FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1 AND r.active
		ORDER BY r.id
	`, userID.String())
	if err != nil {
		return nil, oops.Code("ROLE_QUERY_FAILED").With("user_id", userID.String()).Wrap(err)
	}
	defer rows.Close()

	var ids []ulid.ULID
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, oops.Code("ROLE_SCAN_FAILED").Wrap(err)
		}
		id, err := parseID(idStr, "role_id")
		if err != nil {
			return nil, oops.Code("ROLE_SCAN_FAILED").Wrap(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("ROLE_QUERY_FAILED").With("operation", "iterate roles").Wrap(err)
	}
	return ids, nil
}

// ActivePermissionCodes returns the distinct active permission codes granted
// to any of roleIDs.
func (r *PermissionRepository) ActivePermissionCodes(ctx context.Context, roleIDs []ulid.ULID) ([]string, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	rows, err := conn(ctx, r.db).Query(ctx, `
		SELECT DISTINCT p.code FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = ANY($1) AND p.active
		ORDER BY p.code
	`, idStrings(roleIDs))
	if err != nil {
		return nil, oops.Code("PERMISSION_QUERY_FAILED").With("roles", len(roleIDs)).Wrap(err)
	}
	defer rows.Close()

	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, oops.Code("PERMISSION_QUERY_FAILED").With("operation", "collect codes").Wrap(err)
	}
	return codes, nil
}

// Overrides returns the user's overrides on active permissions.
func (r *PermissionRepository) Overrides(ctx context.Context, userID ulid.ULID) ([]auth.PermissionOverride, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `
		SELECT p.code, o.is_denied, o.granted_at FROM user_permission_overrides o
		JOIN permissions p ON p.id = o.permission_id
		WHERE o.user_id = $1 AND p.active
		ORDER BY p.code
	`, userID.String())
	if err != nil {
		return nil, oops.Code("OVERRIDE_QUERY_FAILED").With("user_id", userID.String()).Wrap(err)
	}
	defer rows.Close()

	var overrides []auth.PermissionOverride
	for rows.Next() {
		o := auth.PermissionOverride{UserID: userID}
		if err := rows.Scan(&o.Code, &o.IsDenied, &o.GrantedAt); err != nil {
			return nil, oops.Code("OVERRIDE_SCAN_FAILED").Wrap(err)
		}
		overrides = append(overrides, o)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("OVERRIDE_QUERY_FAILED").With("operation", "iterate overrides").Wrap(err)
	}
	return overrides, nil
}

// UpsertPermission creates the permission or updates its active flag.
func (r *PermissionRepository) UpsertPermission(ctx context.Context, code string, active bool) (*auth.Permission, error) {
	var (
		p     auth.Permission
		idStr string
	)
	err := conn(ctx, r.db).QueryRow(ctx, `
		INSERT INTO permissions (id, code, active) VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE SET active = EXCLUDED.active
		RETURNING id, code, active
	`, ulid.Make().String(), code, active).Scan(&idStr, &p.Code, &p.Active)
	if err != nil {
		return nil, oops.Code("PERMISSION_UPSERT_FAILED").With("code", code).Wrap(err)
	}
	if p.ID, err = parseID(idStr, "permission_id"); err != nil {
		return nil, oops.Code("PERMISSION_UPSERT_FAILED").Wrap(err)
	}
	return &p, nil
}

// UpsertRole creates or updates the role and replaces its grants with codes.
// Every code must already exist.
func (r *PermissionRepository) UpsertRole(ctx context.Context, name string, active bool, codes []string) (*auth.Role, error) {
	var role auth.Role
	err := r.tx.InTransaction(ctx, func(ctx context.Context) error {
		q := conn(ctx, r.db)
		var idStr string
		err := q.QueryRow(ctx, `
			INSERT INTO roles (id, name, active) VALUES ($1, $2, $3)
			ON CONFLICT (name) DO UPDATE SET active = EXCLUDED.active
			RETURNING id, name, active
		`, ulid.Make().String(), name, active).Scan(&idStr, &role.Name, &role.Active)
		if err != nil {
			return oops.Code("ROLE_UPSERT_FAILED").With("role", name).Wrap(err)
		}
		if role.ID, err = parseID(idStr, "role_id"); err != nil {
			return oops.Code("ROLE_UPSERT_FAILED").Wrap(err)
		}

		if _, err := q.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, idStr); err != nil {
			return oops.Code("ROLE_UPSERT_FAILED").
				With("operation", "clear grants").
				With("role", name).
				Wrap(err)
		}

		distinct := slices.Compact(slices.Sorted(slices.Values(codes)))
		if len(distinct) == 0 {
			return nil
		}
		result, err := q.Exec(ctx, `
			INSERT INTO role_permissions (role_id, permission_id)
			SELECT $1, id FROM permissions WHERE code = ANY($2)
		`, idStr, distinct)
		if err != nil {
			return oops.Code("ROLE_UPSERT_FAILED").
				With("operation", "insert grants").
				With("role", name).
				Wrap(err)
		}
		if result.RowsAffected() != int64(len(distinct)) {
			return oops.Code("PERMISSION_NOT_FOUND").
				With("role", name).
				With("codes", distinct).
				Wrap(auth.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// AssignRole assigns the named role to the user. Assigning twice is a no-op.
func (r *PermissionRepository) AssignRole(ctx context.Context, userID ulid.ULID, roleName string) error {
	q := conn(ctx, r.db)
	roleID, err := r.roleID(ctx, q, roleName)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, userID.String(), roleID)
	if err != nil {
		return oops.Code("ROLE_ASSIGN_FAILED").
			With("user_id", userID.String()).
			With("role", roleName).
			Wrap(err)
	}
	return nil
}

// UnassignRole removes the named role from the user.
func (r *PermissionRepository) UnassignRole(ctx context.Context, userID ulid.ULID, roleName string) error {
	q := conn(ctx, r.db)
	roleID, err := r.roleID(ctx, q, roleName)
	if err != nil {
		return err
	}
	if _, err := q.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID.String(), roleID); err != nil {
		return oops.Code("ROLE_UNASSIGN_FAILED").
			With("user_id", userID.String()).
			With("role", roleName).
			Wrap(err)
	}
	return nil
}

// SetOverride creates or replaces the user's override for a permission code.
func (r *PermissionRepository) SetOverride(ctx context.Context, o auth.PermissionOverride) error {
	result, err := conn(ctx, r.db).Exec(ctx, `
		INSERT INTO user_permission_overrides (user_id, permission_id, is_denied, granted_at)
		SELECT $1, id, $3, $4 FROM permissions WHERE code = $2
		ON CONFLICT (user_id, permission_id)
		DO UPDATE SET is_denied = EXCLUDED.is_denied, granted_at = EXCLUDED.granted_at
	`, o.UserID.String(), o.Code, o.IsDenied, o.GrantedAt)
	if err != nil {
		return oops.Code("OVERRIDE_SET_FAILED").
			With("user_id", o.UserID.String()).
			With("code", o.Code).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("PERMISSION_NOT_FOUND").With("code", o.Code).Wrap(auth.ErrNotFound)
	}
	return nil
}

// ClearOverride removes the user's override for a permission code.
func (r *PermissionRepository) ClearOverride(ctx context.Context, userID ulid.ULID, code string) error {
	_, err := conn(ctx, r.db).Exec(ctx, `
		DELETE FROM user_permission_overrides
		WHERE user_id = $1 AND permission_id IN (SELECT id FROM permissions WHERE code = $2)
	`, userID.String(), code)
	if err != nil {
		return oops.Code("OVERRIDE_CLEAR_FAILED").
			With("user_id", userID.String()).
			With("code", code).
			Wrap(err)
	}
	return nil
}

func (r *PermissionRepository) roleID(ctx context.Context, q querier, name string) (string, error) {
	var id string
	err := q.QueryRow(ctx, `SELECT id FROM roles WHERE name = $1`, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", oops.Code("ROLE_NOT_FOUND").With("role", name).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return "", oops.Code("ROLE_GET_FAILED").With("role", name).Wrap(err)
	}
	return id, nil
}

var _ auth.PermissionStore = (*PermissionRepository)(nil)
