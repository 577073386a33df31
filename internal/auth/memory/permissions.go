// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contractly Contributors

package memory

import (
	"context"
	"slices"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/contractly/authcore/internal/auth"
)

// Permissions implements auth.PermissionStore.
type Permissions struct {
	s *Store
}

// ActiveRoleIDs implements auth.PermissionStore.
func (p *Permissions) ActiveRoleIDs(_ context.Context, userID ulid.ULID) ([]ulid.ULID, error) {
	var out []ulid.ULID
	err := p.s.read(func(st *state) error {
		for _, r := range st.roles {
			if _, assigned := st.assignments[userID][r.ID]; assigned && r.Active {
				out = append(out, r.ID)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b ulid.ULID) int { return a.Compare(b) })
	return out, err
}

// ActivePermissionCodes implements auth.PermissionStore.
func (p *Permissions) ActivePermissionCodes(_ context.Context, roleIDs []ulid.ULID) ([]string, error) {
	var out []string
	err := p.s.read(func(st *state) error {
		seen := make(map[string]struct{})
		for _, rid := range roleIDs {
			for _, code := range st.grants[rid] {
				perm, ok := st.permissions[code]
				if !ok || !perm.Active {
					continue
				}
				if _, dup := seen[code]; dup {
					continue
				}
				seen[code] = struct{}{}
				out = append(out, code)
			}
		}
		return nil
	})
	slices.Sort(out)
	return out, err
}

// Overrides implements auth.PermissionStore.
func (p *Permissions) Overrides(_ context.Context, userID ulid.ULID) ([]auth.PermissionOverride, error) {
	var out []auth.PermissionOverride
	err := p.s.read(func(st *state) error {
		for code, o := range st.overrides[userID] {
			if perm, ok := st.permissions[code]; ok && perm.Active {
				out = append(out, o)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b auth.PermissionOverride) int {
		switch {
		case a.Code < b.Code:
			return -1
		case a.Code > b.Code:
			return 1
		}
		return 0
	})
	return out, err
}

// UpsertPermission implements auth.PermissionStore.
func (p *Permissions) UpsertPermission(ctx context.Context, code string, active bool) (*auth.Permission, error) {
	if code == "" {
		return nil, oops.Errorf("permission code cannot be empty")
	}
	var out auth.Permission
	err := p.s.write(ctx, func(st *state) error {
		perm, ok := st.permissions[code]
		if !ok {
			perm = &auth.Permission{ID: ulid.Make(), Code: code}
			st.permissions[code] = perm
		}
		perm.Active = active
		out = *perm
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpsertRole implements auth.PermissionStore.
func (p *Permissions) UpsertRole(ctx context.Context, name string, active bool, codes []string) (*auth.Role, error) {
	if name == "" {
		return nil, oops.Errorf("role name cannot be empty")
	}
	var out auth.Role
	err := p.s.write(ctx, func(st *state) error {
		for _, code := range codes {
			if _, ok := st.permissions[code]; !ok {
				return oops.With("role", name).With("code", code).Wrap(auth.ErrNotFound)
			}
		}
		role, ok := st.roles[name]
		if !ok {
			role = &auth.Role{ID: ulid.Make(), Name: name}
			st.roles[name] = role
		}
		role.Active = active
		st.grants[role.ID] = append([]string(nil), codes...)
		out = *role
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AssignRole implements auth.PermissionStore.
func (p *Permissions) AssignRole(ctx context.Context, userID ulid.ULID, roleName string) error {
	return p.s.write(ctx, func(st *state) error {
		role, ok := st.roles[roleName]
		if !ok {
			return oops.With("role", roleName).Wrap(auth.ErrNotFound)
		}
		if _, ok := st.users[userID]; !ok {
			return oops.With("user_id", userID.String()).Wrap(auth.ErrNotFound)
		}
		m, ok := st.assignments[userID]
		if !ok {
			m = make(map[ulid.ULID]struct{})
			st.assignments[userID] = m
		}
		m[role.ID] = struct{}{}
		return nil
	})
}

// UnassignRole implements auth.PermissionStore.
func (p *Permissions) UnassignRole(ctx context.Context, userID ulid.ULID, roleName string) error {
	return p.s.write(ctx, func(st *state) error {
		role, ok := st.roles[roleName]
		if !ok {
			return oops.With("role", roleName).Wrap(auth.ErrNotFound)
		}
		delete(st.assignments[userID], role.ID)
		return nil
	})
}

// SetOverride implements auth.PermissionStore.
func (p *Permissions) SetOverride(ctx context.Context, override auth.PermissionOverride) error {
	return p.s.write(ctx, func(st *state) error {
		if _, ok := st.permissions[override.Code]; !ok {
			return oops.With("code", override.Code).Wrap(auth.ErrNotFound)
		}
		if _, ok := st.users[override.UserID]; !ok {
			return oops.With("user_id", override.UserID.String()).Wrap(auth.ErrNotFound)
		}
		m, ok := st.overrides[override.UserID]
		if !ok {
			m = make(map[string]auth.PermissionOverride)
			st.overrides[override.UserID] = m
		}
		m[override.Code] = override
		return nil
	})
}

// ClearOverride implements auth.PermissionStore.
func (p *Permissions) ClearOverride(ctx context.Context, userID ulid.ULID, code string) error {
	return p.s.write(ctx, func(st *state) error {
		delete(st.overrides[userID], code)
		return nil
	})
}
