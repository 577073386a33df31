// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contractly Contributors

package auth

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Role is shared reference data. Inactive roles grant nothing.
type Role struct {
	ID     ulid.ULID
	Name   string
	Active bool
}

// Permission is shared reference data. Inactive permissions are never effective,
// whether granted by a role or by an override.
type Permission struct {
	ID     ulid.ULID
	Code   string
	Active bool
}

// PermissionOverride is a per-user allow (IsDenied=false) or deny (IsDenied=true)
// of one permission code.
type PermissionOverride struct {
	UserID    ulid.ULID
	Code      string
	IsDenied  bool
	GrantedAt time.Time
}

// PermissionStore reads and maintains role grants and user overrides.
type PermissionStore interface {
	// ActiveRoleIDs returns the IDs of active roles assigned to the user.
	ActiveRoleIDs(ctx context.Context, userID ulid.ULID) ([]ulid.ULID, error)

	// ActivePermissionCodes returns the codes of active permissions granted to
	// any of the given roles.
	ActivePermissionCodes(ctx context.Context, roleIDs []ulid.ULID) ([]string, error)

	// Overrides returns the user's overrides on active permissions.
	Overrides(ctx context.Context, userID ulid.ULID) ([]PermissionOverride, error)

	// UpsertPermission creates or updates a permission by code.
	UpsertPermission(ctx context.Context, code string, active bool) (*Permission, error)

	// UpsertRole creates or updates a role by name and replaces its grants.
	UpsertRole(ctx context.Context, name string, active bool, codes []string) (*Role, error)

	// AssignRole assigns a role (by name) to a user. Assigning twice is a no-op.
	AssignRole(ctx context.Context, userID ulid.ULID, roleName string) error

	// UnassignRole removes a role assignment.
	UnassignRole(ctx context.Context, userID ulid.ULID, roleName string) error

	// SetOverride creates or replaces the user's override for code.
	SetOverride(ctx context.Context, override PermissionOverride) error

	// ClearOverride removes the user's override for code.
	ClearOverride(ctx context.Context, userID ulid.ULID, code string) error
}

// PermissionSet is an order-irrelevant set of permission codes.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from codes.
func NewPermissionSet(codes ...string) PermissionSet {
	s := make(PermissionSet, len(codes))
	for _, c := range codes {
		s[c] = struct{}{}
	}
	return s
}

// Has reports whether code is in the set.
func (s PermissionSet) Has(code string) bool {
	_, ok := s[code]
	return ok
}

// Codes returns the codes sorted, for stable claims and comparisons.
func (s PermissionSet) Codes() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// ApplyOverrides combines role-derived grants with user overrides. Every allow
// is applied before any deny, so deny wins over grant for the same code and
// the result does not depend on the order of overrides.
func ApplyOverrides(roleGrants []string, overrides []PermissionOverride) PermissionSet {
	set := NewPermissionSet(roleGrants...)
	for _, o := range overrides {
		if !o.IsDenied {
			set[o.Code] = struct{}{}
		}
	}
	for _, o := range overrides {
		if o.IsDenied {
			delete(set, o.Code)
		}
	}
	return set
}

// PermissionResolver computes effective permission sets. It keeps no state
// between calls; every resolution reads current data.
type PermissionResolver struct {
	store  PermissionStore
	logger *slog.Logger
}

// NewPermissionResolver creates a PermissionResolver.
func NewPermissionResolver(store PermissionStore, logger *slog.Logger) (*PermissionResolver, error) {
	if store == nil {
		return nil, oops.Errorf("permission store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PermissionResolver{store: store, logger: logger}, nil
}

// ResolveEffectivePermissions returns the user's effective permission set.
// An empty set is valid.
func (r *PermissionResolver) ResolveEffectivePermissions(ctx context.Context, userID ulid.ULID) (PermissionSet, error) {
	roleIDs, err := r.store.ActiveRoleIDs(ctx, userID)
	if err != nil {
		return nil, oops.Code("PERMISSIONS_RESOLVE_FAILED").
			With("operation", "load active roles").
			With("user_id", userID.String()).
			Wrap(err)
	}

	var grants []string
	if len(roleIDs) > 0 {
		grants, err = r.store.ActivePermissionCodes(ctx, roleIDs)
		if err != nil {
			return nil, oops.Code("PERMISSIONS_RESOLVE_FAILED").
				With("operation", "load role grants").
				With("user_id", userID.String()).
				Wrap(err)
		}
	}

	overrides, err := r.store.Overrides(ctx, userID)
	if err != nil {
		return nil, oops.Code("PERMISSIONS_RESOLVE_FAILED").
			With("operation", "load overrides").
			With("user_id", userID.String()).
			Wrap(err)
	}

	set := ApplyOverrides(grants, overrides)
	r.logger.DebugContext(ctx, "resolved effective permissions",
		"user_id", userID.String(),
		"roles", len(roleIDs),
		"overrides", len(overrides),
		"permissions", len(set),
	)
	return set, nil
}
