// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contractly Contributors

package auth

import (
	"context"
	"io"
	"strings"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

// Catalog is the role and permission reference data, loaded from YAML:
//
//	permissions:
//	  - code: profile.read
//	  - code: contracts.publish
//	    active: false
//	roles:
//	  - name: Developer
//	    permissions: [profile.read, profile.update]
type Catalog struct {
	Permissions []CatalogPermission `yaml:"permissions"`
	Roles       []CatalogRole       `yaml:"roles"`
}

// CatalogPermission declares one permission. Active defaults to true.
type CatalogPermission struct {
	Code   string `yaml:"code"`
	Active *bool  `yaml:"active,omitempty"`
}

// CatalogRole declares one role and the codes it grants. Active defaults to true.
type CatalogRole struct {
	Name        string   `yaml:"name"`
	Active      *bool    `yaml:"active,omitempty"`
	Permissions []string `yaml:"permissions"`
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// LoadCatalog decodes and validates a catalog. Unknown fields are rejected.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var c Catalog
	if err := dec.Decode(&c); err != nil {
		if err == io.EOF {
			return &c, nil
		}
		return nil, oops.Code("CATALOG_PARSE_FAILED").Wrap(err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks for blank or duplicate entries and for roles that grant
// undeclared permissions.
func (c *Catalog) Validate() error {
	declared := make(map[string]struct{}, len(c.Permissions))
	for _, p := range c.Permissions {
		code := strings.TrimSpace(p.Code)
		if code == "" {
			return oops.Code("CATALOG_INVALID").Errorf("permission code cannot be empty")
		}
		if _, dup := declared[code]; dup {
			return oops.Code("CATALOG_INVALID").With("code", code).Errorf("duplicate permission %q", code)
		}
		declared[code] = struct{}{}
	}

	roles := make(map[string]struct{}, len(c.Roles))
	for _, r := range c.Roles {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			return oops.Code("CATALOG_INVALID").Errorf("role name cannot be empty")
		}
		if _, dup := roles[name]; dup {
			return oops.Code("CATALOG_INVALID").With("role", name).Errorf("duplicate role %q", name)
		}
		roles[name] = struct{}{}
		for _, code := range r.Permissions {
			if _, ok := declared[code]; !ok {
				return oops.Code("CATALOG_INVALID").
					With("role", name).
					With("code", code).
					Errorf("role %q grants undeclared permission %q", name, code)
			}
		}
	}
	return nil
}

// Apply upserts every permission and role in one transaction.
func (c *Catalog) Apply(ctx context.Context, store PermissionStore, tx Transactor) error {
	return tx.InTransaction(ctx, func(ctx context.Context) error {
		for _, p := range c.Permissions {
			if _, err := store.UpsertPermission(ctx, strings.TrimSpace(p.Code), boolOr(p.Active, true)); err != nil {
				return oops.Code("CATALOG_APPLY_FAILED").With("code", p.Code).Wrap(err)
			}
		}
		for _, r := range c.Roles {
			if _, err := store.UpsertRole(ctx, strings.TrimSpace(r.Name), boolOr(r.Active, true), r.Permissions); err != nil {
				return oops.Code("CATALOG_APPLY_FAILED").With("role", r.Name).Wrap(err)
			}
		}
		return nil
	})
}
