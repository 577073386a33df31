// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contractly Contributors

// Package memory provides in-process implementations of the auth stores.
//
// A single Store backs accounts, sessions and permissions so that one
// transaction can span all three. Transactions are serialized; a failed
// transaction restores the state captured when it began. Writes made outside
// a transaction wait for any running transaction to finish.
//
// Values handed in and out are copied, so callers never share memory with
// the store.
package memory

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/contractly/authcore/internal/auth"
)

// Compile-time interface checks.
var (
	_ auth.AccountStore    = (*Accounts)(nil)
	_ auth.SessionStore    = (*Sessions)(nil)
	_ auth.PermissionStore = (*Permissions)(nil)
	_ auth.Transactor      = (*Store)(nil)
)

type txKey struct{}

type state struct {
	users       map[ulid.ULID]*auth.User
	emails      map[string]ulid.ULID
	sessions    map[ulid.ULID]*auth.Session
	permissions map[string]*auth.Permission // by code
	roles       map[string]*auth.Role       // by name
	grants      map[ulid.ULID][]string      // role ID -> codes
	assignments map[ulid.ULID]map[ulid.ULID]struct{}
	overrides   map[ulid.ULID]map[string]auth.PermissionOverride
}

func newState() *state {
	return &state{
		users:       make(map[ulid.ULID]*auth.User),
		emails:      make(map[string]ulid.ULID),
		sessions:    make(map[ulid.ULID]*auth.Session),
		permissions: make(map[string]*auth.Permission),
		roles:       make(map[string]*auth.Role),
		grants:      make(map[ulid.ULID][]string),
		assignments: make(map[ulid.ULID]map[ulid.ULID]struct{}),
		overrides:   make(map[ulid.ULID]map[string]auth.PermissionOverride),
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, u := range s.users {
		c.users[id] = copyUser(u)
	}
	for e, id := range s.emails {
		c.emails[e] = id
	}
	for id, sess := range s.sessions {
		c.sessions[id] = copySession(sess)
	}
	for code, p := range s.permissions {
		cp := *p
		c.permissions[code] = &cp
	}
	for name, r := range s.roles {
		cr := *r
		c.roles[name] = &cr
	}
	for id, codes := range s.grants {
		c.grants[id] = append([]string(nil), codes...)
	}
	for uid, roles := range s.assignments {
		m := make(map[ulid.ULID]struct{}, len(roles))
		for rid := range roles {
			m[rid] = struct{}{}
		}
		c.assignments[uid] = m
	}
	for uid, ovs := range s.overrides {
		m := make(map[string]auth.PermissionOverride, len(ovs))
		for code, o := range ovs {
			m[code] = o
		}
		c.overrides[uid] = m
	}
	return c
}

// Store holds all in-memory state and implements auth.Transactor.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	st   *state
}

// New creates an empty Store.
func New() *Store {
	return &Store{st: newState()}
}

// Accounts returns the account view of the store.
func (s *Store) Accounts() *Accounts { return &Accounts{s: s} }

// Sessions returns the session view of the store.
func (s *Store) Sessions() *Sessions { return &Sessions{s: s} }

// Permissions returns the permission view of the store.
func (s *Store) Permissions() *Permissions { return &Permissions{s: s} }

// InTransaction implements auth.Transactor.
func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

func (s *Store) read(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

// write applies fn to the live state. Outside a transaction it first waits
// for any running transaction so a rollback cannot discard the change.
func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	if !inTx(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

func copyUser(u *auth.User) *auth.User {
	c := *u
	if u.LoginBlockedUntil != nil {
		t := *u.LoginBlockedUntil
		c.LoginBlockedUntil = &t
	}
	c.Specializations = append([]auth.Specialization(nil), u.Specializations...)
	c.Profile = copyProfile(u.Profile)
	return &c
}

func copyProfile(p auth.UserProfile) auth.UserProfile {
	c := p
	c.Skills = append([]string(nil), p.Skills...)
	if p.CompanyName != nil {
		v := *p.CompanyName
		c.CompanyName = &v
	}
	if p.CompanyTaxID != nil {
		v := *p.CompanyTaxID
		c.CompanyTaxID = &v
	}
	return c
}

func copySession(s *auth.Session) *auth.Session {
	c := *s
	if s.RevokedAt != nil {
		t := *s.RevokedAt
		c.RevokedAt = &t
	}
	return &c
}
