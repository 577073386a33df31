// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contractly Contributors

//go:build integration

package auth_test

import (
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/contractly/authcore/internal/auth"
)

const catalogYAML = `
permissions:
  - code: profile.read
  - code: profile.update
  - code: contracts.publish
roles:
  - name: Developer
    permissions: [profile.read, profile.update]
  - name: Client
    permissions: [profile.read, contracts.publish]
`

func newRegistration(email, password string) auth.RegistrationRequest {
	return auth.RegistrationRequest{
		Email:    email,
		Password: password,
		Profile: auth.UserProfile{
			FirstName: "Alice",
			LastName:  "Smith",
			Skills:    []string{"go", "sql"},
			Country:   "PL",
		},
		Specializations: []auth.Specialization{auth.SpecBackend, auth.SpecDevOps},
	}
}

var device = auth.Device{IP: "198.51.100.10", UserAgent: "integration"}

var _ = Describe("Auth core on PostgreSQL", func() {
	BeforeEach(func() {
		env.truncate()
		catalog, err := auth.LoadCatalog(strings.NewReader(catalogYAML))
		Expect(err).NotTo(HaveOccurred())
		Expect(catalog.Apply(env.ctx, env.Permissions, env.Transactor)).To(Succeed())
	})

	Describe("registration", func() {
		It("creates the account with its default role and first session", func() {
			res, err := env.Orchestrator.Register(env.ctx, newRegistration("alice@example.com", "correct-horse-battery"), device)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Permissions.Codes()).To(Equal([]string{"profile.read", "profile.update"}))

			stored, err := env.Accounts.GetByEmail(env.ctx, "ALICE@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Specializations).To(Equal([]auth.Specialization{auth.SpecBackend, auth.SpecDevOps}))
			Expect(stored.Profile.Skills).To(Equal([]string{"go", "sql"}))

			sessions, err := env.Orchestrator.Sessions(env.ctx, stored.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions).To(HaveLen(1))
		})

		It("rejects a duplicate email regardless of case", func() {
			_, err := env.Orchestrator.Register(env.ctx, newRegistration("alice@example.com", "correct-horse-battery"), device)
			Expect(err).NotTo(HaveOccurred())

			_, err = env.Orchestrator.Register(env.ctx, newRegistration("Alice@Example.com", "another-password"), device)
			Expect(auth.ErrorCode(err)).To(Equal(auth.CodeDuplicateAccount))
		})

		It("leaves nothing behind when the request is invalid", func() {
			req := newRegistration("bob@example.com", "bob12345")
			req.Profile.FirstName = "Bob"

			_, err := env.Orchestrator.Register(env.ctx, req, device)
			Expect(auth.ErrorCode(err)).To(Equal(auth.CodeWeakPassword))

			_, err = env.Accounts.GetByEmail(env.ctx, "bob@example.com")
			Expect(err).To(MatchError(auth.ErrNotFound))
		})
	})

	Describe("login and lockout", func() {
		BeforeEach(func() {
			_, err := env.Orchestrator.Register(env.ctx, newRegistration("alice@example.com", "correct-horse-battery"), device)
			Expect(err).NotTo(HaveOccurred())
		})

		It("blocks the sixth attempt after five failures", func() {
			for range 5 {
				_, err := env.Orchestrator.Login(env.ctx, auth.LoginRequest{Email: "alice@example.com", Password: "wrong"})
				Expect(auth.ErrorCode(err)).To(Equal(auth.CodeInvalidCredentials))
			}
			_, err := env.Orchestrator.Login(env.ctx, auth.LoginRequest{Email: "alice@example.com", Password: "correct-horse-battery"})
			Expect(auth.ErrorCode(err)).To(Equal(auth.CodeAccountBlocked))

			stored, err := env.Accounts.GetByEmail(env.ctx, "alice@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.FailedLoginAttempts).To(Equal(5))
			Expect(stored.LoginBlockedUntil).NotTo(BeNil())
		})

		It("counts concurrent failures without losing updates", func() {
			var wg sync.WaitGroup
			for range 4 {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					_, _ = env.Orchestrator.Login(env.ctx, auth.LoginRequest{Email: "alice@example.com", Password: "wrong"})
				}()
			}
			wg.Wait()

			stored, err := env.Accounts.GetByEmail(env.ctx, "alice@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.FailedLoginAttempts).To(Equal(4))
		})
	})

	Describe("effective permissions", func() {
		It("applies a deny override over a role grant", func() {
			res, err := env.Orchestrator.Register(env.ctx, newRegistration("alice@example.com", "correct-horse-battery"), device)
			Expect(err).NotTo(HaveOccurred())

			Expect(env.Permissions.SetOverride(env.ctx, auth.PermissionOverride{
				UserID:    res.User.ID,
				Code:      "profile.update",
				IsDenied:  true,
				GrantedAt: time.Now().UTC(),
			})).To(Succeed())

			set, err := env.Resolver.ResolveEffectivePermissions(env.ctx, res.User.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(set.Codes()).To(Equal([]string{"profile.read"}))
		})

		It("ignores inactive roles", func() {
			res, err := env.Orchestrator.Register(env.ctx, newRegistration("alice@example.com", "correct-horse-battery"), device)
			Expect(err).NotTo(HaveOccurred())
			Expect(env.Permissions.AssignRole(env.ctx, res.User.ID, "Client")).To(Succeed())
			_, err = env.Permissions.UpsertRole(env.ctx, "Developer", false, []string{"profile.read", "profile.update"})
			Expect(err).NotTo(HaveOccurred())

			set, err := env.Resolver.ResolveEffectivePermissions(env.ctx, res.User.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(set.Codes()).To(Equal([]string{"contracts.publish", "profile.read"}))
		})
	})

	Describe("refresh tokens", func() {
		var res *auth.AuthResult

		BeforeEach(func() {
			var err error
			res, err = env.Orchestrator.Register(env.ctx, newRegistration("alice@example.com", "correct-horse-battery"), device)
			Expect(err).NotTo(HaveOccurred())
		})

		It("rotates exactly once under concurrency", func() {
			const racers = 6
			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				wins int
			)
			for range racers {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					if _, err := env.Orchestrator.Refresh(env.ctx, res.Tokens.RefreshToken); err == nil {
						mu.Lock()
						wins++
						mu.Unlock()
					} else {
						Expect(auth.ErrorCode(err)).To(Equal(auth.CodeInvalidToken))
					}
				}()
			}
			wg.Wait()
			Expect(wins).To(Equal(1))
		})

		It("stops working after logout", func() {
			Expect(env.Orchestrator.Logout(env.ctx, res.User.ID, ulid.ULID{})).To(Succeed())

			_, err := env.Tokens.RotateRefreshToken(env.ctx, res.Tokens.RefreshToken)
			Expect(auth.ErrorCode(err)).To(Equal(auth.CodeInvalidToken))
		})

		It("stops working after a password change", func() {
			Expect(env.Orchestrator.ChangePassword(env.ctx, res.User.ID, "correct-horse-battery", "brand-new-secret")).To(Succeed())

			_, err := env.Orchestrator.Refresh(env.ctx, res.Tokens.RefreshToken)
			Expect(auth.ErrorCode(err)).To(Equal(auth.CodeInvalidToken))

			_, err = env.Orchestrator.Login(env.ctx, auth.LoginRequest{Email: "alice@example.com", Password: "brand-new-secret"})
			Expect(err).NotTo(HaveOccurred())
		})

		It("is revoked by the reaper once expired", func() {
			reaper, err := auth.NewSessionReaper(env.Sessions, time.Minute, nil, nil)
			Expect(err).NotTo(HaveOccurred())

			_, err = env.pool.Exec(env.ctx, `UPDATE sessions SET expires_at = now() - interval '1 minute' WHERE id = $1`,
				res.Session.ID.String())
			Expect(err).NotTo(HaveOccurred())

			n, err := reaper.Sweep(env.ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(1)))

			stored, err := env.Sessions.GetByID(env.ctx, res.Session.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Revoked).To(BeTrue())
		})
	})
})
