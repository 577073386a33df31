// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contractly Contributors

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/contractly/authcore/internal/auth"
)

// NewUserCmd creates the user administration command group.
func NewUserCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Administer accounts",
		Long:  `Register, inspect and deactivate accounts through the auth core.`,
	}

	cmd.AddCommand(newUserRegisterCmd(deps))
	cmd.AddCommand(newUserLoginCmd(deps))
	cmd.AddCommand(newUserPermissionsCmd(deps))
	cmd.AddCommand(newUserSessionsCmd(deps))
	cmd.AddCommand(newUserDeactivateCmd(deps))
	cmd.AddCommand(newUserAssignRoleCmd(deps))

	return cmd
}

// withApp loads and validates config, connects and wires the auth core, then
// runs fn.
func withApp(cmd *cobra.Command, deps *Deps, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := setupLogger(cmd, cfg)

	pool, err := connect(ctx, deps, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	a, err := newApp(cfg, pool, nil, logger)
	if err != nil {
		return oops.Code("WIRING_FAILED").With("operation", "wire auth core").Wrap(err)
	}
	return fn(ctx, a)
}

// readPassword reads one line from the command's stdin.
func readPassword(cmd *cobra.Command) (string, error) {
	sc := bufio.NewScanner(cmd.InOrStdin())
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
		}
		return "", oops.Code("PASSWORD_REQUIRED").Errorf("password must be supplied on stdin")
	}
	return strings.TrimRight(sc.Text(), "\r\n"), nil
}

func parseUserID(s string) (ulid.ULID, error) {
	id, err := ulid.Parse(s)
	if err != nil {
		return ulid.ULID{}, oops.Code("INVALID_USER_ID").With("input", s).Wrap(err)
	}
	return id, nil
}

// authOutput is the JSON printed by register and login.
type authOutput struct {
	UserID           string    `json:"user_id"`
	SessionID        string    `json:"session_id"`
	Permissions      []string  `json:"permissions"`
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

func printAuthResult(cmd *cobra.Command, res *auth.AuthResult) error {
	out := authOutput{
		UserID:           res.User.ID.String(),
		SessionID:        res.Session.ID.String(),
		Permissions:      res.Permissions.Codes(),
		AccessToken:      res.Tokens.AccessToken,
		AccessExpiresAt:  res.Tokens.AccessExpiresAt,
		RefreshToken:     res.Tokens.RefreshToken,
		RefreshExpiresAt: res.Tokens.RefreshExpiresAt,
	}
	if out.Permissions == nil {
		out.Permissions = []string{}
	}
	return printJSON(cmd, out)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return oops.Code("OUTPUT_FAILED").Wrap(err)
	}
	return nil
}

type registerFlags struct {
	email           string
	firstName       string
	lastName        string
	phone           string
	skills          []string
	country         string
	city            string
	street          string
	postalCode      string
	companyName     string
	companyTaxID    string
	specializations []string
	userAgent       string
}

func (f *registerFlags) request(password string) auth.RegistrationRequest {
	profile := auth.UserProfile{
		FirstName:  f.firstName,
		LastName:   f.lastName,
		Phone:      f.phone,
		Skills:     f.skills,
		Country:    f.country,
		City:       f.city,
		Street:     f.street,
		PostalCode: f.postalCode,
	}
	if f.companyName != "" {
		profile.CompanyName = &f.companyName
	}
	if f.companyTaxID != "" {
		profile.CompanyTaxID = &f.companyTaxID
	}
	specs := make([]auth.Specialization, 0, len(f.specializations))
	for _, s := range f.specializations {
		specs = append(specs, auth.Specialization(s))
	}
	return auth.RegistrationRequest{
		Email:           f.email,
		Password:        password,
		Profile:         profile,
		Specializations: specs,
	}
}

func newUserRegisterCmd(deps *Deps) *cobra.Command {
	f := &registerFlags{}
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and open its first session",
		Long:  `Creates an account with the password read from stdin and prints the issued tokens.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readPassword(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd, deps, func(ctx context.Context, a *app) error {
				res, err := a.orchestrator.Register(ctx, f.request(password), auth.Device{UserAgent: f.userAgent})
				if err != nil {
					return err
				}
				return printAuthResult(cmd, res)
			})
		},
	}

	cmd.Flags().StringVar(&f.email, "email", "", "account email")
	cmd.Flags().StringVar(&f.firstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&f.lastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&f.phone, "phone", "", "phone number")
	cmd.Flags().StringSliceVar(&f.skills, "skill", nil, "skill (repeatable)")
	cmd.Flags().StringVar(&f.country, "country", "", "country")
	cmd.Flags().StringVar(&f.city, "city", "", "city")
	cmd.Flags().StringVar(&f.street, "street", "", "street")
	cmd.Flags().StringVar(&f.postalCode, "postal-code", "", "postal code")
	cmd.Flags().StringVar(&f.companyName, "company-name", "", "company name (requires --company-tax-id)")
	cmd.Flags().StringVar(&f.companyTaxID, "company-tax-id", "", "company tax id (requires --company-name)")
	cmd.Flags().StringSliceVar(&f.specializations, "specialization", nil, "specialization (repeatable)")
	cmd.Flags().StringVar(&f.userAgent, "user-agent", "authcore-cli", "user agent recorded on the session")
	_ = cmd.MarkFlagRequired("email") //nolint:errcheck // flag defined above

	return cmd
}

func newUserLoginCmd(deps *Deps) *cobra.Command {
	var email, userAgent string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and print a token pair",
		Long:  `Logs in with the password read from stdin. Failed attempts count towards lockout.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readPassword(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd, deps, func(ctx context.Context, a *app) error {
				res, err := a.orchestrator.Login(ctx, auth.LoginRequest{
					Email:    email,
					Password: password,
					Device:   auth.Device{UserAgent: userAgent},
				})
				if err != nil {
					return err
				}
				return printAuthResult(cmd, res)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&userAgent, "user-agent", "authcore-cli", "user agent recorded on the session")
	_ = cmd.MarkFlagRequired("email") //nolint:errcheck // flag defined above
	return cmd
}

func newUserPermissionsCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "permissions USER_ID",
		Short: "Print the effective permissions of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, deps, func(ctx context.Context, a *app) error {
				perms, err := a.resolver.ResolveEffectivePermissions(ctx, userID)
				if err != nil {
					return err
				}
				for _, code := range perms.Codes() {
					fmt.Fprintln(cmd.OutOrStdout(), code) //nolint:errcheck // terminal output
				}
				return nil
			})
		},
	}
}

// sessionOutput is one line of `user sessions`.
type sessionOutput struct {
	ID        string     `json:"id"`
	DeviceIP  string     `json:"device_ip,omitempty"`
	UserAgent string     `json:"user_agent,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	Revoked   bool       `json:"revoked"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

func newUserSessionsCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions USER_ID",
		Short: "List the sessions of a user, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, deps, func(ctx context.Context, a *app) error {
				sessions, err := a.orchestrator.Sessions(ctx, userID)
				if err != nil {
					return err
				}
				out := make([]sessionOutput, 0, len(sessions))
				for _, s := range sessions {
					out = append(out, sessionOutput{
						ID:        s.ID.String(),
						DeviceIP:  s.DeviceIP,
						UserAgent: s.UserAgent,
						CreatedAt: s.CreatedAt,
						ExpiresAt: s.ExpiresAt,
						Revoked:   s.Revoked,
						RevokedAt: s.RevokedAt,
					})
				}
				return printJSON(cmd, out)
			})
		},
	}
}

func newUserDeactivateCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate USER_ID",
		Short: "Deactivate an account and revoke its sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, deps, func(ctx context.Context, a *app) error {
				if err := a.orchestrator.Deactivate(ctx, userID); err != nil {
					return err
				}
				cmd.Printf("Deactivated %s\n", userID)
				return nil
			})
		},
	}
}

func newUserAssignRoleCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "assign-role USER_ID ROLE",
		Short: "Assign a catalogue role to a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, deps, func(ctx context.Context, a *app) error {
				if err := a.permissions.AssignRole(ctx, userID, args[1]); err != nil {
					return err
				}
				cmd.Printf("Assigned role %s to %s\n", args[1], userID)
				return nil
			})
		},
	}
}
