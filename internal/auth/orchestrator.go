// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contractly Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/contractly/authcore/pkg/errutil"
)

var tracer = otel.Tracer("authcore/auth")

// LogoutPolicy selects what Logout revokes.
type LogoutPolicy string

const (
	// LogoutAllSessions revokes every active session of the user.
	LogoutAllSessions LogoutPolicy = "all"
	// LogoutCurrentSession revokes only the session the request came from.
	LogoutCurrentSession LogoutPolicy = "current"
)

// Valid reports whether p is a known policy.
func (p LogoutPolicy) Valid() bool {
	return p == LogoutAllSessions || p == LogoutCurrentSession
}

// Device describes the client a session is bound to.
type Device struct {
	IP        string
	UserAgent string
}

// LoginRequest is the canonical login input.
type LoginRequest struct {
	Email    string
	Password string
	Device   Device
}

// AuthResult is returned by Login, Register and Refresh. The boundary layer
// transports the tokens; the plaintext refresh token is never stored.
type AuthResult struct {
	User        *User
	Permissions PermissionSet
	Session     *Session
	Tokens      *TokenPair
}

// OrchestratorDeps are the collaborators of an AuthOrchestrator.
type OrchestratorDeps struct {
	Authenticator *AuthenticationService
	Registration  *RegistrationService
	Resolver      *PermissionResolver
	Tokens        *TokenService
	Accounts      AccountStore
	Sessions      SessionStore
	Permissions   PermissionStore
	Transactor    Transactor
	Hasher        PasswordHasher
}

func (d OrchestratorDeps) validate() error {
	switch {
	case d.Authenticator == nil:
		return oops.Errorf("authentication service is required")
	case d.Registration == nil:
		return oops.Errorf("registration service is required")
	case d.Resolver == nil:
		return oops.Errorf("permission resolver is required")
	case d.Tokens == nil:
		return oops.Errorf("token service is required")
	case d.Accounts == nil:
		return oops.Errorf("account store is required")
	case d.Sessions == nil:
		return oops.Errorf("session store is required")
	case d.Permissions == nil:
		return oops.Errorf("permission store is required")
	case d.Transactor == nil:
		return oops.Errorf("transactor is required")
	case d.Hasher == nil:
		return oops.Errorf("password hasher is required")
	}
	return nil
}

// AuthOrchestrator composes the services into the use cases exposed to the
// boundary layer.
type AuthOrchestrator struct {
	deps         OrchestratorDeps
	logoutPolicy LogoutPolicy
	defaultRole  string
	metrics      *Metrics
	logger       *slog.Logger
	now          func() time.Time
}

// OrchestratorOption configures an AuthOrchestrator.
type OrchestratorOption func(*AuthOrchestrator)

// WithLogoutPolicy sets the logout policy. Defaults to LogoutAllSessions.
func WithLogoutPolicy(p LogoutPolicy) OrchestratorOption {
	return func(o *AuthOrchestrator) { o.logoutPolicy = p }
}

// WithDefaultRole assigns roleName to every newly registered account.
func WithDefaultRole(roleName string) OrchestratorOption {
	return func(o *AuthOrchestrator) { o.defaultRole = roleName }
}

// WithMetrics records outcomes on m.
func WithMetrics(m *Metrics) OrchestratorOption {
	return func(o *AuthOrchestrator) { o.metrics = m }
}

// WithOrchestratorLogger sets the logger.
func WithOrchestratorLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *AuthOrchestrator) { o.logger = logger }
}

// WithOrchestratorClock overrides the clock used for revocation timestamps.
func WithOrchestratorClock(now func() time.Time) OrchestratorOption {
	return func(o *AuthOrchestrator) { o.now = now }
}

// NewAuthOrchestrator creates an AuthOrchestrator.
func NewAuthOrchestrator(deps OrchestratorDeps, opts ...OrchestratorOption) (*AuthOrchestrator, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	o := &AuthOrchestrator{
		deps:         deps,
		logoutPolicy: LogoutAllSessions,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if !o.logoutPolicy.Valid() {
		return nil, oops.Code("CONFIG_INVALID").
			With("logout_policy", string(o.logoutPolicy)).
			Errorf("unknown logout policy")
	}
	return o, nil
}

// Login authenticates and opens a session. Permission resolution, token
// issuance and the session insert commit together or not at all.
func (o *AuthOrchestrator) Login(ctx context.Context, req LoginRequest) (_ *AuthResult, err error) {
	ctx, span := tracer.Start(ctx, "auth.login")
	defer func() { o.endSpan(span, err); o.metrics.login(err) }()

	user, err := o.deps.Authenticator.Authenticate(ctx, NormalizeEmail(req.Email), req.Password)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", user.ID.String()))

	var result *AuthResult
	err = o.deps.Transactor.InTransaction(ctx, func(ctx context.Context) error {
		var txErr error
		result, txErr = o.establishSession(ctx, user, req.Device)
		return txErr
	})
	if err != nil {
		errutil.LogError(o.logger, "login could not establish session", err)
		return nil, err
	}

	o.logger.InfoContext(ctx, "user logged in",
		"user_id", user.ID.String(),
		"session_id", result.Session.ID.String(),
		"ip", req.Device.IP,
	)
	return result, nil
}

// Register creates an account and opens its first session in one transaction.
func (o *AuthOrchestrator) Register(ctx context.Context, req RegistrationRequest, device Device) (_ *AuthResult, err error) {
	ctx, span := tracer.Start(ctx, "auth.register")
	defer func() { o.endSpan(span, err); o.metrics.registration(err) }()

	var result *AuthResult
	err = o.deps.Transactor.InTransaction(ctx, func(ctx context.Context) error {
		user, txErr := o.deps.Registration.Register(ctx, req)
		if txErr != nil {
			return txErr
		}
		if o.defaultRole != "" {
			if txErr = o.deps.Permissions.AssignRole(ctx, user.ID, o.defaultRole); txErr != nil {
				return oops.Code("REGISTER_FAILED").
					With("operation", "assign default role").
					With("role", o.defaultRole).
					Wrap(txErr)
			}
		}
		result, txErr = o.establishSession(ctx, user, device)
		return txErr
	})
	if err != nil {
		if !IsExpected(err) {
			errutil.LogError(o.logger, "registration failed", err)
		}
		return nil, err
	}

	span.SetAttributes(attribute.String("user.id", result.User.ID.String()))
	return result, nil
}

// Refresh rotates a refresh token into a new pair.
func (o *AuthOrchestrator) Refresh(ctx context.Context, refreshToken string) (_ *AuthResult, err error) {
	ctx, span := tracer.Start(ctx, "auth.refresh")
	defer func() { o.endSpan(span, err); o.metrics.rotation(err) }()

	rotation, err := o.deps.Tokens.RotateRefreshToken(ctx, refreshToken)
	if err != nil {
		if !IsExpected(err) {
			errutil.LogError(o.logger, "refresh token rotation failed", err)
		}
		return nil, err
	}

	return &AuthResult{
		User:        rotation.User,
		Permissions: rotation.Permissions,
		Session:     rotation.Session,
		Tokens:      rotation.Tokens,
	}, nil
}

// Logout revokes sessions of userID according to the logout policy. Under
// LogoutCurrentSession only sessionID is revoked; a zero sessionID falls back
// to revoking everything.
func (o *AuthOrchestrator) Logout(ctx context.Context, userID, sessionID ulid.ULID) (err error) {
	ctx, span := tracer.Start(ctx, "auth.logout", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
		attribute.String("auth.logout_policy", string(o.logoutPolicy)),
	))
	defer func() { o.endSpan(span, err) }()

	now := o.now()
	if o.logoutPolicy == LogoutCurrentSession && sessionID.Compare(ulid.ULID{}) != 0 {
		if err := o.deps.Sessions.Revoke(ctx, userID, sessionID, now); err != nil {
			if errors.Is(err, ErrNotFound) {
				return oops.Code(CodeNotFound).
					With("session_id", sessionID.String()).
					Errorf("session not found")
			}
			return oops.Code("LOGOUT_FAILED").With("operation", "revoke session").Wrap(err)
		}
		o.metrics.revoked("logout", 1)
		return nil
	}

	n, err := o.deps.Sessions.RevokeAllForUser(ctx, userID, now)
	if err != nil {
		return oops.Code("LOGOUT_FAILED").
			With("operation", "revoke all sessions").
			With("user_id", userID.String()).
			Wrap(err)
	}
	o.metrics.revoked("logout", n)
	o.logger.InfoContext(ctx, "user logged out", "user_id", userID.String(), "revoked", n)
	return nil
}

// LogoutWithAccessToken validates an access token and logs out its subject.
func (o *AuthOrchestrator) LogoutWithAccessToken(ctx context.Context, accessToken string) error {
	claims, err := o.deps.Tokens.ValidateAccessToken(accessToken)
	if err != nil {
		return err
	}
	userID, err := claims.UserID()
	if err != nil {
		return errInvalidToken()
	}
	sessionID, _ := claims.SessionULID() //nolint:errcheck // zero ID means revoke all
	return o.Logout(ctx, userID, sessionID)
}

// ValidateAccessToken exposes token validation to the boundary layer.
func (o *AuthOrchestrator) ValidateAccessToken(token string) (*AccessClaims, error) {
	return o.deps.Tokens.ValidateAccessToken(token)
}

// ChangePassword replaces the password after re-verifying the current one and
// revokes every session of the user.
func (o *AuthOrchestrator) ChangePassword(ctx context.Context, userID ulid.ULID, current, next string) (err error) {
	ctx, span := tracer.Start(ctx, "auth.change_password", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
	))
	defer func() { o.endSpan(span, err) }()

	user, err := o.deps.Accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeNotFound).Errorf("account not found")
		}
		return oops.With("operation", "load account").Wrap(err)
	}

	valid, err := o.deps.Hasher.Verify(current, user.PasswordHash)
	if err != nil {
		return oops.Code("CHANGE_PASSWORD_FAILED").With("operation", "verify password").Wrap(err)
	}
	if !valid {
		return errInvalidCredentials()
	}
	if err := CheckPasswordStrength(next, user.Email, user.Profile.FirstName, user.Profile.LastName); err != nil {
		return err
	}

	hash, err := o.deps.Hasher.Hash(next)
	if err != nil {
		return oops.Code("CHANGE_PASSWORD_FAILED").With("operation", "hash password").Wrap(err)
	}

	var revoked int64
	err = o.deps.Transactor.InTransaction(ctx, func(ctx context.Context) error {
		if err := o.deps.Accounts.UpdatePassword(ctx, userID, hash); err != nil {
			return oops.Code("CHANGE_PASSWORD_FAILED").With("operation", "update password").Wrap(err)
		}
		n, err := o.deps.Sessions.RevokeAllForUser(ctx, userID, o.now())
		if err != nil {
			return oops.Code("CHANGE_PASSWORD_FAILED").With("operation", "revoke sessions").Wrap(err)
		}
		revoked = n
		return nil
	})
	if err != nil {
		return err
	}

	o.metrics.revoked("password_change", revoked)
	o.logger.InfoContext(ctx, "password changed", "user_id", userID.String(), "revoked", revoked)
	return nil
}

// Deactivate soft-deactivates an account and revokes its sessions.
func (o *AuthOrchestrator) Deactivate(ctx context.Context, userID ulid.ULID) (err error) {
	ctx, span := tracer.Start(ctx, "auth.deactivate", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
	))
	defer func() { o.endSpan(span, err) }()

	var revoked int64
	err = o.deps.Transactor.InTransaction(ctx, func(ctx context.Context) error {
		if err := o.deps.Accounts.SetActive(ctx, userID, false); err != nil {
			if errors.Is(err, ErrNotFound) {
				return oops.Code(CodeNotFound).Errorf("account not found")
			}
			return oops.Code("DEACTIVATE_FAILED").With("operation", "set inactive").Wrap(err)
		}
		n, err := o.deps.Sessions.RevokeAllForUser(ctx, userID, o.now())
		if err != nil {
			return oops.Code("DEACTIVATE_FAILED").With("operation", "revoke sessions").Wrap(err)
		}
		revoked = n
		return nil
	})
	if err != nil {
		return err
	}
	o.metrics.revoked("deactivate", revoked)
	return nil
}

// Sessions lists the sessions of a user, newest first.
func (o *AuthOrchestrator) Sessions(ctx context.Context, userID ulid.ULID) ([]*Session, error) {
	sessions, err := o.deps.Sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, oops.With("operation", "list sessions").With("user_id", userID.String()).Wrap(err)
	}
	return sessions, nil
}

// establishSession must run inside a transaction.
func (o *AuthOrchestrator) establishSession(ctx context.Context, user *User, device Device) (*AuthResult, error) {
	perms, err := o.deps.Resolver.ResolveEffectivePermissions(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	sessionID := ulid.Make()
	pair, err := o.deps.Tokens.IssueTokenPair(user.ID, sessionID, perms)
	if err != nil {
		return nil, err
	}

	session, err := NewSession(sessionID, user.ID, pair.RefreshTokenHash, device.IP, device.UserAgent, pair.IssuedAt, pair.RefreshExpiresAt)
	if err != nil {
		return nil, oops.Code("SESSION_CREATE_FAILED").With("operation", "build session").Wrap(err)
	}
	if err := o.deps.Sessions.Create(ctx, session); err != nil {
		return nil, oops.Code("SESSION_CREATE_FAILED").
			With("operation", "persist session").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	return &AuthResult{User: user, Permissions: perms, Session: session, Tokens: pair}, nil
}

func (o *AuthOrchestrator) endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		if IsExpected(err) {
			span.SetAttributes(attribute.String("auth.outcome", ErrorCode(err)))
		} else {
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}
