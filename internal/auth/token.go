// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contractly Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Token lifetimes.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour

	// MinSigningKeyLength is the minimum HS256 key length in bytes.
	MinSigningKeyLength = 32
)

// TokenConfig is the issuer/audience/key triple plus lifetimes.
type TokenConfig struct {
	Issuer     string
	Audience   string
	SigningKey []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Validate checks the token configuration.
func (c TokenConfig) Validate() error {
	if c.Issuer == "" {
		return oops.Code("TOKEN_CONFIG_INVALID").Errorf("issuer is required")
	}
	if c.Audience == "" {
		return oops.Code("TOKEN_CONFIG_INVALID").Errorf("audience is required")
	}
	if len(c.SigningKey) < MinSigningKeyLength {
		return oops.Code("TOKEN_CONFIG_INVALID").
			With("min_length", MinSigningKeyLength).
			Errorf("signing key must be at least %d bytes", MinSigningKeyLength)
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return oops.Code("TOKEN_CONFIG_INVALID").Errorf("token lifetimes must be positive")
	}
	return nil
}

// AccessClaims are the claims carried by an access token.
type AccessClaims struct {
	SessionID   string   `json:"sid"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *AccessClaims) UserID() (ulid.ULID, error) {
	return ulid.Parse(c.Subject)
}

// SessionULID parses the session claim.
func (c *AccessClaims) SessionULID() (ulid.ULID, error) {
	return ulid.Parse(c.SessionID)
}

// HasPermission reports whether the token carries code.
func (c *AccessClaims) HasPermission(code string) bool {
	for _, p := range c.Permissions {
		if p == code {
			return true
		}
	}
	return false
}

// TokenPair is the result of issuance. RefreshTokenHash is what gets persisted.
// Both expiries are measured from IssuedAt.
type TokenPair struct {
	IssuedAt         time.Time
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshTokenHash string
	RefreshExpiresAt time.Time
}

// Rotation is the result of a refresh-token rotation.
type Rotation struct {
	User        *User
	Tokens      *TokenPair
	Session     *Session
	Permissions PermissionSet
}

// permissionSource resolves current permissions for rotation.
type permissionSource interface {
	ResolveEffectivePermissions(ctx context.Context, userID ulid.ULID) (PermissionSet, error)
}

// TokenService issues, validates and rotates credentials.
type TokenService struct {
	cfg         TokenConfig
	sessions    SessionStore
	accounts    AccountStore
	permissions permissionSource
	logger      *slog.Logger
	now         func() time.Time
}

// TokenServiceOption configures a TokenService.
type TokenServiceOption func(*TokenService)

// WithTokenClock overrides the clock used for issuance and validation.
func WithTokenClock(now func() time.Time) TokenServiceOption {
	return func(s *TokenService) { s.now = now }
}

// WithTokenLogger sets the logger.
func WithTokenLogger(logger *slog.Logger) TokenServiceOption {
	return func(s *TokenService) { s.logger = logger }
}

// NewTokenService creates a TokenService.
func NewTokenService(
	cfg TokenConfig,
	sessions SessionStore,
	accounts AccountStore,
	permissions *PermissionResolver,
	opts ...TokenServiceOption,
) (*TokenService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sessions == nil {
		return nil, oops.Errorf("session store is required")
	}
	if accounts == nil {
		return nil, oops.Errorf("account store is required")
	}
	if permissions == nil {
		return nil, oops.Errorf("permission resolver is required")
	}

	s := &TokenService{
		cfg:         cfg,
		sessions:    sessions,
		accounts:    accounts,
		permissions: permissions,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IssueTokenPair signs an access token and generates a refresh token. It does
// not touch storage.
func (s *TokenService) IssueTokenPair(userID, sessionID ulid.ULID, permissions PermissionSet) (*TokenPair, error) {
	now := s.now()

	access, accessExp, err := s.signAccessToken(userID, sessionID, permissions, now)
	if err != nil {
		return nil, err
	}

	refresh, refreshHash, err := GenerateRefreshToken()
	if err != nil {
		return nil, oops.Code("TOKEN_ISSUE_FAILED").With("user_id", userID.String()).Wrap(err)
	}

	return &TokenPair{
		IssuedAt:         now,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshTokenHash: refreshHash,
		RefreshExpiresAt: now.Add(s.cfg.RefreshTTL),
	}, nil
}

func (s *TokenService) signAccessToken(userID, sessionID ulid.ULID, permissions PermissionSet, now time.Time) (string, time.Time, error) {
	exp := now.Add(s.cfg.AccessTTL)
	claims := AccessClaims{
		SessionID:   sessionID.String(),
		Permissions: permissions.Codes(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ID:        ulid.Make().String(),
			Issuer:    s.cfg.Issuer,
			Audience:  jwt.ClaimStrings{s.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.SigningKey)
	if err != nil {
		return "", time.Time{}, oops.Code("TOKEN_ISSUE_FAILED").
			With("operation", "sign access token").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return signed, exp, nil
}

// ValidateAccessToken verifies signature, algorithm, issuer, audience and expiry.
func (s *TokenService) ValidateAccessToken(token string) (*AccessClaims, error) {
	if token == "" {
		return nil, errInvalidToken()
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(s.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	var claims AccessClaims
	parsed, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.cfg.SigningKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errTokenExpired()
		}
		return nil, errInvalidToken()
	}
	if !parsed.Valid {
		return nil, errInvalidToken()
	}
	if _, err := claims.UserID(); err != nil {
		return nil, errInvalidToken()
	}
	return &claims, nil
}

// RotateRefreshToken exchanges a refresh token for a new pair. The presented
// token stops working immediately; of two concurrent rotations of the same
// token exactly one succeeds.
func (s *TokenService) RotateRefreshToken(ctx context.Context, presented string) (*Rotation, error) {
	if presented == "" {
		return nil, errInvalidToken()
	}

	now := s.now()
	currentHash := HashRefreshToken(presented)

	session, err := s.sessions.GetActiveByRefreshHash(ctx, currentHash, now)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errInvalidToken()
		}
		return nil, oops.Code("TOKEN_ROTATE_FAILED").
			With("operation", "find session by refresh hash").
			Wrap(err)
	}

	user, err := s.accounts.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeNotFound).
				With("session_id", session.ID.String()).
				Errorf("account for session no longer exists")
		}
		return nil, oops.Code("TOKEN_ROTATE_FAILED").
			With("operation", "load session owner").
			With("session_id", session.ID.String()).
			Wrap(err)
	}
	if !user.Active {
		return nil, errInvalidToken()
	}

	perms, err := s.permissions.ResolveEffectivePermissions(ctx, user.ID)
	if err != nil {
		return nil, oops.With("operation", "resolve permissions for rotation").Wrap(err)
	}

	pair, err := s.IssueTokenPair(user.ID, session.ID, perms)
	if err != nil {
		return nil, err
	}

	err = s.sessions.Rotate(ctx, session.ID, currentHash, pair.RefreshTokenHash, pair.RefreshExpiresAt, now)
	if err != nil {
		if errors.Is(err, ErrStaleRefreshToken) || errors.Is(err, ErrNotFound) {
			s.logger.WarnContext(ctx, "refresh token rotation lost race or reused token",
				"session_id", session.ID.String(),
				"user_id", user.ID.String(),
			)
			return nil, errInvalidToken()
		}
		return nil, oops.Code("TOKEN_ROTATE_FAILED").
			With("operation", "rotate session hash").
			With("session_id", session.ID.String()).
			Wrap(err)
	}

	session.RefreshTokenHash = pair.RefreshTokenHash
	session.ExpiresAt = pair.RefreshExpiresAt

	return &Rotation{User: user, Tokens: pair, Session: session, Permissions: perms}, nil
}
