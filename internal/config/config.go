// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contractly Contributors

// Package config loads authcore settings from a YAML file, the environment
// and command-line flags.
//
// Precedence, highest first: changed flags, environment, file, flag defaults.
package config

import (
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/contractly/authcore/internal/auth"
	"github.com/contractly/authcore/internal/logging"
)

// Environment variables read during Load.
const (
	EnvDatabaseURL = "DATABASE_URL"
	EnvSigningKey  = "AUTHCORE_SIGNING_KEY"
)

// envKeys maps environment variables onto config keys.
var envKeys = map[string]string{
	EnvDatabaseURL: "database-url",
	EnvSigningKey:  "token.signing-key",
}

// Config is the full process configuration.
type Config struct {
	DatabaseURL   string              `koanf:"database-url"`
	Database      DatabaseConfig      `koanf:"database"`
	Log           LogConfig           `koanf:"log"`
	Token         TokenConfig         `koanf:"token"`
	Lockout       LockoutConfig       `koanf:"lockout"`
	Logout        LogoutConfig        `koanf:"logout"`
	Registration  RegistrationConfig  `koanf:"registration"`
	Reaper        ReaperConfig        `koanf:"reaper"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// DatabaseConfig tunes the connection pool.
type DatabaseConfig struct {
	MaxConns     int32         `koanf:"max-conns"`
	PingAttempts uint64        `koanf:"ping-attempts"`
	PingBackoff  time.Duration `koanf:"ping-backoff"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// TokenConfig holds the access/refresh token settings.
type TokenConfig struct {
	Issuer     string        `koanf:"issuer"`
	Audience   string        `koanf:"audience"`
	SigningKey string        `koanf:"signing-key"`
	AccessTTL  time.Duration `koanf:"access-ttl"`
	RefreshTTL time.Duration `koanf:"refresh-ttl"`
}

// LockoutConfig holds the brute-force lockout settings.
type LockoutConfig struct {
	Threshold int           `koanf:"threshold"`
	Duration  time.Duration `koanf:"duration"`
}

// LogoutConfig selects which sessions a logout revokes.
type LogoutConfig struct {
	Policy string `koanf:"policy"`
}

// RegistrationConfig holds registration settings.
type RegistrationConfig struct {
	// DefaultRole is assigned to every new account. Empty disables it.
	DefaultRole string `koanf:"default-role"`
}

// ReaperConfig controls the background expired-session sweep.
type ReaperConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval"`
}

// ObservabilityConfig holds the metrics/health listener.
type ObservabilityConfig struct {
	// Addr is the listen address. Empty disables the server.
	Addr string `koanf:"addr"`
}

// Default values for flags.
const (
	DefaultIssuer            = "authcore"
	DefaultAudience          = "authcore-api"
	DefaultLogFormat         = "json"
	DefaultLogLevel          = "info"
	DefaultReaperInterval    = 10 * time.Minute
	DefaultObservabilityAddr = "127.0.0.1:9100"
	DefaultPingAttempts      = 8
	DefaultPingBackoff       = 250 * time.Millisecond
)

// RegisterFlags defines every config key as a flag on fs. Flag names equal
// config keys so posflag can overlay them.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("database-url", "", "PostgreSQL connection URL (env "+EnvDatabaseURL+")")
	fs.Int32("database.max-conns", 0, "maximum pool connections (0 = pgx default)")
	fs.Uint64("database.ping-attempts", DefaultPingAttempts, "startup ping attempts")
	fs.Duration("database.ping-backoff", DefaultPingBackoff, "first startup ping retry delay")

	fs.String("log.format", DefaultLogFormat, "log format (json or text)")
	fs.String("log.level", DefaultLogLevel, "log level (debug, info, warn, error)")

	fs.String("token.issuer", DefaultIssuer, "access token issuer")
	fs.String("token.audience", DefaultAudience, "access token audience")
	fs.String("token.signing-key", "", "HS256 signing key, at least 32 bytes (env "+EnvSigningKey+")")
	fs.Duration("token.access-ttl", auth.DefaultAccessTokenTTL, "access token lifetime")
	fs.Duration("token.refresh-ttl", auth.DefaultRefreshTokenTTL, "refresh token lifetime")

	fs.Int("lockout.threshold", auth.DefaultLockoutThreshold, "consecutive failures before lockout")
	fs.Duration("lockout.duration", auth.DefaultLockoutDuration, "lockout duration")

	fs.String("logout.policy", string(auth.LogoutAllSessions), "sessions revoked on logout (all or current)")

	fs.String("registration.default-role", "", "role assigned to new accounts (empty = none)")

	fs.Bool("reaper.enabled", true, "periodically revoke expired sessions")
	fs.Duration("reaper.interval", DefaultReaperInterval, "expired session sweep interval")

	fs.String("observability.addr", DefaultObservabilityAddr, "metrics/health HTTP address (empty = disabled)")
}

// Load builds a Config from the optional YAML file at path, the environment
// and the flags registered on fs. It does not validate.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("operation", "load config file").
				With("path", path).
				Wrap(err)
		}
	}

	for env, key := range envKeys {
		if v := os.Getenv(env); v != "" {
			if err := k.Set(key, v); err != nil {
				return nil, oops.Code("CONFIG_LOAD_FAILED").With("env", env).Wrap(err)
			}
		}
	}

	if fs != nil {
		if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "load flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "decode config").Wrap(err)
	}
	return &cfg, nil
}

// Validate checks the settings the servers cannot start without. The
// database URL is checked by the commands that need it.
func (c *Config) Validate() error {
	if len(c.Token.SigningKey) < auth.MinSigningKeyLength {
		return oops.Code("CONFIG_INVALID").
			With("key", "token.signing-key").
			Errorf("signing key must be at least %d bytes", auth.MinSigningKeyLength)
	}
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return oops.Code("CONFIG_INVALID").
			With("key", "token").
			Errorf("token lifetimes must be positive")
	}
	if err := c.LockoutPolicy().Validate(); err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "lockout").Errorf("%s", err.Error())
	}
	if !c.LogoutPolicy().Valid() {
		return oops.Code("CONFIG_INVALID").
			With("key", "logout.policy").
			Errorf("logout policy must be 'all' or 'current', got %q", c.Logout.Policy)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.Code("CONFIG_INVALID").
			With("key", "log.format").
			Errorf("log format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "log.level").Errorf("%s", err.Error())
	}
	if c.Reaper.Enabled && c.Reaper.Interval <= 0 {
		return oops.Code("CONFIG_INVALID").
			With("key", "reaper.interval").
			Errorf("reaper interval must be positive")
	}
	return nil
}

// RequireDatabaseURL returns the database URL or a CONFIG_INVALID error.
func (c *Config) RequireDatabaseURL() (string, error) {
	if c.DatabaseURL == "" {
		return "", oops.Code("CONFIG_INVALID").
			With("key", "database-url").
			Errorf("%s environment variable or --database-url is required", EnvDatabaseURL)
	}
	return c.DatabaseURL, nil
}

// TokenConfig converts the token settings.
func (c *Config) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		Issuer:     c.Token.Issuer,
		Audience:   c.Token.Audience,
		SigningKey: []byte(c.Token.SigningKey),
		AccessTTL:  c.Token.AccessTTL,
		RefreshTTL: c.Token.RefreshTTL,
	}
}

// LockoutPolicy converts the lockout settings.
func (c *Config) LockoutPolicy() auth.LockoutPolicy {
	return auth.LockoutPolicy{Threshold: c.Lockout.Threshold, Duration: c.Lockout.Duration}
}

// LogoutPolicy converts the logout setting.
func (c *Config) LogoutPolicy() auth.LogoutPolicy {
	return auth.LogoutPolicy(c.Logout.Policy)
}

// LoggingOptions returns handler options for service at version.
func (c *Config) LoggingOptions(service, version string) logging.Options {
	return logging.Options{
		Service: service,
		Version: version,
		Format:  c.Log.Format,
		Level:   c.Log.Level,
	}
}
