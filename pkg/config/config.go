// Package config holds the server settings and binds them to flags and
// CHESS_ environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable
const EnvPrefix = "CHESS"

type Config struct {
	Port          int
	Debug         bool
	JWTSecret     string
	JWTIssuer     string
	APIKeys       string
	AllowedOrigin string

	RedisURL           string
	ArchiveDatabaseURL string

	InvitationTTL   time.Duration
	TimeoutInterval time.Duration
	SweepInterval   time.Duration
	StaleAfter      time.Duration
	Retention       time.Duration
	PublicURL       string
}

// Validate checks the settings that have no safe default
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	if c.JWTSecret == "" {
		return errors.New("--jwt-secret is required")
	}
	if c.InvitationTTL <= 0 {
		return errors.New("--invitation-ttl must be positive")
	}
	if c.TimeoutInterval <= 0 || c.SweepInterval <= 0 {
		return errors.New("sweep intervals must be positive")
	}
	if c.Retention <= c.StaleAfter {
		return fmt.Errorf("--retention (%s) must exceed --stale-after (%s)", c.Retention, c.StaleAfter)
	}
	if c.RedisURL != "" && !strings.HasPrefix(c.RedisURL, "redis://") && !strings.HasPrefix(c.RedisURL, "rediss://") {
		return fmt.Errorf("--redis-url must use redis:// or rediss://: %q", c.RedisURL)
	}

	return nil
}

// Addr is the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// RegisterFlags declares every setting on fs with its default
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.IntVarP(&c.Port, "port", "p", 8080, "port to listen on (env: CHESS_PORT)")
	fs.BoolVarP(&c.Debug, "debug", "d", false, "enable debug logging (env: CHESS_DEBUG)")
	fs.StringVar(&c.JWTSecret, "jwt-secret", "", "HS256 secret for player tokens (env: CHESS_JWT_SECRET)")
	fs.StringVar(&c.JWTIssuer, "jwt-issuer", "chess-sessions", "expected token issuer (env: CHESS_JWT_ISSUER)")
	fs.StringVar(&c.APIKeys, "api-keys", "", "comma-separated admin API keys (env: CHESS_API_KEYS)")
	fs.StringVar(&c.AllowedOrigin, "allowed-origin", "", "websocket origin to accept, empty accepts any (env: CHESS_ALLOWED_ORIGIN)")
	fs.StringVar(&c.RedisURL, "redis-url", "", "store state in redis instead of memory (env: CHESS_REDIS_URL)")
	fs.StringVar(&c.ArchiveDatabaseURL, "archive-database-url", "", "postgres url for archiving finished games (env: CHESS_ARCHIVE_DATABASE_URL)")
	fs.DurationVar(&c.InvitationTTL, "invitation-ttl", 5*time.Minute, "how long invitations stay open (env: CHESS_INVITATION_TTL)")
	fs.DurationVar(&c.TimeoutInterval, "timeout-interval", time.Second, "how often flags are checked (env: CHESS_TIMEOUT_INTERVAL)")
	fs.DurationVar(&c.SweepInterval, "sweep-interval", time.Minute, "how often cleanup sweeps run (env: CHESS_SWEEP_INTERVAL)")
	fs.DurationVar(&c.StaleAfter, "stale-after", 6*time.Hour, "idle time before unfinished sessions are abandoned (env: CHESS_STALE_AFTER)")
	fs.DurationVar(&c.Retention, "retention", 48*time.Hour, "how long finished records are kept (env: CHESS_RETENTION)")
	fs.StringVar(&c.PublicURL, "public-url", "http://localhost:8080", "base URL encoded in room QR codes (env: CHESS_PUBLIC_URL)")
}

// ApplyEnv fills every flag not set on the command line from its CHESS_
// environment variable
func ApplyEnv(fs *pflag.FlagSet) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			if err := fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); err != nil {
				errs = append(errs, fmt.Errorf("%s_%s: %w", EnvPrefix, strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_")), err))
			}
		}
	})

	return errors.Join(errs...)
}
