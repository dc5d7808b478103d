package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) (*Config, *pflag.FlagSet) {
	t.Helper()

	cfg := &Config{}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))

	return cfg, fs
}

func TestDefaults(t *testing.T) {
	cfg, _ := newFlags(t, "--jwt-secret", "s")

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.InvitationTTL)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.NoError(t, cfg.Validate())
}

func TestEnvFillsUnsetFlags(t *testing.T) {
	t.Setenv("CHESS_PORT", "9090")
	t.Setenv("CHESS_JWT_SECRET", "from-env")
	t.Setenv("CHESS_INVITATION_TTL", "90s")
	t.Setenv("CHESS_DEBUG", "true")

	cfg, fs := newFlags(t, "--port", "7070")
	require.NoError(t, ApplyEnv(fs))

	assert.Equal(t, 7070, cfg.Port)
	assert.Equal(t, "from-env", cfg.JWTSecret)
	assert.Equal(t, 90*time.Second, cfg.InvitationTTL)
	assert.True(t, cfg.Debug)
}

func TestBadEnvValue(t *testing.T) {
	t.Setenv("CHESS_SWEEP_INTERVAL", "often")

	_, fs := newFlags(t)
	assert.ErrorContains(t, ApplyEnv(fs), "CHESS_SWEEP_INTERVAL")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{"no secret", nil},
		{"bad port", []string{"--jwt-secret", "s", "--port", "0"}},
		{"retention too short", []string{"--jwt-secret", "s", "--retention", "1h", "--stale-after", "2h"}},
		{"bad redis scheme", []string{"--jwt-secret", "s", "--redis-url", "http://x"}},
		{"zero ttl", []string{"--jwt-secret", "s", "--invitation-ttl", "0s"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, _ := newFlags(t, tc.args...)
			assert.Error(t, cfg.Validate())
		})
	}
}
