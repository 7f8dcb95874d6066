package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("ALLOWED_ORIGINS", "")
	t.Setenv("FRONTEND_URL", "")
	t.Setenv("JWT_EXPIRY", "")

	cfg := Load()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultTokenExpiry, cfg.TokenExpiry)
	assert.Equal(t, DefaultResetTokenTTL, cfg.ResetTokenTTL)
	assert.True(t, cfg.RevealUnknown)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, TokenConfig{Secret: "s3cret", Expiry: 7 * 24 * time.Hour}, cfg.TokenConfig())
	assert.False(t, cfg.IsProduction())
	assert.True(t, cfg.UsesRedisLimiter())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "k")
	t.Setenv("JWT_EXPIRY", "2h")
	t.Setenv("ENV", " Production ")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("FORGET_PASSWORD_REVEAL_UNKNOWN", "false")
	t.Setenv("RESET_URL_BASE", "https://app.example/reset/")
	t.Setenv("MAIL_PORT", "2525")

	cfg := Load()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2*time.Hour, cfg.TokenExpiry)
	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.UsesRedisLimiter())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.False(t, cfg.RevealUnknown)
	assert.Equal(t, "https://app.example/reset", cfg.ResetURLBase)
	assert.Equal(t, 2525, cfg.MailPort)
}

func TestValidate_FailsFast(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("JWT_EXPIRY", "not-a-duration")

	err := Load().Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET is required")
	assert.Contains(t, err.Error(), "JWT_EXPIRY must be positive")
}

func TestValidate_RejectsOutOfRangeHashParams(t *testing.T) {
	cases := []struct {
		name, key, value string
	}{
		{"threads above uint8", "PASSWORD_HASH_THREADS", "300"},
		{"negative threads", "PASSWORD_HASH_THREADS", "-1"},
		{"memory above uint32", "PASSWORD_HASH_MEMORY", "4294967296"},
		{"non-numeric time", "PASSWORD_HASH_TIME", "three"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "k")
			t.Setenv(tc.key, tc.value)

			err := Load().Validate()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.key)
		})
	}
}

func TestLoad_HashParamsAtLimit(t *testing.T) {
	t.Setenv("JWT_SECRET", "k")
	t.Setenv("PASSWORD_HASH_THREADS", "255")
	t.Setenv("PASSWORD_HASH_MEMORY", "4294967295")

	cfg := Load()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, uint8(255), cfg.HashThreads)
	assert.Equal(t, uint32(4294967295), cfg.HashMemory)
}
