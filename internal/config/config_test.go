package config

import (
	"testing"
	"time"

	"github.com/raakeshmj/textgate/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	cfg := Load()
	cfg.StoreBackend = BackendFile

	assert.Equal(t, 10, cfg.GuestRateLimit)
	assert.Equal(t, 100, cfg.UserRateLimit)
	assert.Equal(t, 1000, cfg.ProRateLimit)
	assert.Equal(t, "fail_closed", cfg.RateLimitFailure)
	assert.False(t, cfg.ReplayProtection)
	assert.Equal(t, 10*time.Minute, cfg.InferenceCacheTTL)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("PRO_RATE_LIMIT", "5000")
	t.Setenv("TOKEN_TTL", "2h")
	t.Setenv("ENABLE_USER_SIGNUP", "false")
	t.Setenv("USER_RATE_LIMIT", "not-a-number")

	cfg := Load()
	assert.Equal(t, BackendSQLite, cfg.StoreBackend)
	assert.Equal(t, 5000, cfg.ProRateLimit)
	assert.Equal(t, 100, cfg.UserRateLimit)
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
	assert.False(t, cfg.EnableUserSignup)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			StoreBackend:     BackendMemory,
			JWTSecret:        "s",
			GuestRateLimit:   1,
			UserRateLimit:    1,
			ProRateLimit:     1,
			RateLimitFailure: "fail_open",
		}
	}

	require.NoError(t, base().Validate())

	c := base()
	c.StoreBackend = "postgres"
	assert.Error(t, c.Validate())

	c = base()
	c.Env = "production"
	c.JWTSecret = defaultJWTSecret
	assert.Error(t, c.Validate())

	c = base()
	c.GuestRateLimit = 0
	assert.Error(t, c.Validate())

	c = base()
	c.AdminUsername = "root"
	assert.Error(t, c.Validate())
}

func TestDynamicConfigManager_LimitFor(t *testing.T) {
	m := NewDynamicConfigManager(DefaultTierLimits())

	assert.Equal(t, 10, m.LimitFor(db.TierGuest))
	assert.Equal(t, 100, m.LimitFor(db.TierUser))
	assert.Equal(t, 1000, m.LimitFor(db.TierPro))
	assert.Equal(t, FallbackLimit, m.LimitFor("enterprise"))

	require.NoError(t, m.UpdateLimits(TierLimits{Guest: 1, User: 2, Pro: 3}))
	assert.Equal(t, 2, m.LimitFor(db.TierUser))

	assert.Error(t, m.UpdateLimits(TierLimits{Guest: 0, User: 2, Pro: 3}))
	assert.Equal(t, 1, m.LimitFor(db.TierGuest))
}
