package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "test-token-secret")
	t.Setenv("CSRF_SECRET", "test-csrf-secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.IdleTimeout)
	assert.Equal(t, 2*time.Minute, cfg.IdleWarning)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 168*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 120, cfg.RateLimitPerMinute)
	assert.True(t, cfg.AuditEnabled)
	assert.Equal(t, 2190, cfg.AuditRetentionDays)
	assert.Equal(t, "30 3 * * *", cfg.AuditPurgeCron)
	assert.False(t, cfg.IsProduction())
}

func TestConfigPlatformSettings(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "test-token-secret")
	t.Setenv("CSRF_SECRET", "test-csrf-secret")
	t.Setenv("PG_MAX_CONNS", "25")
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("REDIS_DB", "3")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	database := cfg.Database()
	assert.Equal(t, cfg.PGDSN, database.DSN)
	assert.Equal(t, int32(25), database.MaxConns)
	assert.Equal(t, 30*time.Minute, database.MaxConnLifetime)

	redis := cfg.Redis()
	assert.Equal(t, "redis:6380", redis.Addr)
	assert.Equal(t, 3, redis.DB)
	assert.Equal(t, "redis:6380", redis.Queue().Addr)
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "")
	t.Setenv("CSRF_SECRET", "test-csrf-secret")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestValidateIdleWindow(t *testing.T) {
	base := Config{
		TokenSecret:        "secret",
		CSRFSecret:         "secret",
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenTTL:    time.Hour,
		IdleTimeout:        15 * time.Minute,
		IdleWarning:        2 * time.Minute,
		RateLimitPerMinute: 60,
		AuditRetentionDays: 30,
	}
	require.NoError(t, base.Validate())

	cfg := base
	cfg.IdleWarning = cfg.IdleTimeout
	assert.Error(t, cfg.Validate())

	cfg = base
	cfg.RefreshTokenTTL = time.Minute
	assert.Error(t, cfg.Validate())

	cfg = base
	cfg.AppEnv = "production"
	assert.Error(t, cfg.Validate(), "short secret rejected in production")
	cfg.TokenSecret = "0123456789abcdef0123456789abcdef"
	assert.NoError(t, cfg.Validate())
}
