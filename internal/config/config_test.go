package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{"DB_DSN": "user:pw@tcp(db)/shop"}))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "none", cfg.ArchiveDriver)
	assert.Equal(t, uint32(5), cfg.BreakerMaxFailures)
	assert.False(t, cfg.MTN.Enabled())
	assert.False(t, cfg.Stripe.Enabled())
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		"DB_DSN":               "dsn",
		"PROVIDER_TIMEOUT":     "5s",
		"LOG_LEVEL":            "debug",
		"PUBLIC_BASE_URL":      "https://shop.example/",
		"MTN_SUBSCRIPTION_KEY": "sub",
		"MTN_API_USER":         "user",
		"MTN_API_KEY":          "key",
		"STRIPE_SECRET_KEY":    "sk_test",
	}))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "https://shop.example", cfg.PublicBaseURL)
	assert.True(t, cfg.MTN.Enabled())
	assert.True(t, cfg.Stripe.Enabled())
	assert.False(t, cfg.Wave.Enabled())
}

func TestFromEnv_Errors(t *testing.T) {
	_, err := FromEnv(envMap(map[string]string{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_DSN")

	_, err = FromEnv(envMap(map[string]string{
		"DB_DSN":           "dsn",
		"PROVIDER_TIMEOUT": "soon",
		"REDIS_DB":         "zero",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PROVIDER_TIMEOUT")
	assert.Contains(t, err.Error(), "REDIS_DB")
}

func TestFromEnv_LockTTLOutlivesProviderCalls(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{"DB_DSN": "dsn"}))
	require.NoError(t, err)
	assert.Greater(t, cfg.LockTTL, 2*cfg.ProviderTimeout)

	cfg, err = FromEnv(envMap(map[string]string{"DB_DSN": "dsn", "PROVIDER_TIMEOUT": "5s"}))
	require.NoError(t, err)
	assert.Equal(t, 25*time.Second, cfg.LockTTL)

	// token fetch + call may take 60s, a 15s lock would expire mid-refund
	_, err = FromEnv(envMap(map[string]string{"DB_DSN": "dsn", "LOCK_TTL": "15s"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOCK_TTL")

	_, err = FromEnv(envMap(map[string]string{"DB_DSN": "dsn", "PROVIDER_TIMEOUT": "10s", "LOCK_TTL": "20s"}))
	require.Error(t, err)

	cfg, err = FromEnv(envMap(map[string]string{"DB_DSN": "dsn", "PROVIDER_TIMEOUT": "10s", "LOCK_TTL": "21s"}))
	require.NoError(t, err)
	assert.Equal(t, 21*time.Second, cfg.LockTTL)
}
