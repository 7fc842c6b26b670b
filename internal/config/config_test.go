package config_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-tenant-session/internal/config"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	t.Setenv("API_BASE_URL", "")
	t.Setenv("PORT", "")
	t.Setenv("STORAGE_BACKEND", "")

	c, err := config.New()
	require.NoError(t, err)

	require.Equal(t, "http://localhost:8000/api", c.GetBaseURL())
	require.Equal(t, ":8000", c.GetPort())
	require.Equal(t, config.StorageFile, c.GetStorageBackend())
	require.Equal(t, 10*time.Second, c.GetRequestTimeout())
	require.Equal(t, 30*time.Second, c.GetRefreshLeeway())
	require.Equal(t, 15*time.Minute, c.GetAccessTokenTTL())
}

func TestNew_FromEnvironment(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://erp.example.com/api/")
	t.Setenv("PORT", "9090")
	t.Setenv("STORAGE_BACKEND", "Redis")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("API_TIMEOUT", "2s")
	t.Setenv("API_CIRCUIT_BREAKER", "true")

	c, err := config.New()
	require.NoError(t, err)

	require.Equal(t, "https://erp.example.com/api", c.GetBaseURL())
	require.Equal(t, ":9090", c.GetPort())
	require.Equal(t, config.StorageRedis, c.GetStorageBackend())
	require.Equal(t, 3, c.GetRedisDB())
	require.Equal(t, 2*time.Second, c.GetRequestTimeout())
	require.True(t, c.GetCircuitBreakerEnabled())
}

func TestNew_InvalidDuration(t *testing.T) {
	t.Setenv("API_TIMEOUT", "soon")

	_, err := config.New()
	require.Error(t, err)
}
