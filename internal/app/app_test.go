package app

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portfolio-versioning/internal/config"
	apperrors "github.com/portfolio-versioning/internal/errors"
	"github.com/portfolio-versioning/internal/logging"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Storage: config.StorageConfig{Driver: config.DriverMemory},
		Versioning: config.VersioningConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
		},
	}
}

func TestNew_MemoryWithRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)

	cfg := memoryConfig()
	cfg.Cache = config.CacheConfig{Enabled: true, VersionTTL: time.Hour}
	cfg.Database.Redis = config.RedisConfig{Host: host, Port: port, MaxConnections: 4}

	a, err := New(context.Background(), cfg, prometheus.NewRegistry(), logging.Nop())
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Redis)
	assert.NoError(t, a.Ping(context.Background()))

	mr.Close()
	err = a.Ping(context.Background())
	require.Error(t, err, "ping reports the cache outage")
	catErr := apperrors.Categorize(err)
	assert.Equal(t, http.StatusServiceUnavailable, catErr.StatusCode)
	assert.Equal(t, "cache", catErr.Details["service"])
}

func TestNew_CacheUnavailableIsNotFatal(t *testing.T) {
	cfg := memoryConfig()
	cfg.Cache = config.CacheConfig{Enabled: true, VersionTTL: time.Hour}
	cfg.Database.Redis = config.RedisConfig{Host: "127.0.0.1", Port: "1", MaxConnections: 4}

	a, err := New(context.Background(), cfg, nil, logging.Nop())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Redis)
	assert.NotNil(t, a.Service)
	assert.NoError(t, a.Ping(context.Background()))
}

func TestNew_UnknownDriver(t *testing.T) {
	cfg := memoryConfig()
	cfg.Storage.Driver = "sqlite"

	_, err := New(context.Background(), cfg, nil, logging.Nop())
	assert.Error(t, err)
}
