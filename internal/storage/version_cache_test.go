package storage

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portfolio-versioning/internal/circuitbreaker"
	apperrors "github.com/portfolio-versioning/internal/errors"
)

func setupTestVersionCache(t *testing.T, ttl time.Duration) (*VersionCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewVersionCache(NewRedisCacheFromClient(client), ttl), mr
}

func TestGenerateCacheKey(t *testing.T) {
	id := uuid.MustParse("7F3C2A4E-0000-4000-8000-000000000001")
	assert.Equal(t, "version:7f3c2a4e-0000-4000-8000-000000000001:3", VersionKey(id, 3))
	assert.Equal(t, "version:a:b", GenerateCacheKey(CacheKeyVersion, "A", "b"))
}

func TestVersionCache_SetGet(t *testing.T) {
	cache, mr := setupTestVersionCache(t, time.Hour)
	ctx := testContext(t)

	pid := uuid.New()
	v := newTestVersion(pid, 1, nil)
	v.PortfolioState["nav"] = json.Number("101.25")

	_, found, err := cache.Get(ctx, pid, 1)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.Set(ctx, v))
	assert.True(t, mr.Exists(VersionKey(pid, 1)))
	assert.Equal(t, time.Hour, mr.TTL(VersionKey(pid, 1)))

	got, found, err := cache.Get(ctx, pid, 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, v.ID, got.ID)
	assert.Equal(t, v.StateHash, got.StateHash)
	// Numbers come back as json.Number, not float64
	assert.Equal(t, json.Number("101.25"), got.PortfolioState["nav"])
	assert.Len(t, got.ConstituentsState, 1)
}

func TestVersionCache_Expiry(t *testing.T) {
	cache, mr := setupTestVersionCache(t, time.Minute)
	ctx := testContext(t)

	v := newTestVersion(uuid.New(), 1, nil)
	require.NoError(t, cache.Set(ctx, v))

	mr.FastForward(2 * time.Minute)

	_, found, err := cache.Get(ctx, v.PortfolioID, 1)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestVersionCache_InvalidatePortfolio(t *testing.T) {
	cache, mr := setupTestVersionCache(t, time.Hour)
	ctx := testContext(t)

	pid := uuid.New()
	other := uuid.New()
	for n := 1; n <= 3; n++ {
		require.NoError(t, cache.Set(ctx, newTestVersion(pid, n, nil)))
	}
	require.NoError(t, cache.Set(ctx, newTestVersion(other, 1, nil)))

	require.NoError(t, cache.InvalidatePortfolio(ctx, pid))

	for n := 1; n <= 3; n++ {
		assert.False(t, mr.Exists(VersionKey(pid, n)))
	}
	assert.True(t, mr.Exists(VersionKey(other, 1)))
}

func TestVersionCache_CorruptEntry(t *testing.T) {
	cache, mr := setupTestVersionCache(t, time.Hour)
	ctx := testContext(t)

	pid := uuid.New()
	require.NoError(t, mr.Set(VersionKey(pid, 1), "{not json"))

	_, _, err := cache.Get(ctx, pid, 1)
	assert.Error(t, err)
}

func TestVersionCache_BreakerFailsFast(t *testing.T) {
	cache, mr := setupTestVersionCache(t, time.Hour)
	breaker := circuitbreaker.New(circuitbreaker.Config{Name: "version-cache", FailureThreshold: 2, Cooldown: time.Hour}, nil)
	cache.WithBreaker(breaker)
	ctx := testContext(t)

	pid := uuid.New()
	require.NoError(t, cache.Set(ctx, newTestVersion(pid, 1, nil)))

	mr.SetError("ERR injected failure")
	for i := 0; i < 2; i++ {
		_, _, err := cache.Get(ctx, pid, 1)
		require.Error(t, err)
	}
	require.Equal(t, gobreaker.StateOpen, breaker.State())

	// Redis is healthy again but the circuit stays open until the cooldown ends
	mr.SetError("")
	_, _, err := cache.Get(ctx, pid, 1)
	require.True(t, circuitbreaker.IsOpen(err))
	var catErr *apperrors.CategorizedError
	require.ErrorAs(t, err, &catErr)
	assert.Equal(t, apperrors.CategoryCache, catErr.Category)
}
