package service

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portfolio-versioning/internal/config"
	apperrors "github.com/portfolio-versioning/internal/errors"
	"github.com/portfolio-versioning/internal/logging"
	"github.com/portfolio-versioning/internal/storage"
	"github.com/portfolio-versioning/internal/versioning"
)

func newCachedService(t *testing.T) (*PortfolioService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	cache := storage.NewVersionCache(storage.NewRedisCacheFromClient(client), time.Hour)

	store := storage.NewMemoryStore()
	engine := versioning.NewEngine(store, cache, config.VersioningConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}, prometheus.NewRegistry(), logging.Nop())
	return NewPortfolioService(store, engine, logging.Nop()), mr
}

func TestVersionReads_DeletedPortfolioIsNotFound(t *testing.T) {
	ctx := testContext(t)
	svc, mr := newCachedService(t)

	created := createAlpha(t, svc)
	id := created.Portfolio.ID
	_, err := svc.RecordManualEdit(ctx, id, testActor, "checkpoint", nil)
	require.NoError(t, err)

	_, err = svc.GetVersion(ctx, id, 2)
	require.NoError(t, err)
	require.True(t, mr.Exists(storage.VersionKey(id, 1)))

	// Invalidation fails while Redis is erroring, leaving stale entries behind
	mr.SetError("ERR injected failure")
	require.NoError(t, svc.DeletePortfolio(ctx, id, testActor))
	mr.SetError("")
	require.True(t, mr.Exists(storage.VersionKey(id, 1)))

	_, err = svc.GetVersion(ctx, id, 1)
	assert.True(t, apperrors.IsNotFound(err), "got %v", err)

	_, err = svc.LatestVersion(ctx, id)
	assert.True(t, apperrors.IsNotFound(err), "got %v", err)

	_, err = svc.Compare(ctx, id, 1, 2)
	assert.True(t, apperrors.IsNotFound(err), "got %v", err)

	_, err = svc.History(ctx, id)
	assert.True(t, apperrors.IsNotFound(err), "got %v", err)
}
