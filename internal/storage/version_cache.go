package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/portfolio-versioning/internal/circuitbreaker"
	apperrors "github.com/portfolio-versioning/internal/errors"
	"github.com/portfolio-versioning/internal/models"
)

// CacheKeyType represents different types of cache keys
type CacheKeyType string

// CacheKeyVersion is for immutable version records
const CacheKeyVersion CacheKeyType = "version"

// GenerateCacheKey generates a cache key for a given type and parameters
// Format: <type>:<param1>:<param2>:...
func GenerateCacheKey(keyType CacheKeyType, params ...string) string {
	parts := make([]string, 0, len(params)+1)
	parts = append(parts, string(keyType))
	for _, param := range params {
		parts = append(parts, strings.ToLower(param))
	}
	return strings.Join(parts, ":")
}

// VersionCache is a read-through cache of version records. Versions never
// change once written, so entries are only dropped when their portfolio is
// deleted or the TTL lapses.
type VersionCache struct {
	redis   *RedisCache
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker
}

// NewVersionCache creates a version cache
func NewVersionCache(redis *RedisCache, ttl time.Duration) *VersionCache {
	return &VersionCache{redis: redis, ttl: ttl}
}

// WithBreaker guards every Redis call with b. While the circuit is open
// calls fail fast with a CacheError and readers fall back to the store.
func (c *VersionCache) WithBreaker(b *gobreaker.CircuitBreaker) *VersionCache {
	c.breaker = b
	return c
}

func (c *VersionCache) guard(fn func() error) error {
	if c.breaker == nil {
		return fn()
	}
	return circuitbreaker.Do(c.breaker, fn)
}

// VersionKey returns the key of one version record
// Format: version:<portfolio-id>:<version-number>
func VersionKey(portfolioID uuid.UUID, versionNumber int) string {
	return GenerateCacheKey(CacheKeyVersion, portfolioID.String(), fmt.Sprintf("%d", versionNumber))
}

// Get returns the cached version or found == false on a miss
func (c *VersionCache) Get(ctx context.Context, portfolioID uuid.UUID, versionNumber int) (*models.PortfolioVersion, bool, error) {
	var (
		data  []byte
		found bool
	)
	err := c.guard(func() (err error) {
		data, found, err = c.redis.Get(ctx, VersionKey(portfolioID, versionNumber))
		return err
	})
	if err != nil {
		return nil, false, apperrors.NewCacheError("get version", err)
	}
	if !found {
		return nil, false, nil
	}

	var v models.PortfolioVersion
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, false, apperrors.NewCacheError("decode version", err)
	}
	return &v, true, nil
}

// Set stores a version record with the configured TTL
func (c *VersionCache) Set(ctx context.Context, v *models.PortfolioVersion) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperrors.NewCacheError("encode version", err)
	}
	err = c.guard(func() error {
		return c.redis.Set(ctx, VersionKey(v.PortfolioID, v.VersionNumber), data, c.ttl)
	})
	if err != nil {
		return apperrors.NewCacheError("set version", err)
	}
	return nil
}

// InvalidatePortfolio drops every cached version of a portfolio
func (c *VersionCache) InvalidatePortfolio(ctx context.Context, portfolioID uuid.UUID) error {
	pattern := GenerateCacheKey(CacheKeyVersion, portfolioID.String(), "*")
	err := c.guard(func() error {
		_, err := c.redis.DeletePattern(ctx, pattern)
		return err
	})
	if err != nil {
		return apperrors.NewCacheError("invalidate versions", err)
	}
	return nil
}
