package directions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mmcloughlin/geohash"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/fieldservice-locator/internal/domain/entities"
	"github.com/zatekoja/fieldservice-locator/internal/domain/providers"
	"github.com/zatekoja/fieldservice-locator/internal/infrastructure/observability"
)

const (
	// DefaultGeohashPrecision gives cells of roughly 150 m, close enough that
	// travel times within a cell pair are interchangeable
	DefaultGeohashPrecision = 7
	// DefaultCacheTTLSeconds keeps estimates for fifteen minutes
	DefaultCacheTTLSeconds = 15 * 60
	cacheFamily            = "directions"
)

// CachedProvider shares directions estimates across sessions, keyed by the
// geohash cells of both endpoints. Only successful estimates are stored.
type CachedProvider struct {
	inner      providers.DirectionsProvider
	cache      providers.CacheProvider
	namespace  string
	precision  uint
	ttlSeconds int
	metrics    *observability.Metrics
}

// NewCachedProvider wraps inner with a geohash-keyed cache. namespace separates
// estimates from different services or travel profiles. metrics may be nil.
func NewCachedProvider(inner providers.DirectionsProvider, cache providers.CacheProvider, namespace string, precision, ttlSeconds int, metrics *observability.Metrics) providers.DirectionsProvider {
	if precision <= 0 || precision > 12 {
		precision = DefaultGeohashPrecision
	}
	if ttlSeconds <= 0 {
		ttlSeconds = DefaultCacheTTLSeconds
	}
	return &CachedProvider{
		inner:      inner,
		cache:      cache,
		namespace:  namespace,
		precision:  uint(precision),
		ttlSeconds: ttlSeconds,
		metrics:    metrics,
	}
}

// Estimate serves from cache when possible
func (c *CachedProvider) Estimate(ctx context.Context, origin, destination entities.Coordinates) (*providers.DirectionsEstimate, error) {
	key := c.cacheKey(origin, destination)

	if cached, err := c.cache.Get(ctx, key); err == nil {
		var estimate providers.DirectionsEstimate
		if err := json.Unmarshal(cached, &estimate); err == nil {
			observability.RecordCacheHit(ctx, c.metrics, cacheFamily)
			return &estimate, nil
		}
	}
	observability.RecordCacheMiss(ctx, c.metrics, cacheFamily)

	estimate, err := c.inner.Estimate(ctx, origin, destination)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(estimate); err == nil {
		if err := c.cache.Set(context.WithoutCancel(ctx), key, payload, c.ttlSeconds); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to cache directions estimate")
		}
	}
	return estimate, nil
}

func (c *CachedProvider) cacheKey(origin, destination entities.Coordinates) string {
	return fmt.Sprintf("dir:v1:%s:%s:%s",
		c.namespace,
		geohash.EncodeWithPrecision(origin.Latitude, origin.Longitude, c.precision),
		geohash.EncodeWithPrecision(destination.Latitude, destination.Longitude, c.precision),
	)
}
