package geocoding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/fieldservice-locator/internal/domain/providers"
	"github.com/zatekoja/fieldservice-locator/internal/infrastructure/observability"
)

const (
	// DefaultCacheTTLSeconds keeps geocoding answers for a week
	DefaultCacheTTLSeconds = 60 * 60 * 24 * 7
	cacheFamily            = "geocode"
)

// CachedProvider memoizes non-empty geocoding answers in a CacheProvider
type CachedProvider struct {
	inner      providers.GeocodingProvider
	cache      providers.CacheProvider
	ttlSeconds int
	metrics    *observability.Metrics
}

// NewCachedProvider wraps inner with a cache. metrics may be nil.
func NewCachedProvider(inner providers.GeocodingProvider, cache providers.CacheProvider, ttlSeconds int, metrics *observability.Metrics) providers.GeocodingProvider {
	if ttlSeconds <= 0 {
		ttlSeconds = DefaultCacheTTLSeconds
	}
	return &CachedProvider{inner: inner, cache: cache, ttlSeconds: ttlSeconds, metrics: metrics}
}

// Search serves from cache when possible and stores non-empty answers
func (c *CachedProvider) Search(ctx context.Context, text string, limit int) ([]providers.GeocodeResult, error) {
	key := searchCacheKey(text, limit)

	if cached, err := c.cache.Get(ctx, key); err == nil {
		var results []providers.GeocodeResult
		if err := json.Unmarshal(cached, &results); err == nil {
			observability.RecordCacheHit(ctx, c.metrics, cacheFamily)
			return results, nil
		}
		log.Warn().Err(err).Str("key", key).Msg("failed to unmarshal cached geocode")
	}
	observability.RecordCacheMiss(ctx, c.metrics, cacheFamily)

	results, err := c.inner.Search(ctx, text, limit)
	if err != nil {
		return nil, err
	}

	// an empty answer may be fixed upstream later, so only matches are kept
	if len(results) > 0 {
		if payload, err := json.Marshal(results); err == nil {
			if err := c.cache.Set(ctx, key, payload, c.ttlSeconds); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("failed to cache geocode")
			}
		}
	}
	return results, nil
}

func searchCacheKey(text string, limit int) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(text), " "))
	return "geo:v3:search:" + hashKey(fmt.Sprintf("%s|%d", normalized, limit))
}

func hashKey(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
