package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/fieldservice-locator/internal/domain/entities"
	"github.com/zatekoja/fieldservice-locator/internal/domain/providers"
	"github.com/zatekoja/fieldservice-locator/internal/domain/repositories"
)

// DefaultRosterTTLSeconds is used when no positive TTL is configured
const DefaultRosterTTLSeconds = 60

const rosterListCacheKey = "providers:list"

func providerCacheKey(id string) string {
	return fmt.Sprintf("provider:%s", id)
}

// CachedProviderAdapter wraps a ProviderRepository with caching
type CachedProviderAdapter struct {
	adapter    repositories.ProviderRepository
	cache      providers.CacheProvider
	ttlSeconds int
}

// NewCachedProviderAdapter creates a new cached provider adapter
func NewCachedProviderAdapter(adapter repositories.ProviderRepository, cache providers.CacheProvider, ttlSeconds int) repositories.ProviderRepository {
	if ttlSeconds <= 0 {
		ttlSeconds = DefaultRosterTTLSeconds
	}
	return &CachedProviderAdapter{
		adapter:    adapter,
		cache:      cache,
		ttlSeconds: ttlSeconds,
	}
}

// List returns the roster, served from cache while fresh
func (a *CachedProviderAdapter) List(ctx context.Context) ([]*entities.ProviderRecord, error) {
	if cached, err := a.cache.Get(ctx, rosterListCacheKey); err == nil {
		var roster []*entities.ProviderRecord
		if err := json.Unmarshal(cached, &roster); err == nil {
			return roster, nil
		}
		log.Warn().Err(err).Msg("failed to unmarshal cached roster")
	} else if !errors.Is(err, providers.ErrCacheMiss) {
		log.Warn().Err(err).Msg("roster cache read failed")
	}

	roster, err := a.adapter.List(ctx)
	if err != nil {
		return nil, err
	}

	a.store(ctx, rosterListCacheKey, roster)
	return roster, nil
}

// GetByID returns a provider, served from cache while fresh
func (a *CachedProviderAdapter) GetByID(ctx context.Context, id string) (*entities.ProviderRecord, error) {
	key := providerCacheKey(id)
	if cached, err := a.cache.Get(ctx, key); err == nil {
		var p entities.ProviderRecord
		if err := json.Unmarshal(cached, &p); err == nil {
			return &p, nil
		}
		log.Warn().Err(err).Str("provider_id", id).Msg("failed to unmarshal cached provider")
	}

	p, err := a.adapter.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	a.store(ctx, key, p)
	return p, nil
}

// Invalidate drops the cached roster and the given providers
func (a *CachedProviderAdapter) Invalidate(ctx context.Context, ids ...string) error {
	errs := []error{a.cache.Delete(ctx, rosterListCacheKey)}
	for _, id := range ids {
		errs = append(errs, a.cache.Delete(ctx, providerCacheKey(id)))
	}
	return errors.Join(errs...)
}

func (a *CachedProviderAdapter) store(ctx context.Context, key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to marshal roster cache entry")
		return
	}
	// the request may finish before the write does
	if err := a.cache.Set(context.WithoutCancel(ctx), key, data, a.ttlSeconds); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to cache roster entry")
	}
}
