package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/fieldservice-locator/internal/adapters/cache"
	"github.com/zatekoja/fieldservice-locator/internal/adapters/database"
	"github.com/zatekoja/fieldservice-locator/internal/domain/entities"
)

type countingRepository struct {
	*database.StaticProviderRepository
	listCalls int
	getCalls  int
}

func (r *countingRepository) List(ctx context.Context) ([]*entities.ProviderRecord, error) {
	r.listCalls++
	return r.StaticProviderRepository.List(ctx)
}

func (r *countingRepository) GetByID(ctx context.Context, id string) (*entities.ProviderRecord, error) {
	r.getCalls++
	return r.StaticProviderRepository.GetByID(ctx, id)
}

func newCountingRepository() *countingRepository {
	return &countingRepository{
		StaticProviderRepository: database.NewStaticProviderRepository([]*entities.ProviderRecord{
			{ID: "p-1", Name: "Antenas Sul", Coordinates: &entities.Coordinates{Latitude: -23.6, Longitude: -46.7}},
			{ID: "p-2", Name: "Sinal Norte"},
		}),
	}
}

func TestCachedProviderAdapter_ListServedFromCache(t *testing.T) {
	ctx := context.Background()
	inner := newCountingRepository()
	adapter := database.NewCachedProviderAdapter(inner, cache.NewMemoryAdapter(100, time.Minute), 60)

	first, err := adapter.List(ctx)
	require.NoError(t, err)
	second, err := adapter.List(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, inner.listCalls)
	require.Len(t, second, 2)
	assert.Equal(t, first[0].ID, second[0].ID)
	require.NotNil(t, second[0].Coordinates)
	assert.InDelta(t, -23.6, second[0].Coordinates.Latitude, 1e-9)
}

func TestCachedProviderAdapter_GetByIDServedFromCache(t *testing.T) {
	ctx := context.Background()
	inner := newCountingRepository()
	adapter := database.NewCachedProviderAdapter(inner, cache.NewMemoryAdapter(100, time.Minute), 60)

	for i := 0; i < 3; i++ {
		p, err := adapter.GetByID(ctx, "p-2")
		require.NoError(t, err)
		assert.Equal(t, "Sinal Norte", p.Name)
	}
	assert.Equal(t, 1, inner.getCalls)
}

func TestCachedProviderAdapter_NotFoundIsNotCached(t *testing.T) {
	ctx := context.Background()
	inner := newCountingRepository()
	adapter := database.NewCachedProviderAdapter(inner, cache.NewMemoryAdapter(100, time.Minute), 60)

	_, err := adapter.GetByID(ctx, "nope")
	require.Error(t, err)
	_, err = adapter.GetByID(ctx, "nope")
	require.Error(t, err)
	assert.Equal(t, 2, inner.getCalls)
}

func TestCachedProviderAdapter_Invalidate(t *testing.T) {
	ctx := context.Background()
	inner := newCountingRepository()
	adapter := database.NewCachedProviderAdapter(inner, cache.NewMemoryAdapter(100, time.Minute), 60).(*database.CachedProviderAdapter)

	_, err := adapter.List(ctx)
	require.NoError(t, err)
	require.NoError(t, adapter.Invalidate(ctx, "p-1"))
	_, err = adapter.List(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, inner.listCalls)
}
