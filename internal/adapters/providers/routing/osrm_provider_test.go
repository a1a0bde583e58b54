package routing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/fieldservice-locator/internal/domain/entities"
	apperrors "github.com/zatekoja/fieldservice-locator/pkg/errors"
)

var (
	origin      = entities.Coordinates{Latitude: -23.5614, Longitude: -46.6559}
	destination = entities.Coordinates{Latitude: -23.6542, Longitude: -46.7069}
)

func TestOSRMProvider_Route(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/route/v1/driving/-46.655900,-23.561400;-46.706900,-23.654200", r.URL.Path)
		assert.Equal(t, "geojson", r.URL.Query().Get("geometries"))
		assert.Equal(t, "full", r.URL.Query().Get("overview"))
		_, _ = w.Write([]byte(`{"code": "Ok", "routes": [{
			"distance": 15200, "duration": 1440,
			"geometry": {"type": "LineString", "coordinates": [[-46.6559, -23.5614], [-46.68, -23.60], [-46.7069, -23.6542]]}
		}]}`))
	}))
	defer server.Close()

	path, err := NewOSRMProvider(server.URL, "", server.Client()).Route(context.Background(), origin, destination)
	require.NoError(t, err)
	require.Len(t, path.Points, 3)
	assert.Equal(t, entities.Coordinates{Latitude: -23.60, Longitude: -46.68}, path.Points[1])
	assert.InDelta(t, 15.2, path.DistanceKm, 1e-9)
	assert.InDelta(t, 24.0, path.DurationMinutes, 1e-9)
}

func TestOSRMProvider_NoRoute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code": "NoRoute", "message": "Impossible route", "routes": []}`))
	}))
	defer server.Close()

	_, err := NewOSRMProvider(server.URL, "foot", server.Client()).Route(context.Background(), origin, destination)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeExternal))
}

func TestUnconfiguredProvider(t *testing.T) {
	_, err := NewUnconfiguredProvider().Route(context.Background(), origin, destination)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeServiceUnconfigured))
}

type failingRouter struct{ calls int }

func (f *failingRouter) Route(ctx context.Context, o, d entities.Coordinates) (*entities.PathGeometry, error) {
	f.calls++
	return nil, errors.New("connection refused")
}

func TestBreakerProvider_FailsFastWhenOpen(t *testing.T) {
	inner := &failingRouter{}
	router := NewBreakerProvider(inner, 1, time.Minute)

	_, err := router.Route(context.Background(), origin, destination)
	require.Error(t, err)
	_, err = router.Route(context.Background(), origin, destination)
	require.Error(t, err)

	assert.Equal(t, 1, inner.calls)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNetworkFailure))
}
