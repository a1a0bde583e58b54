package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zatekoja/fieldservice-locator/internal/adapters/database"
	"github.com/zatekoja/fieldservice-locator/internal/adapters/events"
	"github.com/zatekoja/fieldservice-locator/internal/adapters/providers/geocoding"
	"github.com/zatekoja/fieldservice-locator/internal/adapters/surface"
	"github.com/zatekoja/fieldservice-locator/internal/application/services"
	"github.com/zatekoja/fieldservice-locator/internal/domain/entities"
	"github.com/zatekoja/fieldservice-locator/internal/domain/providers"
	"github.com/zatekoja/fieldservice-locator/internal/domain/repositories"
)

func at(lat, lon float64) *entities.Coordinates {
	return &entities.Coordinates{Latitude: lat, Longitude: lon}
}

func testRoster() []*entities.ProviderRecord {
	return []*entities.ProviderRecord{
		{ID: "paulista-tv", Name: "Paulista TV e Antenas", Coordinates: at(-23.5630, -46.6543), City: "São Paulo"},
		{ID: "bela-vista", Name: "Bela Vista Instalações", Coordinates: at(-23.5580, -46.6450), City: "São Paulo"},
		{ID: "santo-amaro", Name: "Santo Amaro Sinal", Coordinates: at(-23.6542, -46.7069), City: "São Paulo"},
		{ID: "campinas", Name: "Campinas Parabólicas", Coordinates: at(-22.9099, -47.0626), City: "Campinas"},
		{ID: "sem-local", Name: "Antenas Sem Endereço", City: "Manaus"},
	}
}

type testEnv struct {
	registry   *services.SessionRegistry
	bus        providers.EventBus
	roster     repositories.ProviderRepository
	classifier *services.QueryClassifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	classifier, err := services.NewQueryClassifier("")
	require.NoError(t, err)
	geocoder := geocoding.NewMockProvider()
	bus := events.NewMemoryEventBus()
	t.Cleanup(func() { _ = bus.Close() })
	roster := database.NewStaticProviderRepository(testRoster())

	opts := &services.SessionOptions{
		Classifier:  classifier,
		Resolver:    services.NewLocationResolver(geocoder, nil, time.Second, nil),
		Suggestions: services.NewSuggestionService(classifier, geocoder, services.SuggestionOptions{Debounce: 100 * time.Millisecond}),
		Ranker:      services.NewProximityRanker(),
		Roster:      roster,
		Bus:         bus,
		NewSurface: func(sessionID string) providers.MapSurface {
			return surface.NewEventSurface(sessionID, bus)
		},
		Profiles: map[services.View]services.RankingProfile{
			services.ViewDefault: {MaxRadiusKm: 50, MaxResults: 10},
			services.ViewCompact: {MaxRadiusKm: 5, MaxResults: 1},
		},
		RequestTimeout:   time.Second,
		FallbackSpeedKmh: 30,
	}
	registry := services.NewSessionRegistry(opts, time.Hour)
	t.Cleanup(registry.Close)

	return &testEnv{registry: registry, bus: bus, roster: roster, classifier: classifier}
}

func jsonRequest(t *testing.T, method, target string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst))
}
