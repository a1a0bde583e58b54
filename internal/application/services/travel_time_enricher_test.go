package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/fieldservice-locator/internal/application/services"
	"github.com/zatekoja/fieldservice-locator/internal/domain/entities"
	"github.com/zatekoja/fieldservice-locator/internal/domain/providers"
	apperrors "github.com/zatekoja/fieldservice-locator/pkg/errors"
)

func drain(t *testing.T, updates <-chan services.CandidateUpdate) []services.CandidateUpdate {
	t.Helper()
	var out []services.CandidateUpdate
	timeout := time.After(5 * time.Second)
	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return out
			}
			out = append(out, u)
		case <-timeout:
			t.Fatal("timed out waiting for enrichment to settle")
			return out
		}
	}
}

// rankedAround returns three candidates 1, 2 and 3 km north of the reference
func rankedAround(ref *entities.ReferencePoint) []entities.RankedCandidate {
	roster := []*entities.ProviderRecord{
		provider("one", ref.Latitude+0.009, ref.Longitude),
		provider("two", ref.Latitude+0.018, ref.Longitude),
		provider("three", ref.Latitude+0.027, ref.Longitude),
	}
	return services.NewProximityRanker().Rank(ref, roster, 50, 10)
}

func durationsByProvider(minutes map[string]float64) *fakeDirections {
	return &fakeDirections{estimate: func(ctx context.Context, origin, destination entities.Coordinates) (*providers.DirectionsEstimate, error) {
		km := origin.DistanceKm(destination)
		switch {
		case km < 1.5:
			return &providers.DirectionsEstimate{DurationMinutes: minutes["one"], DistanceKm: km}, nil
		case km < 2.5:
			return &providers.DirectionsEstimate{DurationMinutes: minutes["two"], DistanceKm: km}, nil
		default:
			return &providers.DirectionsEstimate{DurationMinutes: minutes["three"], DistanceKm: km}, nil
		}
	}}
}

func TestTravelTimeEnricher_OrdersByDurationOnceEnriched(t *testing.T) {
	directions := durationsByProvider(map[string]float64{"one": 12, "two": 4, "three": 8})
	enricher := services.NewTravelTimeEnricher(directions, services.EnricherOptions{}, nil)
	ref := referenceAt(-23.55, -46.63)

	updates := drain(t, enricher.Enrich(context.Background(), ref, rankedAround(ref)))

	require.Len(t, updates, 3)
	for _, u := range updates {
		assert.Equal(t, ref.Identity, u.ReferenceIdentity)
		assert.False(t, u.TravelTime.IsEstimate)
		assert.NotEmpty(t, u.TravelTime.DistanceLabel)
	}
	assert.Equal(t, []string{"two", "three", "one"}, ids(enricher.Ordered(ref)))
	assert.EqualValues(t, 3, directions.calls.Load())
}

func TestTravelTimeEnricher_SuccessIsNotRequestedAgain(t *testing.T) {
	directions := durationsByProvider(map[string]float64{"one": 3, "two": 6, "three": 9})
	enricher := services.NewTravelTimeEnricher(directions, services.EnricherOptions{}, nil)
	ref := referenceAt(-23.55, -46.63)
	candidates := rankedAround(ref)

	drain(t, enricher.Enrich(context.Background(), ref, candidates))
	again := drain(t, enricher.Enrich(context.Background(), ref, candidates))

	assert.EqualValues(t, 3, directions.calls.Load())
	assert.Empty(t, again, "cached successes are not emitted again")

	ordered := enricher.Ordered(ref)
	assert.Equal(t, []string{"one", "two", "three"}, ids(ordered))
	for _, c := range ordered {
		require.NotNil(t, c.TravelTime)
		assert.False(t, c.TravelTime.IsEstimate)
	}
}

func TestTravelTimeEnricher_TransientFailureIsEstimatedThenRetried(t *testing.T) {
	failing := true
	directions := &fakeDirections{estimate: func(ctx context.Context, origin, destination entities.Coordinates) (*providers.DirectionsEstimate, error) {
		if failing {
			return nil, apperrors.NewNetworkFailureError("directions", errors.New("503"))
		}
		return &providers.DirectionsEstimate{DurationMinutes: 5, DistanceKm: 1}, nil
	}}
	enricher := services.NewTravelTimeEnricher(directions, services.EnricherOptions{Concurrency: 1}, nil)
	ref := referenceAt(-23.55, -46.63)
	candidates := rankedAround(ref)

	first := drain(t, enricher.Enrich(context.Background(), ref, candidates))
	require.Len(t, first, 3)
	for _, u := range first {
		assert.True(t, u.TravelTime.IsEstimate)
	}
	assert.False(t, enricher.Unavailable())

	failing = false
	second := drain(t, enricher.Enrich(context.Background(), ref, candidates))
	require.Len(t, second, 3)
	for _, u := range second {
		assert.False(t, u.TravelTime.IsEstimate)
	}
	assert.EqualValues(t, 6, directions.calls.Load())
}

func TestTravelTimeEnricher_UnavailableStopsCallingAndKeepsDistanceOrder(t *testing.T) {
	directions := &fakeDirections{estimate: func(ctx context.Context, origin, destination entities.Coordinates) (*providers.DirectionsEstimate, error) {
		return nil, providers.ErrDirectionsUnavailable
	}}
	enricher := services.NewTravelTimeEnricher(directions, services.EnricherOptions{Concurrency: 1, FallbackSpeedKmh: 30}, nil)
	ref := referenceAt(-23.55, -46.63)
	candidates := rankedAround(ref)

	updates := drain(t, enricher.Enrich(context.Background(), ref, candidates))

	require.Len(t, updates, 3)
	assert.EqualValues(t, 1, directions.calls.Load())
	assert.True(t, enricher.Unavailable())

	ordered := enricher.Ordered(ref)
	assert.Equal(t, []string{"one", "two", "three"}, ids(ordered))
	for _, c := range ordered {
		require.NotNil(t, c.TravelTime)
		assert.True(t, c.TravelTime.IsEstimate)
		assert.InDelta(t, c.DistanceKm/30*60, c.TravelTime.DurationMinutes, 1e-9)
	}

	next := referenceAt(-22.90, -47.06)
	drain(t, enricher.Enrich(context.Background(), next, rankedAround(next)))
	assert.EqualValues(t, 1, directions.calls.Load(), "no directions calls once unavailable")
}

func TestTravelTimeEnricher_NilDirectionsAlwaysEstimates(t *testing.T) {
	enricher := services.NewTravelTimeEnricher(nil, services.EnricherOptions{}, nil)
	ref := referenceAt(0, 0)

	updates := drain(t, enricher.Enrich(context.Background(), ref, rankedAround(ref)))

	require.Len(t, updates, 3)
	for _, u := range updates {
		assert.True(t, u.TravelTime.IsEstimate)
	}
}

func TestTravelTimeEnricher_EstimateNeverReplacesDirectionsResult(t *testing.T) {
	calls := 0
	directions := &fakeDirections{estimate: func(ctx context.Context, origin, destination entities.Coordinates) (*providers.DirectionsEstimate, error) {
		calls++
		if calls == 1 {
			return &providers.DirectionsEstimate{DurationMinutes: 7, DistanceKm: 1}, nil
		}
		return nil, providers.ErrDirectionsUnavailable
	}}
	enricher := services.NewTravelTimeEnricher(directions, services.EnricherOptions{Concurrency: 1}, nil)
	ref := referenceAt(-23.55, -46.63)
	candidates := rankedAround(ref)[:1]

	drain(t, enricher.Enrich(context.Background(), ref, candidates))
	tt, ok := enricher.TravelTime(ref, "one")
	require.True(t, ok)
	assert.False(t, tt.IsEstimate)
	assert.Equal(t, 7.0, tt.DurationMinutes)

	// the cached success is reused, the candidate keeps its directions value
	drain(t, enricher.Enrich(context.Background(), ref, candidates))
	tt, ok = enricher.TravelTime(ref, "one")
	require.True(t, ok)
	assert.False(t, tt.IsEstimate)
}

func TestTravelTimeEnricher_SupersededReferenceNeitherWritesNorEmits(t *testing.T) {
	started := make(chan struct{}, 3)
	release := make(chan struct{})
	slowRef := referenceAt(-23.55, -46.63)

	directions := &fakeDirections{estimate: func(ctx context.Context, origin, destination entities.Coordinates) (*providers.DirectionsEstimate, error) {
		if origin.Latitude == slowRef.Latitude {
			started <- struct{}{}
			<-release
			return &providers.DirectionsEstimate{DurationMinutes: 1, DistanceKm: 1}, nil
		}
		return &providers.DirectionsEstimate{DurationMinutes: 2, DistanceKm: 1}, nil
	}}
	enricher := services.NewTravelTimeEnricher(directions, services.EnricherOptions{}, nil)

	stale := enricher.Enrich(context.Background(), slowRef, rankedAround(slowRef))
	<-started

	freshRef := referenceAt(-22.90, -47.06)
	fresh := drain(t, enricher.Enrich(context.Background(), freshRef, rankedAround(freshRef)))
	close(release)

	assert.Empty(t, drain(t, stale), "superseded enrichment must not emit")
	require.Len(t, fresh, 3)
	assert.Nil(t, enricher.Ordered(slowRef))
	for _, c := range enricher.Ordered(freshRef) {
		require.NotNil(t, c.TravelTime)
		assert.Equal(t, 2.0, c.TravelTime.DurationMinutes)
	}
}

func TestTravelTimeEnricher_ResetCancelsInFlight(t *testing.T) {
	directions := &fakeDirections{estimate: func(ctx context.Context, origin, destination entities.Coordinates) (*providers.DirectionsEstimate, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	enricher := services.NewTravelTimeEnricher(directions, services.EnricherOptions{Timeout: time.Minute}, nil)
	ref := referenceAt(-23.55, -46.63)

	updates := enricher.Enrich(context.Background(), ref, rankedAround(ref))
	assert.Eventually(t, func() bool { return directions.calls.Load() == 3 }, 2*time.Second, 5*time.Millisecond)
	enricher.Reset()

	assert.Empty(t, drain(t, updates))
	assert.Nil(t, enricher.Ordered(ref))
}

func TestTravelTimeEnricher_TimeoutIsTransient(t *testing.T) {
	directions := &fakeDirections{estimate: func(ctx context.Context, origin, destination entities.Coordinates) (*providers.DirectionsEstimate, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	enricher := services.NewTravelTimeEnricher(directions, services.EnricherOptions{Timeout: 20 * time.Millisecond}, nil)
	ref := referenceAt(-23.55, -46.63)

	updates := drain(t, enricher.Enrich(context.Background(), ref, rankedAround(ref)))

	require.Len(t, updates, 3)
	for _, u := range updates {
		assert.True(t, u.TravelTime.IsEstimate)
	}
	assert.False(t, enricher.Unavailable())
}

func TestSortCandidates_TravelTimeFirstThenDistance(t *testing.T) {
	candidates := []entities.RankedCandidate{
		{Provider: provider("a", 0, 0), DistanceKm: 1},
		{Provider: provider("b", 0, 0), DistanceKm: 5, TravelTime: &entities.TravelTime{DurationMinutes: 9}},
		{Provider: provider("c", 0, 0), DistanceKm: 3, TravelTime: &entities.TravelTime{DurationMinutes: 4}},
		{Provider: provider("d", 0, 0), DistanceKm: 0.5},
	}

	services.SortCandidates(candidates)

	assert.Equal(t, []string{"c", "b", "d", "a"}, ids(candidates))
}

func TestSortCandidates_EqualKeysKeepInputOrder(t *testing.T) {
	candidates := []entities.RankedCandidate{
		{Provider: provider("zeta", 0, 0), DistanceKm: 2},
		{Provider: provider("alpha", 0, 0), DistanceKm: 2},
		{Provider: provider("mu", 0, 0), DistanceKm: 2, TravelTime: &entities.TravelTime{DurationMinutes: 4}},
		{Provider: provider("beta", 0, 0), DistanceKm: 2, TravelTime: &entities.TravelTime{DurationMinutes: 4}},
	}

	services.SortCandidates(candidates)

	assert.Equal(t, []string{"mu", "beta", "zeta", "alpha"}, ids(candidates))
}

func TestTravelTimeEnricher_OrderedKeepsRosterOrderForEqualDistances(t *testing.T) {
	enricher := services.NewTravelTimeEnricher(nil, services.EnricherOptions{}, nil)
	ref := referenceAt(-23.55, -46.63)
	roster := []*entities.ProviderRecord{
		provider("zeta", -23.56, -46.63),
		provider("alpha", -23.56, -46.63),
		provider("near", -23.551, -46.63),
	}
	ranked := services.NewProximityRanker().Rank(ref, roster, 50, 10)
	require.Equal(t, []string{"near", "zeta", "alpha"}, ids(ranked))

	updates := drain(t, enricher.Enrich(context.Background(), ref, ranked))

	require.Len(t, updates, 3)
	assert.Equal(t, ids(ranked), ids(enricher.Ordered(ref)))
}
