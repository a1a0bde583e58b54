package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/fieldservice-locator/internal/application/services"
	"github.com/zatekoja/fieldservice-locator/internal/domain/providers"
)

func newSuggestionService(t *testing.T, geocoder providers.GeocodingProvider, opts services.SuggestionOptions) *services.SuggestionService {
	t.Helper()
	classifier, err := services.NewQueryClassifier("")
	require.NoError(t, err)
	return services.NewSuggestionService(classifier, geocoder, opts)
}

func places(n int) []providers.GeocodeResult {
	out := make([]providers.GeocodeResult, n)
	for i := range out {
		out[i] = providers.GeocodeResult{Latitude: -23.5 - float64(i)/100, Longitude: -46.6, Label: "Place"}
	}
	return out
}

func TestSuggestionService_SuggestNowSkipsIneligibleInput(t *testing.T) {
	geocoder := new(MockGeocodingProvider)
	svc := newSuggestionService(t, geocoder, services.SuggestionOptions{})

	for _, input := range []string{"", "ab", "01310-100", "-23.5,-46.6"} {
		assert.Empty(t, svc.SuggestNow(context.Background(), input), input)
	}
	geocoder.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything)
}

func TestSuggestionService_SuggestNowCapsList(t *testing.T) {
	geocoder := new(MockGeocodingProvider)
	geocoder.On("Search", mock.Anything, "rua augusta", 5).Return(places(8), nil)
	svc := newSuggestionService(t, geocoder, services.SuggestionOptions{})

	suggestions := svc.SuggestNow(context.Background(), "rua augusta")

	assert.Len(t, suggestions, 5)
	assert.Equal(t, "Place", suggestions[0].Description)
	assert.Equal(t, -23.5, suggestions[0].Latitude)
}

func TestSuggestionService_FailureYieldsEmptyList(t *testing.T) {
	geocoder := new(MockGeocodingProvider)
	geocoder.On("Search", mock.Anything, "rua augusta", 5).Return(nil, errors.New("boom"))
	svc := newSuggestionService(t, geocoder, services.SuggestionOptions{})

	suggestions := svc.SuggestNow(context.Background(), "rua augusta")

	assert.NotNil(t, suggestions)
	assert.Empty(t, suggestions)
}

func TestSuggestionService_DebounceIsClamped(t *testing.T) {
	assert.Equal(t, 250*time.Millisecond, newSuggestionService(t, nil, services.SuggestionOptions{}).Debounce())
	assert.Equal(t, 100*time.Millisecond, newSuggestionService(t, nil, services.SuggestionOptions{Debounce: 10 * time.Millisecond}).Debounce())
	assert.Equal(t, 300*time.Millisecond, newSuggestionService(t, nil, services.SuggestionOptions{Debounce: time.Second}).Debounce())
}

func TestSuggestionService_OnlyLatestKeystrokeIsAnswered(t *testing.T) {
	geocoder := new(MockGeocodingProvider)
	geocoder.On("Search", mock.Anything, "rua aug", 5).Return(places(2), nil).Once()
	svc := newSuggestionService(t, geocoder, services.SuggestionOptions{Debounce: 100 * time.Millisecond})

	ctx := context.Background()
	first := svc.Suggest(ctx, "session-1", "rua")
	second := svc.Suggest(ctx, "session-1", "rua au")
	third := svc.Suggest(ctx, "session-1", "rua aug")

	_, ok := <-first
	assert.False(t, ok, "superseded keystroke must not be answered")
	_, ok = <-second
	assert.False(t, ok, "superseded keystroke must not be answered")

	select {
	case batch, ok := <-third:
		require.True(t, ok)
		assert.Equal(t, uint64(3), batch.Generation)
		assert.Equal(t, "rua aug", batch.Input)
		assert.Len(t, batch.Suggestions, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for suggestions")
	}
	geocoder.AssertNumberOfCalls(t, "Search", 1)
}

func TestSuggestionService_KeysAreIndependent(t *testing.T) {
	geocoder := new(MockGeocodingProvider)
	geocoder.On("Search", mock.Anything, mock.Anything, 5).Return(places(1), nil)
	svc := newSuggestionService(t, geocoder, services.SuggestionOptions{Debounce: 100 * time.Millisecond})

	a := svc.Suggest(context.Background(), "a", "campinas")
	b := svc.Suggest(context.Background(), "b", "curitiba")

	batchA, ok := <-a
	require.True(t, ok)
	batchB, ok := <-b
	require.True(t, ok)
	assert.Len(t, batchA.Suggestions, 1)
	assert.Len(t, batchB.Suggestions, 1)
}

func TestSuggestionService_StaleCompletionIsDropped(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	geocoder := new(MockGeocodingProvider)
	geocoder.On("Search", mock.Anything, "campinas", 5).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(places(1), nil).Once()
	svc := newSuggestionService(t, geocoder, services.SuggestionOptions{Debounce: 100 * time.Millisecond})

	inFlight := svc.Suggest(context.Background(), "k", "campinas")
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("lookup never started")
	}

	ineligible := svc.Suggest(context.Background(), "k", "ca")
	close(release)

	_, ok := <-inFlight
	assert.False(t, ok, "completion of a superseded keystroke must be dropped")
	batch, ok := <-ineligible
	require.True(t, ok)
	assert.Empty(t, batch.Suggestions)
}

func TestSuggestionService_IneligibleKeystrokeAnsweredImmediately(t *testing.T) {
	svc := newSuggestionService(t, new(MockGeocodingProvider), services.SuggestionOptions{})

	select {
	case batch, ok := <-svc.Suggest(context.Background(), "k", "01310100"):
		require.True(t, ok)
		assert.Empty(t, batch.Suggestions)
	case <-time.After(50 * time.Millisecond):
		t.Fatal("postal codes must not wait for the debounce")
	}
}
