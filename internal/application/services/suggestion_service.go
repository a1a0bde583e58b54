package services

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/fieldservice-locator/internal/domain/entities"
	"github.com/zatekoja/fieldservice-locator/internal/domain/providers"
)

const (
	DefaultSuggestDebounce  = 250 * time.Millisecond
	MinSuggestDebounce      = 100 * time.Millisecond
	MaxSuggestDebounce      = 300 * time.Millisecond
	DefaultSuggestMinLength = 3
	DefaultSuggestLimit     = 5
)

// SuggestionBatch is the answer to one keystroke. Generation identifies the
// keystroke within its key.
type SuggestionBatch struct {
	Generation  uint64                `json:"generation"`
	Input       string                `json:"input"`
	Suggestions []entities.Suggestion `json:"suggestions"`
}

// SuggestionOptions tunes the suggestion service
type SuggestionOptions struct {
	Debounce  time.Duration
	MinLength int
	Limit     int
	Timeout   time.Duration
}

// SuggestionService offers autocomplete entries for free-text input. Debounced
// requests are tracked per key; only the latest keystroke of a key is answered.
type SuggestionService struct {
	classifier *QueryClassifier
	geocoder   providers.GeocodingProvider
	debounce   time.Duration
	minLength  int
	limit      int
	timeout    time.Duration

	mu          sync.Mutex
	generations map[string]uint64
}

// NewSuggestionService creates a suggestion service. The debounce is clamped to 100-300ms.
func NewSuggestionService(classifier *QueryClassifier, geocoder providers.GeocodingProvider, opts SuggestionOptions) *SuggestionService {
	debounce := opts.Debounce
	switch {
	case debounce <= 0:
		debounce = DefaultSuggestDebounce
	case debounce < MinSuggestDebounce:
		debounce = MinSuggestDebounce
	case debounce > MaxSuggestDebounce:
		debounce = MaxSuggestDebounce
	}
	minLength := opts.MinLength
	if minLength <= 0 {
		minLength = DefaultSuggestMinLength
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultSuggestLimit
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return &SuggestionService{
		classifier:  classifier,
		geocoder:    geocoder,
		debounce:    debounce,
		minLength:   minLength,
		limit:       limit,
		timeout:     timeout,
		generations: make(map[string]uint64),
	}
}

// Debounce returns the effective quiet period
func (s *SuggestionService) Debounce() time.Duration {
	return s.debounce
}

// Suggest registers a keystroke for key and returns a channel that receives at most
// one batch and is then closed. Ineligible input is answered immediately with an
// empty batch. Eligible input waits for the quiet period; if another keystroke for
// the same key arrives first, or arrives while the lookup is in flight, the channel
// closes without a batch.
func (s *SuggestionService) Suggest(ctx context.Context, key, input string) <-chan SuggestionBatch {
	out := make(chan SuggestionBatch, 1)

	s.mu.Lock()
	s.generations[key]++
	gen := s.generations[key]
	s.mu.Unlock()

	if !s.eligible(input) {
		out <- SuggestionBatch{Generation: gen, Input: input, Suggestions: []entities.Suggestion{}}
		close(out)
		return out
	}

	go func() {
		defer close(out)

		timer := time.NewTimer(s.debounce)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if !s.current(key, gen) {
			return
		}

		suggestions := s.lookup(ctx, input)
		if !s.current(key, gen) {
			log.Debug().Str("key", key).Uint64("generation", gen).Msg("dropping stale suggestions")
			return
		}
		out <- SuggestionBatch{Generation: gen, Input: input, Suggestions: suggestions}
	}()

	return out
}

// SuggestNow looks suggestions up without debouncing
func (s *SuggestionService) SuggestNow(ctx context.Context, input string) []entities.Suggestion {
	if !s.eligible(input) {
		return []entities.Suggestion{}
	}
	return s.lookup(ctx, input)
}

// Forget drops the generation counter of key
func (s *SuggestionService) Forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.generations, key)
}

// eligible reports whether input may hit the network: free text of at least minLength
// characters. Postal codes and coordinates never autocomplete.
func (s *SuggestionService) eligible(input string) bool {
	q := s.classifier.Classify(input)
	return q.Kind == entities.QueryKindFreeText && utf8.RuneCountInString(q.Normalized) >= s.minLength
}

func (s *SuggestionService) current(key string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[key] == gen
}

func (s *SuggestionService) lookup(ctx context.Context, input string) []entities.Suggestion {
	suggestions := []entities.Suggestion{}
	if s.geocoder == nil {
		return suggestions
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	q := s.classifier.Classify(input)
	results, err := s.geocoder.Search(callCtx, q.Normalized, s.limit)
	if err != nil {
		log.Warn().Ctx(ctx).Err(err).Msg("suggestion lookup failed")
		return suggestions
	}

	for _, r := range results {
		if len(suggestions) == s.limit {
			break
		}
		suggestions = append(suggestions, entities.Suggestion{
			Description: r.Label,
			Latitude:    r.Latitude,
			Longitude:   r.Longitude,
		})
	}
	return suggestions
}
