package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/fieldservice-locator/internal/domain/entities"
	"github.com/zatekoja/fieldservice-locator/internal/domain/providers"
	"github.com/zatekoja/fieldservice-locator/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/fieldservice-locator/pkg/errors"
	"github.com/zatekoja/fieldservice-locator/pkg/geo"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultFallbackSpeedKmh      = 30.0
	DefaultEnrichmentConcurrency = 8
)

// CandidateUpdate reports that one candidate of a reference point got a travel time
type CandidateUpdate struct {
	ReferenceIdentity string              `json:"reference_identity"`
	ProviderID        string              `json:"provider_id"`
	TravelTime        entities.TravelTime `json:"travel_time"`
}

// EnricherOptions tunes the travel-time enricher
type EnricherOptions struct {
	FallbackSpeedKmh float64
	Timeout          time.Duration
	Concurrency      int
}

type enrichmentKey struct {
	identity   string
	providerID string
}

// enrichmentEntry is either a directions result or a failure marker
type enrichmentEntry struct {
	travelTime entities.TravelTime
	failed     bool
}

// TravelTimeEnricher refines distance-ranked candidates with travel times from the
// directions collaborator. Results are cached per (reference, provider) for the life
// of a reference point. A new reference point supersedes everything in flight.
type TravelTimeEnricher struct {
	directions  providers.DirectionsProvider
	speedKmh    float64
	timeout     time.Duration
	concurrency int
	metrics     *observability.Metrics

	mu          sync.Mutex
	generation  uint64
	identity    string
	cancel      context.CancelFunc
	cache       map[enrichmentKey]enrichmentEntry
	candidates  map[string]*entities.RankedCandidate
	order       []string // provider IDs in rank order
	unavailable bool
}

// NewTravelTimeEnricher creates an enricher. A nil directions provider behaves as an
// unconfigured one.
func NewTravelTimeEnricher(directions providers.DirectionsProvider, opts EnricherOptions, metrics *observability.Metrics) *TravelTimeEnricher {
	speed := opts.FallbackSpeedKmh
	if speed <= 0 {
		speed = DefaultFallbackSpeedKmh
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultEnrichmentConcurrency
	}

	return &TravelTimeEnricher{
		directions:  directions,
		speedKmh:    speed,
		timeout:     timeout,
		concurrency: concurrency,
		metrics:     metrics,
		cache:       make(map[enrichmentKey]enrichmentEntry),
		candidates:  make(map[string]*entities.RankedCandidate),
		unavailable: directions == nil,
	}
}

// Estimate is the distance heuristic used whenever directions are not available
func (e *TravelTimeEnricher) Estimate(distanceKm float64) entities.TravelTime {
	return entities.TravelTime{
		DurationMinutes: geo.EstimateMinutes(distanceKm, e.speedKmh),
		DistanceLabel:   geo.FormatDistance(distanceKm),
		IsEstimate:      true,
	}
}

// Unavailable reports whether the directions collaborator was found unconfigured
func (e *TravelTimeEnricher) Unavailable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unavailable
}

// Enrich starts travel-time lookups for candidates around ref. The returned channel
// receives one update per candidate that settled under this call and is closed when
// all have settled or a later Enrich or Reset superseded this one. Calling Enrich
// again for the same reference reuses cached successes without emitting them and
// retries failures.
func (e *TravelTimeEnricher) Enrich(ctx context.Context, ref *entities.ReferencePoint, candidates []entities.RankedCandidate) <-chan CandidateUpdate {
	out := make(chan CandidateUpdate, len(candidates))
	if ref == nil {
		close(out)
		return out
	}

	runCtx, cancel := context.WithCancel(ctx)

	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.generation++
	gen := e.generation
	e.cancel = cancel
	if e.identity != ref.Identity {
		e.identity = ref.Identity
		e.cache = make(map[enrichmentKey]enrichmentEntry)
		e.candidates = make(map[string]*entities.RankedCandidate)
		e.order = nil
	}
	pending := make([]entities.RankedCandidate, 0, len(candidates))
	order := make([]string, 0, len(candidates)+len(e.order))
	listed := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if c.Provider == nil || !c.Provider.HasLocation() {
			continue
		}
		if _, dup := listed[c.Provider.ID]; dup {
			continue
		}
		listed[c.Provider.ID] = struct{}{}
		order = append(order, c.Provider.ID)
		if existing, ok := e.candidates[c.Provider.ID]; ok {
			c.TravelTime = existing.TravelTime
		}
		stored := c
		e.candidates[c.Provider.ID] = &stored
		pending = append(pending, c)
	}
	// candidates known from an earlier call for this reference rank after the new list
	for _, id := range e.order {
		if _, ok := listed[id]; !ok {
			order = append(order, id)
		}
	}
	e.order = order
	e.mu.Unlock()

	go func() {
		defer close(out)

		g, gctx := errgroup.WithContext(runCtx)
		g.SetLimit(e.concurrency)
		for _, c := range pending {
			g.Go(func() error {
				e.enrichOne(gctx, gen, ref, c, out)
				return nil
			})
		}
		_ = g.Wait()
	}()

	return out
}

func (e *TravelTimeEnricher) enrichOne(ctx context.Context, gen uint64, ref *entities.ReferencePoint, c entities.RankedCandidate, out chan<- CandidateUpdate) {
	key := enrichmentKey{identity: ref.Identity, providerID: c.Provider.ID}

	e.mu.Lock()
	if gen != e.generation {
		e.mu.Unlock()
		return
	}
	// a cached success is already on the candidate; only failures are emitted again
	if entry, ok := e.cache[key]; ok && !entry.failed {
		e.storeLocked(c.Provider.ID, entry.travelTime)
		e.mu.Unlock()
		return
	}
	if e.unavailable {
		e.applyLocked(ref, c.Provider.ID, e.Estimate(c.DistanceKm), out)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	start := time.Now()
	estimate, err := e.directions.Estimate(callCtx, ref.Coordinates(), *c.Provider.Coordinates)
	elapsed := time.Since(start)
	cancel()

	e.mu.Lock()
	defer e.mu.Unlock()

	// a superseded completion must neither write nor emit
	if gen != e.generation {
		return
	}
	if ctx.Err() != nil {
		return
	}

	switch {
	case err == nil && estimate != nil:
		label := estimate.DistanceLabel
		if label == "" {
			km := estimate.DistanceKm
			if km <= 0 {
				km = c.DistanceKm
			}
			label = geo.FormatDistance(km)
		}
		tt := entities.TravelTime{DurationMinutes: estimate.DurationMinutes, DistanceLabel: label}
		e.cache[key] = enrichmentEntry{travelTime: tt}
		e.applyLocked(ref, c.Provider.ID, tt, out)
		observability.RecordEnrichment(ctx, e.metrics, "success", elapsed)

	case errors.Is(err, providers.ErrDirectionsUnavailable) || apperrors.IsType(err, apperrors.ErrorTypeServiceUnconfigured):
		if !e.unavailable {
			log.Info().Msg("directions unavailable, using distance estimates for this session")
		}
		e.unavailable = true
		e.applyLocked(ref, c.Provider.ID, e.Estimate(c.DistanceKm), out)
		observability.RecordEnrichment(ctx, e.metrics, "unavailable", elapsed)

	default:
		if err == nil {
			err = apperrors.NewExternalError("directions returned no estimate", nil)
		}
		log.Warn().Err(err).Str("provider_id", c.Provider.ID).Msg("directions lookup failed, using distance estimate")
		e.cache[key] = enrichmentEntry{failed: true}
		e.applyLocked(ref, c.Provider.ID, e.Estimate(c.DistanceKm), out)
		observability.RecordEnrichment(ctx, e.metrics, "failure", elapsed)
	}
}

// applyLocked stores the travel time and emits the update when it was stored
func (e *TravelTimeEnricher) applyLocked(ref *entities.ReferencePoint, providerID string, tt entities.TravelTime, out chan<- CandidateUpdate) {
	if e.storeLocked(providerID, tt) {
		out <- CandidateUpdate{ReferenceIdentity: ref.Identity, ProviderID: providerID, TravelTime: tt}
	}
}

// storeLocked sets the candidate's travel time unless that would replace a
// directions result with an estimate
func (e *TravelTimeEnricher) storeLocked(providerID string, tt entities.TravelTime) bool {
	candidate, ok := e.candidates[providerID]
	if !ok {
		return false
	}
	if candidate.TravelTime != nil && !candidate.TravelTime.IsEstimate && tt.IsEstimate {
		return false
	}
	value := tt
	candidate.TravelTime = &value
	return true
}

// Ordered returns the candidates of ref: those with a travel time first by duration,
// then the rest by distance. It returns nil when ref is not the current reference.
func (e *TravelTimeEnricher) Ordered(ref *entities.ReferencePoint) []entities.RankedCandidate {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ref == nil || ref.Identity != e.identity {
		return nil
	}

	ordered := make([]entities.RankedCandidate, 0, len(e.order))
	for _, id := range e.order {
		c, ok := e.candidates[id]
		if !ok {
			continue
		}
		copied := *c
		if c.TravelTime != nil {
			tt := *c.TravelTime
			copied.TravelTime = &tt
		}
		ordered = append(ordered, copied)
	}
	SortCandidates(ordered)
	return ordered
}

// TravelTime returns the current travel time of one candidate of ref
func (e *TravelTimeEnricher) TravelTime(ref *entities.ReferencePoint, providerID string) (*entities.TravelTime, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ref == nil || ref.Identity != e.identity {
		return nil, false
	}
	c, ok := e.candidates[providerID]
	if !ok || c.TravelTime == nil {
		return nil, false
	}
	tt := *c.TravelTime
	return &tt, true
}

// Reset supersedes the current reference: in-flight lookups are cancelled and the
// cache is dropped. The unavailable flag survives, it belongs to the session.
func (e *TravelTimeEnricher) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.generation++
	e.identity = ""
	e.cache = make(map[enrichmentKey]enrichmentEntry)
	e.candidates = make(map[string]*entities.RankedCandidate)
	e.order = nil
}

// SortCandidates orders candidates with a travel time first by ascending duration,
// then candidates without one by ascending distance. Ties keep the input order.
func SortCandidates(candidates []entities.RankedCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		switch {
		case a.TravelTime != nil && b.TravelTime != nil:
			if a.TravelTime.DurationMinutes != b.TravelTime.DurationMinutes {
				return a.TravelTime.DurationMinutes < b.TravelTime.DurationMinutes
			}
		case a.TravelTime != nil:
			return true
		case b.TravelTime != nil:
			return false
		}
		return a.DistanceKm < b.DistanceKm
	})
}
