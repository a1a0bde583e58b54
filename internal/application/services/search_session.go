package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/fieldservice-locator/internal/domain/entities"
	"github.com/zatekoja/fieldservice-locator/internal/domain/providers"
	"github.com/zatekoja/fieldservice-locator/internal/domain/repositories"
	"github.com/zatekoja/fieldservice-locator/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/fieldservice-locator/pkg/errors"
)

// View selects the ranking profile of a search
type View string

const (
	ViewDefault View = "default"
	ViewCompact View = "compact"
)

// ParseView maps a request flag to a View. Anything but "compact" is the default view.
func ParseView(s string) View {
	if View(s) == ViewCompact {
		return ViewCompact
	}
	return ViewDefault
}

// SessionOptions holds the collaborators and tuning shared by every session
type SessionOptions struct {
	Classifier  *QueryClassifier
	Resolver    *LocationResolver
	Suggestions *SuggestionService
	Ranker      *ProximityRanker
	Roster      repositories.ProviderRepository
	Directions  providers.DirectionsProvider
	Routing     providers.RoutingProvider
	Bus         providers.EventBus
	// NewSurface builds the rendering surface of a session
	NewSurface func(sessionID string) providers.MapSurface

	Profiles         map[View]RankingProfile
	Enricher         EnricherOptions
	RequestTimeout   time.Duration
	FallbackSpeedKmh float64
	Metrics          *observability.Metrics
}

// Profile returns the ranking profile for view, falling back to the default view
func (o *SessionOptions) Profile(view View) RankingProfile {
	if p, ok := o.Profiles[view]; ok {
		return p
	}
	return o.Profiles[ViewDefault]
}

// SessionSnapshot is the observable state of a session
type SessionSnapshot struct {
	ID             string                     `json:"id"`
	ReferencePoint *entities.ReferencePoint   `json:"reference_point,omitempty"`
	View           View                       `json:"view"`
	Candidates     []entities.RankedCandidate `json:"candidates"`
	OverlayState   entities.OverlayState      `json:"overlay_state"`
	ActiveOverlay  *entities.RouteOverlay     `json:"active_overlay,omitempty"`
	LastActive     time.Time                  `json:"last_active"`
}

// CandidatesPayload is the payload of a candidates.updated event
type CandidatesPayload struct {
	ReferenceIdentity string                     `json:"reference_identity"`
	Candidates        []entities.RankedCandidate `json:"candidates"`
}

// SearchSession is one user's search context: the active reference point, its
// enrichment and the route overlay drawn on its surface
type SearchSession struct {
	id       string
	opts     *SessionOptions
	surface  providers.MapSurface
	enricher *TravelTimeEnricher
	overlay  *RouteOverlayController

	baseCtx context.Context
	stop    context.CancelFunc

	// refMu serializes reference changes with everything emitted for a reference,
	// so nothing about a superseded reference reaches the bus or surface afterwards
	refMu sync.Mutex

	mu         sync.RWMutex
	ref        *entities.ReferencePoint
	view       View
	lastActive time.Time
	closed     bool
}

// NewSearchSession creates a session with its own enricher and overlay controller
func NewSearchSession(id string, opts *SessionOptions) *SearchSession {
	ctx, cancel := context.WithCancel(context.Background())

	var surface providers.MapSurface
	if opts.NewSurface != nil {
		surface = opts.NewSurface(id)
	}

	s := &SearchSession{
		id:         id,
		opts:       opts,
		surface:    surface,
		enricher:   NewTravelTimeEnricher(opts.Directions, opts.Enricher, opts.Metrics),
		overlay:    NewRouteOverlayController(opts.Routing, surface, opts.FallbackSpeedKmh, opts.RequestTimeout, opts.Metrics),
		baseCtx:    ctx,
		stop:       cancel,
		view:       ViewDefault,
		lastActive: time.Now(),
	}
	s.overlay.SetReferenceCheck(s.isCurrent)
	return s
}

// ID returns the session ID
func (s *SearchSession) ID() string {
	return s.id
}

// LastActive returns the time of the last operation on the session
func (s *SearchSession) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

// Search classifies and resolves query. A resolved reference point supersedes the
// previous one and starts travel-time enrichment. When nothing resolves, the roster
// is matched by text and the result is in local mode.
func (s *SearchSession) Search(ctx context.Context, query string, view View) (*entities.SearchResult, error) {
	if err := s.touch(); err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "SearchSession.Search")
	defer span.End()

	classified := s.opts.Classifier.Classify(query)
	ref, resolveErr := s.opts.Resolver.Resolve(ctx, classified)
	if ref != nil {
		result, err := s.applyReference(ctx, ref, view)
		if err != nil {
			return nil, err
		}
		result.Query = &classified
		return result, nil
	}

	roster, err := s.opts.Roster.List(ctx)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	matches := s.opts.Resolver.LocalSearch(ctx, classified.Normalized, roster)

	s.refMu.Lock()
	defer s.refMu.Unlock()
	if err := s.setReference(nil, view); err != nil {
		return nil, err
	}

	s.enricher.Reset()
	s.clearOverlay(ctx)

	result := &entities.SearchResult{
		Mode:         entities.SearchModeLocal,
		Query:        &classified,
		Candidates:   []entities.RankedCandidate{},
		LocalMatches: matches,
	}
	if resolveErr != nil {
		result.Notice = "location lookup is temporarily unavailable, showing text matches"
	}

	s.publish(ctx, entities.SessionEventReferenceChanged, nil)
	s.render(ctx, entities.SurfaceFrame{Candidates: result.Candidates})
	return result, nil
}

// UseDeviceLocation centers the session on a device-reported position
func (s *SearchSession) UseDeviceLocation(ctx context.Context, lat, lon float64, view View) (*entities.SearchResult, error) {
	if !(entities.Coordinates{Latitude: lat, Longitude: lon}).Valid() {
		return nil, apperrors.NewValidationError("latitude must be within [-90,90] and longitude within [-180,180]")
	}
	if err := s.touch(); err != nil {
		return nil, err
	}
	ref := entities.NewReferencePoint(lat, lon, "Current location", entities.ReferenceSourceDevice)
	return s.applyReference(ctx, ref, view)
}

// UseSuggestion centers the session on a chosen suggestion without geocoding again
func (s *SearchSession) UseSuggestion(ctx context.Context, suggestion entities.Suggestion, view View) (*entities.SearchResult, error) {
	if !(entities.Coordinates{Latitude: suggestion.Latitude, Longitude: suggestion.Longitude}).Valid() {
		return nil, apperrors.NewValidationError("suggestion coordinates are out of range")
	}
	if err := s.touch(); err != nil {
		return nil, err
	}
	return s.applyReference(ctx, suggestion.ReferencePoint(), view)
}

func (s *SearchSession) applyReference(ctx context.Context, ref *entities.ReferencePoint, view View) (*entities.SearchResult, error) {
	roster, err := s.opts.Roster.List(ctx)
	if err != nil {
		return nil, err
	}

	s.refMu.Lock()
	defer s.refMu.Unlock()
	if err := s.setReference(ref, view); err != nil {
		return nil, err
	}

	s.clearOverlay(ctx)

	profile := s.opts.Profile(view)
	candidates := s.opts.Ranker.Rank(ref, roster, profile.MaxRadiusKm, profile.MaxResults)

	s.publish(ctx, entities.SessionEventReferenceChanged, ref)
	s.render(ctx, entities.SurfaceFrame{ReferencePoint: ref, Candidates: candidates})

	updates := s.enricher.Enrich(s.baseCtx, ref, candidates)
	go s.forwardUpdates(ref, updates)

	return &entities.SearchResult{
		Mode:           entities.SearchModeProximity,
		ReferencePoint: ref,
		Candidates:     candidates,
	}, nil
}

// forwardUpdates republishes the reordered candidate list after every enrichment result
func (s *SearchSession) forwardUpdates(ref *entities.ReferencePoint, updates <-chan CandidateUpdate) {
	for range updates {
		s.emitCandidates(ref)
	}
}

func (s *SearchSession) emitCandidates(ref *entities.ReferencePoint) {
	s.refMu.Lock()
	defer s.refMu.Unlock()

	if !s.isCurrent(ref) {
		return
	}
	ordered := s.enricher.Ordered(ref)
	if ordered == nil {
		return
	}
	ctx := s.baseCtx
	s.publish(ctx, entities.SessionEventCandidatesUpdated, CandidatesPayload{
		ReferenceIdentity: ref.Identity,
		Candidates:        ordered,
	})
	s.render(ctx, entities.SurfaceFrame{
		ReferencePoint: ref,
		Candidates:     ordered,
		ActiveOverlay:  s.overlay.Active(),
	})
}

// setReference swaps the active reference; the caller holds refMu
func (s *SearchSession) setReference(ref *entities.ReferencePoint, view View) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return apperrors.NewNotFoundError("session " + s.id + " is closed")
	}
	s.ref = ref
	s.view = view
	return nil
}

// isCurrent reports whether ref is still the session's active reference point
func (s *SearchSession) isCurrent(ref *entities.ReferencePoint) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ref != nil && s.ref != nil && s.ref.Identity == ref.Identity
}

// Suggest returns autocomplete entries for input. A keystroke superseded by a later
// one for this session gets an empty list.
func (s *SearchSession) Suggest(ctx context.Context, input string) ([]entities.Suggestion, error) {
	if err := s.touch(); err != nil {
		return nil, err
	}
	batch, ok := <-s.opts.Suggestions.Suggest(ctx, s.id, input)
	if !ok {
		return []entities.Suggestion{}, nil
	}
	return batch.Suggestions, nil
}

// SelectProvider draws the route from the active reference point to a provider
func (s *SearchSession) SelectProvider(ctx context.Context, providerID string) (*entities.RouteOverlay, error) {
	if err := s.touch(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	ref := s.ref
	s.mu.RUnlock()
	if ref == nil {
		return nil, apperrors.NewValidationError("no active reference point; search for a location first")
	}

	candidate, err := s.candidate(ctx, ref, providerID)
	if err != nil {
		return nil, err
	}

	overlay, err := s.overlay.ShowRoute(ctx, ref, candidate)
	if err != nil {
		return nil, err
	}

	s.refMu.Lock()
	defer s.refMu.Unlock()
	// a newer reference already tore this overlay down
	if !s.isCurrent(ref) {
		return nil, ErrRouteSuperseded
	}
	s.publish(ctx, entities.SessionEventRouteShown, overlay)
	return overlay, nil
}

// candidate finds providerID among the ranked candidates of ref, or builds one from
// the roster when it is outside the current result list
func (s *SearchSession) candidate(ctx context.Context, ref *entities.ReferencePoint, providerID string) (entities.RankedCandidate, error) {
	for _, c := range s.enricher.Ordered(ref) {
		if c.Provider.ID == providerID {
			return c, nil
		}
	}

	provider, err := s.opts.Roster.GetByID(ctx, providerID)
	if err != nil {
		return entities.RankedCandidate{}, err
	}
	candidate := entities.RankedCandidate{Provider: provider}
	if provider.HasLocation() {
		candidate.DistanceKm = ref.Coordinates().DistanceKm(*provider.Coordinates)
	}
	return candidate, nil
}

// ClearRoute removes the route overlay
func (s *SearchSession) ClearRoute(ctx context.Context) error {
	if err := s.touch(); err != nil {
		return err
	}
	if err := s.overlay.ClearRoute(ctx); err != nil {
		return err
	}
	s.publish(ctx, entities.SessionEventRouteCleared, nil)
	return nil
}

// Snapshot returns the current state of the session
func (s *SearchSession) Snapshot() SessionSnapshot {
	s.mu.RLock()
	ref := s.ref
	view := s.view
	lastActive := s.lastActive
	s.mu.RUnlock()

	candidates := s.enricher.Ordered(ref)
	if candidates == nil {
		candidates = []entities.RankedCandidate{}
	}
	return SessionSnapshot{
		ID:             s.id,
		ReferencePoint: ref,
		View:           view,
		Candidates:     candidates,
		OverlayState:   s.overlay.State(),
		ActiveOverlay:  s.overlay.Active(),
		LastActive:     lastActive,
	}
}

// Close cancels enrichment and removes the overlay. A closed session rejects
// further operations.
func (s *SearchSession) Close() {
	s.refMu.Lock()
	defer s.refMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.ref = nil
	s.mu.Unlock()

	s.stop()
	s.enricher.Reset()
	s.clearOverlay(context.Background())
	if s.opts.Suggestions != nil {
		s.opts.Suggestions.Forget(s.id)
	}
}

func (s *SearchSession) touch() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return apperrors.NewNotFoundError("session " + s.id + " is closed")
	}
	s.lastActive = time.Now()
	return nil
}

func (s *SearchSession) clearOverlay(ctx context.Context) {
	if s.overlay.State() == entities.OverlayStateIdle && s.overlay.Active() == nil {
		return
	}
	if err := s.overlay.ClearRoute(ctx); err != nil {
		log.Warn().Ctx(ctx).Err(err).Str("session_id", s.id).Msg("failed to clear route overlay")
	}
	s.publish(ctx, entities.SessionEventRouteCleared, nil)
}

func (s *SearchSession) render(ctx context.Context, frame entities.SurfaceFrame) {
	if s.surface == nil {
		return
	}
	if err := s.surface.Render(context.WithoutCancel(ctx), frame); err != nil {
		log.Warn().Ctx(ctx).Err(err).Str("session_id", s.id).Msg("failed to render surface frame")
	}
}

func (s *SearchSession) publish(ctx context.Context, eventType entities.SessionEventType, payload interface{}) {
	if s.opts.Bus == nil {
		return
	}
	event := entities.NewSessionEvent(s.id, eventType, payload)
	if err := s.opts.Bus.Publish(context.WithoutCancel(ctx), providers.GetSessionChannel(s.id), event); err != nil {
		log.Warn().Ctx(ctx).Err(err).Str("session_id", s.id).Str("event_type", string(eventType)).Msg("failed to publish session event")
	}
}
