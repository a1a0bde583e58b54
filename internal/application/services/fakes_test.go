package services_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/stretchr/testify/mock"
	"github.com/zatekoja/fieldservice-locator/internal/application/services"
	"github.com/zatekoja/fieldservice-locator/internal/domain/entities"
	"github.com/zatekoja/fieldservice-locator/internal/domain/providers"
)

// Mocks

type MockGeocodingProvider struct {
	mock.Mock
}

func (m *MockGeocodingProvider) Search(ctx context.Context, text string, limit int) ([]providers.GeocodeResult, error) {
	args := m.Called(ctx, text, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]providers.GeocodeResult), args.Error(1)
}

type MockProviderSearchRepository struct {
	mock.Mock
}

func (m *MockProviderSearchRepository) Index(ctx context.Context, roster []*entities.ProviderRecord) error {
	args := m.Called(ctx, roster)
	return args.Error(0)
}

func (m *MockProviderSearchRepository) Search(ctx context.Context, text string, limit int) ([]string, error) {
	args := m.Called(ctx, text, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// fakeDirections answers with estimate, counting calls
type fakeDirections struct {
	calls    atomic.Int32
	estimate func(ctx context.Context, origin, destination entities.Coordinates) (*providers.DirectionsEstimate, error)
}

func (f *fakeDirections) Estimate(ctx context.Context, origin, destination entities.Coordinates) (*providers.DirectionsEstimate, error) {
	f.calls.Add(1)
	return f.estimate(ctx, origin, destination)
}

// fakeRouting answers with route, counting calls
type fakeRouting struct {
	calls atomic.Int32
	route func(ctx context.Context, origin, destination entities.Coordinates) (*entities.PathGeometry, error)
}

func (f *fakeRouting) Route(ctx context.Context, origin, destination entities.Coordinates) (*entities.PathGeometry, error) {
	f.calls.Add(1)
	return f.route(ctx, origin, destination)
}

// recordingSurface keeps attached layers and controls and can be told to fail
type recordingSurface struct {
	mu              sync.Mutex
	layers          map[string]entities.SurfaceLayer
	controls        map[string]entities.SurfaceControl
	frames          int
	frameRefs       []string
	failPath        bool
	failRemove      bool
	failControlKind entities.SurfaceControlKind
}

func newRecordingSurface() *recordingSurface {
	return &recordingSurface{
		layers:   make(map[string]entities.SurfaceLayer),
		controls: make(map[string]entities.SurfaceControl),
	}
}

func (s *recordingSurface) Render(ctx context.Context, frame entities.SurfaceFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	identity := ""
	if frame.ReferencePoint != nil {
		identity = frame.ReferencePoint.Identity
	}
	s.frameRefs = append(s.frameRefs, identity)
	return nil
}

// LastFrameReference returns the reference identity of the latest rendered frame
func (s *recordingSurface) LastFrameReference() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frameRefs) == 0 {
		return ""
	}
	return s.frameRefs[len(s.frameRefs)-1]
}

func (s *recordingSurface) AddPath(ctx context.Context, layer entities.SurfaceLayer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPath {
		return fmt.Errorf("surface rejected path")
	}
	s.layers[layer.ID] = layer
	return nil
}

func (s *recordingSurface) RemovePath(ctx context.Context, layerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRemove {
		return fmt.Errorf("surface could not remove path")
	}
	delete(s.layers, layerID)
	return nil
}

func (s *recordingSurface) AddControl(ctx context.Context, control entities.SurfaceControl) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failControlKind != "" && s.failControlKind == control.Kind {
		return fmt.Errorf("surface rejected %s control", control.Kind)
	}
	s.controls[control.ID] = control
	return nil
}

func (s *recordingSurface) RemoveControl(ctx context.Context, controlID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.controls, controlID)
	return nil
}

func (s *recordingSurface) Layers() []entities.SurfaceLayer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entities.SurfaceLayer, 0, len(s.layers))
	for _, l := range s.layers {
		out = append(out, l)
	}
	return out
}

func (s *recordingSurface) ControlKinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.controls))
	for _, c := range s.controls {
		out = append(out, string(c.Kind))
	}
	sort.Strings(out)
	return out
}

func (s *recordingSurface) Control(kind entities.SurfaceControlKind) (entities.SurfaceControl, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.controls {
		if c.Kind == kind {
			return c, true
		}
	}
	return entities.SurfaceControl{}, false
}

// Fixtures

func provider(id string, lat, lon float64) *entities.ProviderRecord {
	return &entities.ProviderRecord{
		ID:          id,
		Name:        "Provider " + id,
		Coordinates: &entities.Coordinates{Latitude: lat, Longitude: lon},
	}
}

func referenceAt(lat, lon float64) *entities.ReferencePoint {
	return entities.NewReferencePoint(lat, lon, "test", entities.ReferenceSourceQuery)
}

func ids(candidates []entities.RankedCandidate) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.Provider.ID)
	}
	return out
}

type loggedEvent struct {
	eventType entities.SessionEventType
	reference string
}

// gatedBus holds the first candidates.updated publish until release is closed
// and logs every event in publish order
type gatedBus struct {
	providers.EventBus

	entered chan struct{}
	release chan struct{}
	once    sync.Once

	mu  sync.Mutex
	log []loggedEvent
}

func newGatedBus(inner providers.EventBus) *gatedBus {
	return &gatedBus{
		EventBus: inner,
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
}

func (b *gatedBus) Publish(ctx context.Context, channel string, event *entities.SessionEvent) error {
	if event.EventType == entities.SessionEventCandidatesUpdated {
		first := false
		b.once.Do(func() { first = true })
		if first {
			close(b.entered)
			<-b.release
		}
	}

	reference := ""
	switch p := event.Payload.(type) {
	case *entities.ReferencePoint:
		if p != nil {
			reference = p.Identity
		}
	case services.CandidatesPayload:
		reference = p.ReferenceIdentity
	}
	b.mu.Lock()
	b.log = append(b.log, loggedEvent{eventType: event.EventType, reference: reference})
	b.mu.Unlock()

	return b.EventBus.Publish(ctx, channel, event)
}

func (b *gatedBus) Log() []loggedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]loggedEvent(nil), b.log...)
}
