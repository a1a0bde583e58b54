package surface

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/zatekoja/fieldservice-locator/internal/domain/entities"
	"github.com/zatekoja/fieldservice-locator/internal/domain/providers"
	apperrors "github.com/zatekoja/fieldservice-locator/pkg/errors"
)

// EventSurface implements MapSurface for remote clients: it keeps the set of
// attached layers and controls and streams every change as a session event.
type EventSurface struct {
	sessionID string
	bus       providers.EventBus

	mu       sync.Mutex
	layers   map[string]entities.SurfaceLayer
	controls map[string]entities.SurfaceControl
}

// NewEventSurface creates a surface publishing to the session's channel
func NewEventSurface(sessionID string, bus providers.EventBus) *EventSurface {
	return &EventSurface{
		sessionID: sessionID,
		bus:       bus,
		layers:    make(map[string]entities.SurfaceLayer),
		controls:  make(map[string]entities.SurfaceControl),
	}
}

var _ providers.MapSurface = (*EventSurface)(nil)

// Render publishes the reference pin and candidate markers
func (s *EventSurface) Render(ctx context.Context, frame entities.SurfaceFrame) error {
	return s.publish(ctx, entities.SessionEventSurfaceFrame, frame)
}

// AddPath attaches a path layer
func (s *EventSurface) AddPath(ctx context.Context, layer entities.SurfaceLayer) error {
	if len(layer.Points) < 2 {
		return apperrors.NewValidationError("a path layer needs at least two points")
	}

	s.mu.Lock()
	if _, exists := s.layers[layer.ID]; exists {
		s.mu.Unlock()
		return apperrors.NewConflictError(fmt.Sprintf("layer %s is already attached", layer.ID))
	}
	s.layers[layer.ID] = layer
	s.mu.Unlock()

	if err := s.publish(ctx, entities.SessionEventSurfaceLayerAdded, layer); err != nil {
		s.mu.Lock()
		delete(s.layers, layer.ID)
		s.mu.Unlock()
		return err
	}
	return nil
}

// RemovePath detaches a path layer
func (s *EventSurface) RemovePath(ctx context.Context, layerID string) error {
	s.mu.Lock()
	_, exists := s.layers[layerID]
	delete(s.layers, layerID)
	s.mu.Unlock()

	if !exists {
		return nil
	}
	return s.publish(ctx, entities.SessionEventSurfaceLayerRemoved, map[string]string{"id": layerID})
}

// AddControl attaches an auxiliary control
func (s *EventSurface) AddControl(ctx context.Context, control entities.SurfaceControl) error {
	s.mu.Lock()
	if _, exists := s.controls[control.ID]; exists {
		s.mu.Unlock()
		return apperrors.NewConflictError(fmt.Sprintf("control %s is already attached", control.ID))
	}
	s.controls[control.ID] = control
	s.mu.Unlock()

	if err := s.publish(ctx, entities.SessionEventSurfaceControlAdded, control); err != nil {
		s.mu.Lock()
		delete(s.controls, control.ID)
		s.mu.Unlock()
		return err
	}
	return nil
}

// RemoveControl detaches a control
func (s *EventSurface) RemoveControl(ctx context.Context, controlID string) error {
	s.mu.Lock()
	_, exists := s.controls[controlID]
	delete(s.controls, controlID)
	s.mu.Unlock()

	if !exists {
		return nil
	}
	return s.publish(ctx, entities.SessionEventSurfaceControlRemoved, map[string]string{"id": controlID})
}

// Layers returns the attached layers ordered by id
func (s *EventSurface) Layers() []entities.SurfaceLayer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entities.SurfaceLayer, 0, len(s.layers))
	for _, l := range s.layers {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Controls returns the attached controls ordered by id
func (s *EventSurface) Controls() []entities.SurfaceControl {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entities.SurfaceControl, 0, len(s.controls))
	for _, c := range s.controls {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *EventSurface) publish(ctx context.Context, eventType entities.SessionEventType, payload interface{}) error {
	if s.bus == nil {
		return nil
	}
	event := entities.NewSessionEvent(s.sessionID, eventType, payload)
	if err := s.bus.Publish(ctx, providers.GetSessionChannel(s.sessionID), event); err != nil {
		return apperrors.NewInternalError("failed to publish surface change", err)
	}
	return nil
}
