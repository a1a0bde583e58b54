package entities

import (
	"time"

	"github.com/google/uuid"
)

// SessionEventType represents the type of session event
type SessionEventType string

const (
	SessionEventReferenceChanged      SessionEventType = "reference.changed"
	SessionEventCandidatesUpdated     SessionEventType = "candidates.updated"
	SessionEventRouteShown            SessionEventType = "route.shown"
	SessionEventRouteCleared          SessionEventType = "route.cleared"
	SessionEventSurfaceLayerAdded     SessionEventType = "surface.layer.added"
	SessionEventSurfaceLayerRemoved   SessionEventType = "surface.layer.removed"
	SessionEventSurfaceControlAdded   SessionEventType = "surface.control.added"
	SessionEventSurfaceControlRemoved SessionEventType = "surface.control.removed"
	SessionEventSurfaceFrame          SessionEventType = "surface.frame"
)

// SessionEvent is a state change of a search session, streamed to rendering surfaces
type SessionEvent struct {
	ID        string           `json:"id"`
	SessionID string           `json:"session_id"`
	EventType SessionEventType `json:"event_type"`
	Timestamp time.Time        `json:"timestamp"`
	Payload   interface{}      `json:"payload,omitempty"`
}

// NewSessionEvent creates a new session event
func NewSessionEvent(sessionID string, eventType SessionEventType, payload interface{}) *SessionEvent {
	return &SessionEvent{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		EventType: eventType,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}
