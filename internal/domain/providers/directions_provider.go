package providers

import (
	"context"
	"errors"

	"github.com/zatekoja/fieldservice-locator/internal/domain/entities"
)

// ErrDirectionsUnavailable is the first-class "unavailable" outcome of a directions
// collaborator: the service is not configured, so results must be badged as
// estimates for the rest of the session. It is distinct from transient errors.
var ErrDirectionsUnavailable = errors.New("directions service unavailable")

// DirectionsEstimate is a travel duration and distance between two points
type DirectionsEstimate struct {
	DurationMinutes float64 `json:"duration_minutes"`
	DistanceKm      float64 `json:"distance_km"`
	DistanceLabel   string  `json:"distance_label"`
}

// DirectionsProvider estimates travel time between two points
type DirectionsProvider interface {
	Estimate(ctx context.Context, origin, destination entities.Coordinates) (*DirectionsEstimate, error)
}
