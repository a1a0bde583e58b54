package providers

import (
	"context"

	"github.com/zatekoja/fieldservice-locator/internal/domain/entities"
)

// RoutingProvider computes a turn-by-turn path between two points
type RoutingProvider interface {
	Route(ctx context.Context, origin, destination entities.Coordinates) (*entities.PathGeometry, error)
}
