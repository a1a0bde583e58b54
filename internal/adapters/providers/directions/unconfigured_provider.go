package directions

import (
	"context"

	"github.com/zatekoja/fieldservice-locator/internal/domain/entities"
	"github.com/zatekoja/fieldservice-locator/internal/domain/providers"
)

// UnconfiguredProvider stands in when no directions service is configured
type UnconfiguredProvider struct{}

// NewUnconfiguredProvider creates a provider that always reports the service as unavailable
func NewUnconfiguredProvider() providers.DirectionsProvider {
	return UnconfiguredProvider{}
}

// Estimate always returns ErrDirectionsUnavailable
func (UnconfiguredProvider) Estimate(ctx context.Context, origin, destination entities.Coordinates) (*providers.DirectionsEstimate, error) {
	return nil, providers.ErrDirectionsUnavailable
}
