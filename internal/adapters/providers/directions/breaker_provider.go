package directions

import (
	"context"
	"errors"
	"time"

	"github.com/zatekoja/fieldservice-locator/internal/adapters/providers/transport"
	"github.com/zatekoja/fieldservice-locator/internal/domain/entities"
	"github.com/zatekoja/fieldservice-locator/internal/domain/providers"
)

// BreakerProvider wraps a DirectionsProvider in a circuit breaker. An open breaker
// is a transient failure; "unavailable" passes through without tripping it.
type BreakerProvider struct {
	inner   providers.DirectionsProvider
	breaker *transport.Breaker
}

// NewBreakerProvider creates a circuit-breaking directions provider
func NewBreakerProvider(inner providers.DirectionsProvider, failures int, openFor time.Duration) providers.DirectionsProvider {
	return &BreakerProvider{
		inner: inner,
		breaker: transport.NewBreaker("directions", failures, openFor, func(err error) bool {
			return errors.Is(err, providers.ErrDirectionsUnavailable)
		}),
	}
}

// Estimate delegates through the breaker
func (b *BreakerProvider) Estimate(ctx context.Context, origin, destination entities.Coordinates) (*providers.DirectionsEstimate, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.inner.Estimate(ctx, origin, destination)
	})
	if err != nil {
		return nil, err
	}
	return result.(*providers.DirectionsEstimate), nil
}
