package transport

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	apperrors "github.com/zatekoja/fieldservice-locator/pkg/errors"
)

// Breaker guards a collaborator with a circuit breaker. While open, calls fail
// fast with a NETWORK_FAILURE app error.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker trips after failures consecutive failures and lets a trial call through after
// openFor. Errors for which neutral returns true do not count as failures.
func NewBreaker(name string, failures int, openFor time.Duration, neutral func(error) bool) *Breaker {
	if failures <= 0 {
		failures = 5
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			return neutral != nil && neutral(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}
	return &Breaker{name: name, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn through the breaker
func (b *Breaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, apperrors.NewNetworkFailureError(b.name, err)
	}
	return result, err
}

// State returns the current breaker state name
func (b *Breaker) State() string {
	return b.cb.State().String()
}
