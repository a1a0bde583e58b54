package transport

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/zatekoja/fieldservice-locator/pkg/errors"
)

var errNeutral = errors.New("not configured")

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker("test", 2, time.Minute, nil)
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		_, err := b.Execute(func() (interface{}, error) { return nil, boom })
		assert.ErrorIs(t, err, boom)
	}

	calls := 0
	_, err := b.Execute(func() (interface{}, error) {
		calls++
		return nil, nil
	})
	require.Error(t, err)
	assert.Equal(t, 0, calls)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNetworkFailure))
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, "open", b.State())
}

func TestBreaker_NeutralErrorsDoNotTrip(t *testing.T) {
	b := NewBreaker("test", 1, time.Minute, func(err error) bool { return errors.Is(err, errNeutral) })

	for i := 0; i < 3; i++ {
		_, err := b.Execute(func() (interface{}, error) { return nil, errNeutral })
		assert.ErrorIs(t, err, errNeutral)
	}
	assert.Equal(t, "closed", b.State())

	v, err := b.Execute(func() (interface{}, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}
