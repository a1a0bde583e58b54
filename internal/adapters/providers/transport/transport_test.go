package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/zatekoja/fieldservice-locator/pkg/errors"
)

func getter(url string) func(ctx context.Context) (*http.Request, error) {
	return func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}
}

func TestDoJSON_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"value": 42}`))
	}))
	defer server.Close()

	var out struct {
		Value int `json:"value"`
	}
	err := DoJSON(context.Background(), server.Client(), "test", getter(server.URL), &out)
	require.NoError(t, err)
	assert.Equal(t, 42, out.Value)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDoJSON_ClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad key", http.StatusForbidden)
	}))
	defer server.Close()

	err := DoJSON(context.Background(), server.Client(), "test", getter(server.URL), nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeExternal))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
}

func TestDoJSON_DecodeErrorIsExternal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	var out map[string]interface{}
	err := DoJSON(context.Background(), server.Client(), "test", getter(server.URL), &out)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeExternal))
}

func TestDoJSON_UnreachableIsNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	err := DoJSON(context.Background(), NewHTTPClient(0), "test", getter(url), nil)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNetworkFailure))
}

func TestDoJSON_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := DoJSON(ctx, server.Client(), "test", getter(server.URL), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(&StatusError{StatusCode: http.StatusTooManyRequests}))
	assert.True(t, Retryable(&StatusError{StatusCode: http.StatusBadGateway}))
	assert.False(t, Retryable(&StatusError{StatusCode: http.StatusBadRequest}))
	assert.False(t, Retryable(context.Canceled))
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(errors.New("boom")))
}
