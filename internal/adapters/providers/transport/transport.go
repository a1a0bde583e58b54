// Package transport holds the HTTP plumbing shared by the geocoding, directions
// and routing collaborators.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	apperrors "github.com/zatekoja/fieldservice-locator/pkg/errors"
	"github.com/zatekoja/fieldservice-locator/pkg/retry"
)

// DefaultHTTPTimeout bounds a single attempt; callers add their own deadline on top
const DefaultHTTPTimeout = 8 * time.Second

const maxErrorBody = 512

// StatusError is a non-2xx response from a collaborator
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Body)
}

// NewHTTPClient returns a client with the default per-attempt timeout
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &http.Client{Timeout: timeout}
}

// Retryable reports whether a collaborator error is transient: rate limiting,
// server errors and network failures. Cancellation is never retried.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}

// DoJSON sends the request built by newRequest, retrying transient failures, and
// decodes a 2xx JSON body into out. Transport failures come back as NETWORK_FAILURE
// and unusable responses as EXTERNAL app errors; both keep the cause in their chain.
func DoJSON(ctx context.Context, client *http.Client, service string, newRequest func(ctx context.Context) (*http.Request, error), out interface{}) error {
	err := retry.DoWithLog(ctx, retry.RequestConfig(Retryable), service,
		func() error {
			req, err := newRequest(ctx)
			if err != nil {
				return retry.Permanent(fmt.Errorf("failed to build request: %w", err))
			}
			return do(client, service, req, out)
		},
		func(attempt int, err error, nextDelay time.Duration) {
			log.Warn().Ctx(ctx).Err(err).Str("service", service).Int("attempt", attempt).Dur("next_delay", nextDelay).Msg("collaborator call failed, retrying")
		},
	)
	if err == nil {
		return nil
	}

	var statusErr *StatusError
	switch {
	case errors.As(err, &statusErr) && !Retryable(statusErr):
		return apperrors.NewExternalError(fmt.Sprintf("%s rejected the request", service), err)
	case isDecodeError(err):
		return apperrors.NewExternalError(fmt.Sprintf("%s returned an unreadable response", service), err)
	default:
		return apperrors.NewNetworkFailureError(service, err)
	}
}

type decodeError struct{ err error }

func (e *decodeError) Error() string { return fmt.Sprintf("failed to decode response: %v", e.err) }
func (e *decodeError) Unwrap() error { return e.err }

func isDecodeError(err error) bool {
	var d *decodeError
	return errors.As(err, &d)
}

func do(client *http.Client, service string, req *http.Request, out interface{}) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Service: service, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return err
		}
		return retry.Permanent(&decodeError{err: err})
	}
	return nil
}
