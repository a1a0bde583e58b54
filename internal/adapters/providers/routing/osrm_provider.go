package routing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/zatekoja/fieldservice-locator/internal/adapters/providers/transport"
	"github.com/zatekoja/fieldservice-locator/internal/domain/entities"
	"github.com/zatekoja/fieldservice-locator/internal/domain/providers"
	apperrors "github.com/zatekoja/fieldservice-locator/pkg/errors"
)

const (
	osrmURL            = "https://router.project-osrm.org"
	osrmDefaultProfile = "driving"
	osrmService        = "osrm"
)

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry struct {
			Type        string       `json:"type"`
			Coordinates [][2]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// OSRMProvider implements RoutingProvider against an OSRM HTTP server
type OSRMProvider struct {
	baseURL    string
	profile    string
	httpClient *http.Client
}

// NewOSRMProvider creates a new OSRM routing provider
func NewOSRMProvider(baseURL, profile string, httpClient *http.Client) providers.RoutingProvider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = osrmURL
	}
	if profile == "" {
		profile = osrmDefaultProfile
	}
	if httpClient == nil {
		httpClient = transport.NewHTTPClient(0)
	}
	return &OSRMProvider{baseURL: strings.TrimSuffix(baseURL, "/"), profile: profile, httpClient: httpClient}
}

// Route returns the full-resolution path of the first route between the points
func (o *OSRMProvider) Route(ctx context.Context, origin, destination entities.Coordinates) (*entities.PathGeometry, error) {
	// OSRM route query: /route/v1/{profile}/{lon1},{lat1};{lon2},{lat2}
	reqURL := fmt.Sprintf("%s/route/v1/%s/%.6f,%.6f;%.6f,%.6f?geometries=geojson&overview=full",
		o.baseURL, o.profile, origin.Longitude, origin.Latitude, destination.Longitude, destination.Latitude)

	var out osrmResponse
	err := transport.DoJSON(ctx, o.httpClient, osrmService, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	}, &out)
	if err != nil {
		return nil, err
	}

	if out.Code != "Ok" || len(out.Routes) == 0 {
		return nil, apperrors.NewExternalError(fmt.Sprintf("osrm no route: %s %s", out.Code, out.Message), nil)
	}
	route := out.Routes[0]
	if len(route.Geometry.Coordinates) < 2 {
		return nil, apperrors.NewExternalError("osrm returned a degenerate geometry", nil)
	}

	points := make([]entities.Coordinates, 0, len(route.Geometry.Coordinates))
	for _, c := range route.Geometry.Coordinates {
		points = append(points, entities.Coordinates{Latitude: c[1], Longitude: c[0]})
	}

	return &entities.PathGeometry{
		Points:          points,
		DistanceKm:      route.Distance / 1000,
		DurationMinutes: route.Duration / 60,
	}, nil
}

// UnconfiguredProvider stands in when no routing service is configured
type UnconfiguredProvider struct{}

// NewUnconfiguredProvider creates a routing provider that always fails as unconfigured
func NewUnconfiguredProvider() providers.RoutingProvider {
	return UnconfiguredProvider{}
}

// Route always returns a SERVICE_UNCONFIGURED app error
func (UnconfiguredProvider) Route(ctx context.Context, origin, destination entities.Coordinates) (*entities.PathGeometry, error) {
	return nil, apperrors.NewServiceUnconfiguredError("routing")
}

// BreakerProvider wraps a RoutingProvider in a circuit breaker
type BreakerProvider struct {
	inner   providers.RoutingProvider
	breaker *transport.Breaker
}

// NewBreakerProvider creates a circuit-breaking routing provider
func NewBreakerProvider(inner providers.RoutingProvider, failures int, openFor time.Duration) providers.RoutingProvider {
	return &BreakerProvider{
		inner: inner,
		breaker: transport.NewBreaker("routing", failures, openFor, func(err error) bool {
			return apperrors.IsType(err, apperrors.ErrorTypeServiceUnconfigured)
		}),
	}
}

// Route delegates through the breaker
func (b *BreakerProvider) Route(ctx context.Context, origin, destination entities.Coordinates) (*entities.PathGeometry, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.inner.Route(ctx, origin, destination)
	})
	if err != nil {
		return nil, err
	}
	path, ok := result.(*entities.PathGeometry)
	if !ok {
		return nil, errors.New("routing: unexpected breaker result")
	}
	return path, nil
}
