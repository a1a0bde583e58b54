package directions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/zatekoja/fieldservice-locator/internal/adapters/providers/transport"
	"github.com/zatekoja/fieldservice-locator/internal/domain/entities"
	"github.com/zatekoja/fieldservice-locator/internal/domain/providers"
	apperrors "github.com/zatekoja/fieldservice-locator/pkg/errors"
	"github.com/zatekoja/fieldservice-locator/pkg/geo"
)

const (
	orsURL            = "https://api.openrouteservice.org"
	orsDefaultProfile = "driving-car"
	orsService        = "openrouteservice"
)

type matrixRequest struct {
	Locations    [][]float64 `json:"locations"`
	Sources      []int       `json:"sources"`
	Destinations []int       `json:"destinations"`
	Metrics      []string    `json:"metrics"`
}

type matrixResponse struct {
	Distances [][]*float64 `json:"distances"`
	Durations [][]*float64 `json:"durations"`
}

// ORSProvider implements DirectionsProvider with a single-row OpenRouteService matrix call
type ORSProvider struct {
	apiKey     string
	baseURL    string
	profile    string
	httpClient *http.Client
}

// NewORSProvider creates a new OpenRouteService directions provider
func NewORSProvider(apiKey, baseURL, profile string, httpClient *http.Client) providers.DirectionsProvider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = orsURL
	}
	if profile == "" {
		profile = orsDefaultProfile
	}
	if httpClient == nil {
		httpClient = transport.NewHTTPClient(0)
	}
	return &ORSProvider{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		profile:    profile,
		httpClient: httpClient,
	}
}

// Estimate returns the travel duration and distance from origin to destination
func (o *ORSProvider) Estimate(ctx context.Context, origin, destination entities.Coordinates) (*providers.DirectionsEstimate, error) {
	if o.apiKey == "" {
		return nil, providers.ErrDirectionsUnavailable
	}

	// ORS takes [lon, lat]
	payload, err := json.Marshal(matrixRequest{
		Locations:    [][]float64{{origin.Longitude, origin.Latitude}, {destination.Longitude, destination.Latitude}},
		Sources:      []int{0},
		Destinations: []int{1},
		Metrics:      []string{"distance", "duration"},
	})
	if err != nil {
		return nil, apperrors.NewInternalError("failed to marshal matrix request", err)
	}

	endpoint := fmt.Sprintf("%s/v2/matrix/%s", o.baseURL, o.profile)
	var mr matrixResponse
	err = transport.DoJSON(ctx, o.httpClient, orsService, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", o.apiKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, &mr)
	if err != nil {
		return nil, err
	}

	if len(mr.Distances) != 1 || len(mr.Durations) != 1 || len(mr.Distances[0]) != 1 || len(mr.Durations[0]) != 1 {
		return nil, apperrors.NewExternalError(fmt.Sprintf("expected a 1x1 matrix, got distances=%d durations=%d", len(mr.Distances), len(mr.Durations)), nil)
	}
	meters, seconds := mr.Distances[0][0], mr.Durations[0][0]
	if meters == nil || seconds == nil {
		return nil, apperrors.NewExternalError("no route between the points", nil)
	}

	km := *meters / 1000
	return &providers.DirectionsEstimate{
		DurationMinutes: *seconds / 60,
		DistanceKm:      km,
		DistanceLabel:   geo.FormatDistance(km),
	}, nil
}
