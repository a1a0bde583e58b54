package directions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/zatekoja/fieldservice-locator/internal/adapters/providers/transport"
	"github.com/zatekoja/fieldservice-locator/internal/domain/entities"
	"github.com/zatekoja/fieldservice-locator/internal/domain/providers"
	apperrors "github.com/zatekoja/fieldservice-locator/pkg/errors"
	"github.com/zatekoja/fieldservice-locator/pkg/geo"
)

const (
	routesAPIURL    = "https://routes.googleapis.com/directions/v2:computeRoutes"
	routesService   = "google-routes"
	routesFieldMask = "routes.duration,routes.distanceMeters"
)

type routesLatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type routesWaypoint struct {
	Location struct {
		LatLng routesLatLng `json:"latLng"`
	} `json:"location"`
}

type routesRequest struct {
	Origin            routesWaypoint `json:"origin"`
	Destination       routesWaypoint `json:"destination"`
	TravelMode        string         `json:"travelMode"`
	RoutingPreference string         `json:"routingPreference,omitempty"`
	Units             string         `json:"units"`
}

type routesResponse struct {
	Routes []struct {
		Duration       string  `json:"duration"`
		DistanceMeters float64 `json:"distanceMeters"`
	} `json:"routes"`
}

// GoogleRoutesProvider implements DirectionsProvider using the Google Routes API v2
type GoogleRoutesProvider struct {
	apiKey     string
	apiURL     string
	travelMode string
	httpClient *http.Client
}

// NewGoogleRoutesProvider creates a new Google Routes directions provider.
// travelMode is a Routes API mode such as DRIVE or TWO_WHEELER.
func NewGoogleRoutesProvider(apiKey, apiURL, travelMode string, httpClient *http.Client) providers.DirectionsProvider {
	if strings.TrimSpace(apiURL) == "" {
		apiURL = routesAPIURL
	}
	if travelMode == "" {
		travelMode = "DRIVE"
	}
	if httpClient == nil {
		httpClient = transport.NewHTTPClient(0)
	}
	return &GoogleRoutesProvider{apiKey: apiKey, apiURL: apiURL, travelMode: strings.ToUpper(travelMode), httpClient: httpClient}
}

// Estimate returns the primary route's duration and distance
func (g *GoogleRoutesProvider) Estimate(ctx context.Context, origin, destination entities.Coordinates) (*providers.DirectionsEstimate, error) {
	if g.apiKey == "" {
		return nil, providers.ErrDirectionsUnavailable
	}

	body := routesRequest{TravelMode: g.travelMode, Units: "METRIC"}
	body.Origin.Location.LatLng = routesLatLng{Latitude: origin.Latitude, Longitude: origin.Longitude}
	body.Destination.Location.LatLng = routesLatLng{Latitude: destination.Latitude, Longitude: destination.Longitude}
	if g.travelMode == "DRIVE" || g.travelMode == "TWO_WHEELER" {
		body.RoutingPreference = "TRAFFIC_AWARE"
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to marshal routes request", err)
	}

	var resp routesResponse
	err = transport.DoJSON(ctx, g.httpClient, routesService, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Goog-Api-Key", g.apiKey)
		req.Header.Set("X-Goog-FieldMask", routesFieldMask)
		return req, nil
	}, &resp)
	if err != nil {
		return nil, err
	}

	if len(resp.Routes) == 0 {
		return nil, apperrors.NewExternalError("no routes returned", nil)
	}
	route := resp.Routes[0]

	// durations come back as "123s"
	duration, err := time.ParseDuration(route.Duration)
	if err != nil {
		return nil, apperrors.NewExternalError(fmt.Sprintf("unparseable route duration %q", route.Duration), err)
	}

	km := route.DistanceMeters / 1000
	return &providers.DirectionsEstimate{
		DurationMinutes: duration.Minutes(),
		DistanceKm:      km,
		DistanceLabel:   geo.FormatDistance(km),
	}, nil
}
