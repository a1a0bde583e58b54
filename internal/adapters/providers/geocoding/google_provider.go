package geocoding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/zatekoja/fieldservice-locator/internal/adapters/providers/transport"
	"github.com/zatekoja/fieldservice-locator/internal/domain/providers"
	apperrors "github.com/zatekoja/fieldservice-locator/pkg/errors"
)

const (
	googleGeocodeURL    = "https://maps.googleapis.com/maps/api/geocode/json"
	googlePlacesTextURL = "https://maps.googleapis.com/maps/api/place/textsearch/json"
	googleService       = "google-geocoding"
)

// GoogleProvider implements GeocodingProvider using the Google Places text search
// and Geocoding APIs. Places is tried first because it understands business and
// landmark names; Geocoding covers plain addresses and postal codes.
type GoogleProvider struct {
	apiKey     string
	region     string
	httpClient *http.Client
	baseURL    string
	placesURL  string
}

// NewGoogleProvider creates a new Google geocoding provider
func NewGoogleProvider(apiKey, region string) providers.GeocodingProvider {
	return NewGoogleProviderWithOptions(apiKey, region, googleGeocodeURL, nil)
}

// NewGoogleProviderWithOptions allows overriding base URL and HTTP client (used for tests).
// A non-default base URL ending in /geocode derives the places URL next to it.
func NewGoogleProviderWithOptions(apiKey, region, baseURL string, httpClient *http.Client) providers.GeocodingProvider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = googleGeocodeURL
	}
	if httpClient == nil {
		httpClient = transport.NewHTTPClient(0)
	}
	placesURL := googlePlacesTextURL
	if baseURL != googleGeocodeURL {
		if strings.HasSuffix(baseURL, "/geocode") {
			placesURL = strings.TrimSuffix(baseURL, "/geocode") + "/place/textsearch"
		} else {
			placesURL = ""
		}
	}
	return &GoogleProvider{
		apiKey:     apiKey,
		region:     region,
		httpClient: httpClient,
		baseURL:    baseURL,
		placesURL:  placesURL,
	}
}

// Search resolves text to at most limit matches, best first
func (g *GoogleProvider) Search(ctx context.Context, text string, limit int) ([]providers.GeocodeResult, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return []providers.GeocodeResult{}, nil
	}
	if g.apiKey == "" {
		return nil, apperrors.NewServiceUnconfiguredError(googleService)
	}
	if limit <= 0 {
		limit = 1
	}

	if g.placesURL != "" {
		results, err := g.placesTextSearch(ctx, trimmed)
		if err != nil {
			return nil, err
		}
		if len(results) > 0 {
			return truncate(results, limit), nil
		}
	}

	results, err := g.geocode(ctx, trimmed)
	if err != nil {
		return nil, err
	}
	return truncate(results, limit), nil
}

func (g *GoogleProvider) geocode(ctx context.Context, address string) ([]providers.GeocodeResult, error) {
	params := url.Values{"address": []string{address}}
	if g.region != "" {
		params.Set("region", g.region)
	}

	var payload googleGeocodeResponse
	if err := g.get(ctx, g.baseURL, params, &payload); err != nil {
		return nil, err
	}
	if err := checkStatus(payload.Status, payload.ErrorMessage); err != nil {
		return nil, err
	}

	results := make([]providers.GeocodeResult, 0, len(payload.Results))
	for _, r := range payload.Results {
		results = append(results, providers.GeocodeResult{
			Latitude:  r.Geometry.Location.Lat,
			Longitude: r.Geometry.Location.Lng,
			Label:     r.FormattedAddress,
		})
	}
	return results, nil
}

func (g *GoogleProvider) placesTextSearch(ctx context.Context, query string) ([]providers.GeocodeResult, error) {
	params := url.Values{"query": []string{query}}
	if g.region != "" {
		params.Set("region", g.region)
	}

	var payload googlePlacesTextSearchResponse
	if err := g.get(ctx, g.placesURL, params, &payload); err != nil {
		return nil, err
	}
	if err := checkStatus(payload.Status, payload.ErrorMessage); err != nil {
		return nil, err
	}

	results := make([]providers.GeocodeResult, 0, len(payload.Results))
	for _, r := range payload.Results {
		label := r.FormattedAddress
		if r.Name != "" && !strings.HasPrefix(label, r.Name) {
			label = r.Name + ", " + label
		}
		results = append(results, providers.GeocodeResult{
			Latitude:  r.Geometry.Location.Lat,
			Longitude: r.Geometry.Location.Lng,
			Label:     label,
		})
	}
	return results, nil
}

func (g *GoogleProvider) get(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	params.Set("key", g.apiKey)
	reqURL := fmt.Sprintf("%s?%s", endpoint, params.Encode())
	return transport.DoJSON(ctx, g.httpClient, googleService, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	}, out)
}

// checkStatus maps the Google status field; ZERO_RESULTS is a valid empty answer
func checkStatus(status, message string) error {
	switch status {
	case "OK", "ZERO_RESULTS":
		return nil
	case "UNKNOWN_ERROR":
		return apperrors.NewNetworkFailureError(googleService, fmt.Errorf("status %s", status))
	}
	if message != "" {
		return apperrors.NewExternalError(fmt.Sprintf("geocode request failed: %s - %s", status, message), nil)
	}
	return apperrors.NewExternalError(fmt.Sprintf("geocode request failed: %s", status), nil)
}

func truncate(results []providers.GeocodeResult, limit int) []providers.GeocodeResult {
	if len(results) > limit {
		return results[:limit]
	}
	return results
}

type googleGeocodeResponse struct {
	Status       string                `json:"status"`
	ErrorMessage string                `json:"error_message,omitempty"`
	Results      []googleGeocodeResult `json:"results"`
}

type googleGeocodeResult struct {
	FormattedAddress string         `json:"formatted_address"`
	Geometry         googleGeometry `json:"geometry"`
}

type googleGeometry struct {
	Location googleLocation `json:"location"`
}

type googleLocation struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type googlePlacesTextSearchResponse struct {
	Status       string                         `json:"status"`
	ErrorMessage string                         `json:"error_message,omitempty"`
	Results      []googlePlacesTextSearchResult `json:"results"`
}

type googlePlacesTextSearchResult struct {
	FormattedAddress string         `json:"formatted_address"`
	Name             string         `json:"name"`
	Geometry         googleGeometry `json:"geometry"`
}
