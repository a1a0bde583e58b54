package geocoding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/zatekoja/fieldservice-locator/internal/adapters/providers/transport"
	"github.com/zatekoja/fieldservice-locator/internal/domain/providers"
	"golang.org/x/time/rate"
)

const (
	nominatimURL     = "https://nominatim.openstreetmap.org"
	nominatimService = "nominatim"
)

// NominatimProvider implements GeocodingProvider against an OpenStreetMap
// Nominatim server. The public instance allows one request per second and
// requires an identifying User-Agent.
type NominatimProvider struct {
	baseURL      string
	userAgent    string
	countryCodes string
	limiter      *rate.Limiter
	httpClient   *http.Client
}

// NominatimOptions configures a NominatimProvider
type NominatimOptions struct {
	BaseURL           string
	UserAgent         string
	CountryCodes      string
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// NewNominatimProvider creates a new Nominatim geocoding provider
func NewNominatimProvider(opts NominatimOptions) providers.GeocodingProvider {
	if strings.TrimSpace(opts.BaseURL) == "" {
		opts.BaseURL = nominatimURL
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 1
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = transport.NewHTTPClient(0)
	}
	return &NominatimProvider{
		baseURL:      strings.TrimSuffix(opts.BaseURL, "/"),
		userAgent:    opts.UserAgent,
		countryCodes: opts.CountryCodes,
		limiter:      rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		httpClient:   opts.HTTPClient,
	}
}

// Search resolves text to at most limit matches, best first
func (n *NominatimProvider) Search(ctx context.Context, text string, limit int) ([]providers.GeocodeResult, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return []providers.GeocodeResult{}, nil
	}
	if limit <= 0 {
		limit = 1
	}

	params := url.Values{}
	params.Set("q", trimmed)
	params.Set("format", "jsonv2")
	params.Set("limit", strconv.Itoa(limit))
	if n.countryCodes != "" {
		params.Set("countrycodes", n.countryCodes)
	}
	reqURL := fmt.Sprintf("%s/search?%s", n.baseURL, params.Encode())

	var places []nominatimPlace
	err := transport.DoJSON(ctx, n.httpClient, nominatimService, func(ctx context.Context) (*http.Request, error) {
		// every attempt, retries included, counts against the usage policy
		if err := n.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		if n.userAgent != "" {
			req.Header.Set("User-Agent", n.userAgent)
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, &places)
	if err != nil {
		return nil, err
	}

	results := make([]providers.GeocodeResult, 0, len(places))
	for _, p := range places {
		lat, errLat := strconv.ParseFloat(p.Lat, 64)
		lon, errLon := strconv.ParseFloat(p.Lon, 64)
		if errLat != nil || errLon != nil {
			continue
		}
		results = append(results, providers.GeocodeResult{Latitude: lat, Longitude: lon, Label: p.DisplayName})
	}
	return truncate(results, limit), nil
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}
