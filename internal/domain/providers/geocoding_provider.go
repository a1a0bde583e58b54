package providers

import (
	"context"
)

// GeocodeResult is a single geocoding match
type GeocodeResult struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Label     string  `json:"label"`
}

// GeocodingProvider resolves free text (addresses, postal codes, place names) to
// coordinates. An empty result is a valid outcome, not an error.
type GeocodingProvider interface {
	Search(ctx context.Context, text string, limit int) ([]GeocodeResult, error)
}
