package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/zatekoja/fieldservice-locator/internal/domain/entities"
	"github.com/zatekoja/fieldservice-locator/pkg/geo"
)

// DefaultPostalCodePattern matches a Brazilian CEP with or without the dash
const DefaultPostalCodePattern = `^\d{5}-?\d{3}$`

var coordinatePattern = regexp.MustCompile(`^\s*([+-]?\d+(\.\d+)?)\s*,\s*([+-]?\d+(\.\d+)?)\s*$`)

// QueryClassifier decides whether a raw query is a coordinate pair, a postal code or free text
type QueryClassifier struct {
	postalCode *regexp.Regexp
}

// NewQueryClassifier creates a classifier. An empty pattern selects DefaultPostalCodePattern.
func NewQueryClassifier(postalCodePattern string) (*QueryClassifier, error) {
	if postalCodePattern == "" {
		postalCodePattern = DefaultPostalCodePattern
	}
	re, err := regexp.Compile(postalCodePattern)
	if err != nil {
		return nil, fmt.Errorf("invalid postal code pattern: %w", err)
	}
	return &QueryClassifier{postalCode: re}, nil
}

// Classify never fails: anything that is not a coordinate pair or a postal code is free text
func (c *QueryClassifier) Classify(query string) entities.ClassifiedQuery {
	trimmed := strings.TrimSpace(query)

	if coords, ok := parseCoordinatePair(trimmed); ok {
		return entities.ClassifiedQuery{
			Kind:        entities.QueryKindCoordinate,
			Raw:         query,
			Normalized:  fmt.Sprintf("%g,%g", coords.Latitude, coords.Longitude),
			Coordinates: coords,
		}
	}

	if c.postalCode.MatchString(trimmed) {
		return entities.ClassifiedQuery{
			Kind:       entities.QueryKindPostalCode,
			Raw:        query,
			Normalized: trimmed,
		}
	}

	return entities.ClassifiedQuery{
		Kind:       entities.QueryKindFreeText,
		Raw:        query,
		Normalized: strings.Join(strings.Fields(trimmed), " "),
	}
}

// parseCoordinatePair accepts "lat,lon" with optional signs, decimals and spaces.
// Out-of-range values are not coordinates.
func parseCoordinatePair(s string) (*entities.Coordinates, bool) {
	m := coordinatePattern.FindStringSubmatch(s)
	if m == nil {
		return nil, false
	}
	lat, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil, false
	}
	lon, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return nil, false
	}
	if !geo.ValidLatLon(lat, lon) {
		return nil, false
	}
	return &entities.Coordinates{Latitude: lat, Longitude: lon}, true
}
