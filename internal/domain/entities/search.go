package entities

import (
	"time"

	"github.com/google/uuid"
)

// QueryKind is the classification of a raw search query
type QueryKind string

const (
	QueryKindCoordinate QueryKind = "coordinate"
	QueryKindPostalCode QueryKind = "postal_code"
	QueryKindFreeText   QueryKind = "free_text"
)

// ClassifiedQuery is the output of query classification
type ClassifiedQuery struct {
	Kind        QueryKind    `json:"kind"`
	Raw         string       `json:"raw"`
	Normalized  string       `json:"normalized"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// ReferenceSource records how a reference point was obtained
type ReferenceSource string

const (
	ReferenceSourceQuery      ReferenceSource = "query"
	ReferenceSourceDevice     ReferenceSource = "device"
	ReferenceSourceSuggestion ReferenceSource = "suggestion"
)

// ReferencePoint is the resolved location a search is centered on. It is
// immutable: a new search produces a new ReferencePoint with a new Identity.
type ReferencePoint struct {
	Identity   string          `json:"identity"`
	Latitude   float64         `json:"latitude"`
	Longitude  float64         `json:"longitude"`
	Label      string          `json:"label"`
	Source     ReferenceSource `json:"source"`
	ResolvedAt time.Time       `json:"resolved_at"`
}

// NewReferencePoint creates a reference point with a fresh identity
func NewReferencePoint(lat, lon float64, label string, source ReferenceSource) *ReferencePoint {
	return &ReferencePoint{
		Identity:   uuid.NewString(),
		Latitude:   lat,
		Longitude:  lon,
		Label:      label,
		Source:     source,
		ResolvedAt: time.Now(),
	}
}

// Coordinates returns the point as Coordinates
func (r *ReferencePoint) Coordinates() Coordinates {
	return Coordinates{Latitude: r.Latitude, Longitude: r.Longitude}
}

// Suggestion is an autocomplete entry. It carries its coordinates so that choosing
// it needs no second geocoding round trip.
type Suggestion struct {
	Description string  `json:"description"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// ReferencePoint converts the suggestion into a reference point
func (s Suggestion) ReferencePoint() *ReferencePoint {
	return NewReferencePoint(s.Latitude, s.Longitude, s.Description, ReferenceSourceSuggestion)
}

// TravelTime is a travel-time estimate attached to a candidate
type TravelTime struct {
	DurationMinutes float64 `json:"duration_minutes"`
	DistanceLabel   string  `json:"distance_label"`
	IsEstimate      bool    `json:"is_estimate"`
}

// RankedCandidate is a provider within the search radius of the reference point
type RankedCandidate struct {
	Provider   *ProviderRecord `json:"provider"`
	DistanceKm float64         `json:"distance_km"`
	TravelTime *TravelTime     `json:"travel_time,omitempty"`
}

// SearchMode tells the caller how results were produced
type SearchMode string

const (
	// SearchModeProximity means a reference point was resolved and candidates are ranked by reachability
	SearchModeProximity SearchMode = "proximity"
	// SearchModeLocal means geocoding found nothing and the roster was matched by text
	SearchModeLocal SearchMode = "local"
)

// SearchResult is the immediate answer to a search submission
type SearchResult struct {
	Mode           SearchMode        `json:"mode"`
	Query          *ClassifiedQuery  `json:"query,omitempty"`
	ReferencePoint *ReferencePoint   `json:"reference_point,omitempty"`
	Candidates     []RankedCandidate `json:"candidates"`
	LocalMatches   []*ProviderRecord `json:"local_matches,omitempty"`
	Notice         string            `json:"notice,omitempty"`
}
