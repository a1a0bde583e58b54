package entities

import "math"

// OverlayState is the route overlay controller state
type OverlayState string

const (
	OverlayStateIdle         OverlayState = "idle"
	OverlayStateRouting      OverlayState = "routing"
	OverlayStateRouted       OverlayState = "routed"
	OverlayStateFallbackLine OverlayState = "fallback_line"
)

// PathGeometry is an ordered polyline of coordinates
type PathGeometry struct {
	Points          []Coordinates `json:"points"`
	DistanceKm      float64       `json:"distance_km"`
	DurationMinutes float64       `json:"duration_minutes"`
}

// Bounds is an axis-aligned lat/lon bounding box
type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// BoundsOf returns the bounding box of the given points
func BoundsOf(points []Coordinates) Bounds {
	if len(points) == 0 {
		return Bounds{}
	}
	b := Bounds{South: math.Inf(1), West: math.Inf(1), North: math.Inf(-1), East: math.Inf(-1)}
	for _, p := range points {
		b.South = math.Min(b.South, p.Latitude)
		b.North = math.Max(b.North, p.Latitude)
		b.West = math.Min(b.West, p.Longitude)
		b.East = math.Max(b.East, p.Longitude)
	}
	return b
}

// RouteOverlay is the single route rendered between the reference point and a candidate
type RouteOverlay struct {
	ID              string          `json:"id"`
	ReferencePoint  *ReferencePoint `json:"reference_point"`
	Candidate       RankedCandidate `json:"candidate"`
	Path            *PathGeometry   `json:"path,omitempty"`
	IsFallback      bool            `json:"is_fallback"`
	DistanceKm      float64         `json:"distance_km"`
	DurationMinutes float64         `json:"duration_minutes"`
	Bounds          Bounds          `json:"bounds"`
}

// Points returns the rendered polyline. A fallback overlay is a straight segment.
func (o *RouteOverlay) Points() []Coordinates {
	if o.Path != nil && len(o.Path.Points) > 0 {
		return o.Path.Points
	}
	return []Coordinates{o.ReferencePoint.Coordinates(), *o.Candidate.Provider.Coordinates}
}

// SurfaceControlKind identifies an auxiliary control on the rendering surface
type SurfaceControlKind string

const (
	SurfaceControlClearRoute SurfaceControlKind = "clear_route"
	SurfaceControlInfoPanel  SurfaceControlKind = "info_panel"
)

// SurfaceLayer is a path drawn on the rendering surface
type SurfaceLayer struct {
	ID         string        `json:"id"`
	OverlayID  string        `json:"overlay_id"`
	Points     []Coordinates `json:"points"`
	IsFallback bool          `json:"is_fallback"`
	Bounds     Bounds        `json:"bounds"`
}

// SurfaceControl is a control attached to the rendering surface
type SurfaceControl struct {
	ID        string             `json:"id"`
	OverlayID string             `json:"overlay_id"`
	Kind      SurfaceControlKind `json:"kind"`
	Text      string             `json:"text,omitempty"`
}

// SurfaceFrame is what the rendering surface draws apart from the overlay:
// the reference pin and candidate markers.
type SurfaceFrame struct {
	ReferencePoint *ReferencePoint   `json:"reference_point,omitempty"`
	Candidates     []RankedCandidate `json:"candidates"`
	ActiveOverlay  *RouteOverlay     `json:"active_overlay,omitempty"`
}
