package entities

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zatekoja/fieldservice-locator/pkg/geo"
)

// Coordinates represents geographical coordinates
type Coordinates struct {
	Latitude  float64 `json:"latitude" db:"latitude"`
	Longitude float64 `json:"longitude" db:"longitude"`
}

// Valid reports whether the coordinates are inside WGS84 ranges. (0,0) is valid.
func (c Coordinates) Valid() bool {
	return geo.ValidLatLon(c.Latitude, c.Longitude)
}

// DistanceKm returns the great-circle distance to other
func (c Coordinates) DistanceKm(other Coordinates) float64 {
	return geo.HaversineKm(c.Latitude, c.Longitude, other.Latitude, other.Longitude)
}

// ProviderRecord represents a field-service provider as supplied by the roster.
// Records are read-only inside the locator.
type ProviderRecord struct {
	ID           string       `json:"id" db:"id"`
	Name         string       `json:"name" db:"name"`
	Coordinates  *Coordinates `json:"coordinates,omitempty" db:"-"`
	Phone        string       `json:"phone,omitempty" db:"phone"`
	Neighborhood string       `json:"neighborhood,omitempty" db:"neighborhood"`
	City         string       `json:"city,omitempty" db:"city"`
	State        string       `json:"state,omitempty" db:"state"`
	Regions      []string     `json:"regions" db:"regions"`
	Roles        []Role       `json:"roles" db:"-"`
	AntennaModel string       `json:"antenna_model,omitempty" db:"antenna_model"`
}

// HasLocation reports whether the provider can take part in proximity ranking
func (p *ProviderRecord) HasLocation() bool {
	return p != nil && p.Coordinates != nil && p.Coordinates.Valid()
}

// SearchableFields returns the text fields matched by the local substring fallback
func (p *ProviderRecord) SearchableFields() []string {
	fields := []string{p.Name, p.Neighborhood, p.City, p.State}
	fields = append(fields, p.Regions...)
	for _, r := range p.Roles {
		fields = append(fields, r.Name)
		if r.Code != "" {
			fields = append(fields, r.Code)
		}
	}
	return fields
}

// RoleKind records which shape a role arrived in
type RoleKind string

const (
	RoleKindTag        RoleKind = "tag"
	RoleKindStructured RoleKind = "structured"
)

// Role is the normalized representation of a provider role. Roster sources send
// roles either as bare strings ("installer") or as objects
// ({"name": "Installer", "code": "INS"} or {"label": "Installer"}).
type Role struct {
	Kind RoleKind `json:"kind"`
	Name string   `json:"name"`
	Code string   `json:"code,omitempty"`
}

type roleObject struct {
	Kind  RoleKind `json:"kind"`
	Name  string   `json:"name"`
	Label string   `json:"label"`
	Title string   `json:"title"`
	Code  string   `json:"code"`
	ID    string   `json:"id"`
}

// UnmarshalJSON accepts a string or an object
func (r *Role) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = Role{}
		return nil
	}

	if data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*r = Role{Kind: RoleKindTag, Name: strings.TrimSpace(name)}
		return nil
	}

	var obj roleObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("role must be a string or an object: %w", err)
	}

	name := firstNonEmpty(obj.Name, obj.Label, obj.Title, obj.Code)
	if name == "" {
		return fmt.Errorf("role object has no name, label, title or code")
	}
	code := firstNonEmpty(obj.Code, obj.ID)
	kind := obj.Kind
	if kind == "" {
		kind = RoleKindStructured
	}
	*r = Role{Kind: kind, Name: strings.TrimSpace(name), Code: strings.TrimSpace(code)}
	return nil
}

// NormalizeRoles drops empty roles and duplicate names (case-insensitive), keeping order
func NormalizeRoles(roles []Role) []Role {
	seen := make(map[string]struct{}, len(roles))
	out := make([]Role, 0, len(roles))
	for _, r := range roles {
		key := strings.ToLower(r.Name)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

// DecodeRoles parses a JSON array of mixed-shape roles
func DecodeRoles(raw []byte) ([]Role, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var roles []Role
	if err := json.Unmarshal(raw, &roles); err != nil {
		return nil, err
	}
	return NormalizeRoles(roles), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
