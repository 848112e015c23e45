package model

import (
	"fmt"
	"time"

	"geografica/internal/geo"
)

// GeoJSONPolygonType is the only geometry type used by safe zones
const GeoJSONPolygonType = "Polygon"

// Coordinate is a map position
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// GeoJSONPolygon encodes a polygon as rings of [longitude, latitude] pairs.
// Only the outer ring (index 0) is used.
type GeoJSONPolygon struct {
	Type        string        `json:"type"`
	Coordinates [][][]float64 `json:"coordinates"`
}

// PolygonFromCoordinates builds a GeoJSON polygon from map coordinates,
// closing the ring when the first and last points differ.
func PolygonFromCoordinates(coords []Coordinate) GeoJSONPolygon {
	closed := make([]Coordinate, len(coords), len(coords)+1)
	copy(closed, coords)
	if len(closed) > 0 {
		first := closed[0]
		last := closed[len(closed)-1]
		if first.Lat != last.Lat || first.Lng != last.Lng {
			closed = append(closed, first)
		}
	}

	ring := make([][]float64, 0, len(closed))
	for _, c := range closed {
		ring = append(ring, []float64{c.Lng, c.Lat})
	}

	return GeoJSONPolygon{
		Type:        GeoJSONPolygonType,
		Coordinates: [][][]float64{ring},
	}
}

// Points converts the outer ring back to map coordinates
func (p GeoJSONPolygon) Points() []Coordinate {
	if len(p.Coordinates) == 0 || len(p.Coordinates[0]) == 0 {
		return []Coordinate{}
	}

	coords := make([]Coordinate, 0, len(p.Coordinates[0]))
	for _, pair := range p.Coordinates[0] {
		if len(pair) < 2 {
			continue
		}
		coords = append(coords, Coordinate{Lat: pair[1], Lng: pair[0]})
	}
	return coords
}

// Validate checks the type, the coordinate ranges, that the ring is closed
// and that it has at least three distinct vertices before the closing point.
func (p GeoJSONPolygon) Validate() error {
	if p.Type != GeoJSONPolygonType {
		return fmt.Errorf("unsupported geometry type: %s", p.Type)
	}
	if len(p.Coordinates) == 0 {
		return fmt.Errorf("polygon has no rings")
	}
	for _, pair := range p.Coordinates[0] {
		if len(pair) < 2 {
			return fmt.Errorf("invalid position in polygon")
		}
	}

	coords := p.Points()
	if len(coords) < 4 {
		return fmt.Errorf("polygon must have at least 3 points")
	}
	first, last := coords[0], coords[len(coords)-1]
	if first != last {
		return fmt.Errorf("polygon ring is not closed")
	}

	distinct := make(map[Coordinate]struct{}, len(coords))
	for _, c := range coords[:len(coords)-1] {
		if c.Lat < -90 || c.Lat > 90 {
			return fmt.Errorf("invalid latitude in polygon")
		}
		if c.Lng < -180 || c.Lng > 180 {
			return fmt.Errorf("invalid longitude in polygon")
		}
		distinct[c] = struct{}{}
	}
	if len(distinct) < 3 {
		return fmt.Errorf("polygon must have at least 3 distinct points")
	}
	return nil
}

// Contains reports whether the position lies inside the outer ring
func (p GeoJSONPolygon) Contains(lat, lng float64) bool {
	coords := p.Points()
	ring := make([]geo.Point, 0, len(coords))
	for _, c := range coords {
		ring = append(ring, geo.Point{Lat: c.Lat, Lon: c.Lng})
	}
	return geo.InRing(lat, lng, ring)
}

// ZoneOwner is the guardian summary embedded in a safe zone
type ZoneOwner struct {
	ID   int64  `json:"id"`
	Name string `json:"nombre"`
}

// ZoneChild is the child summary embedded in a safe zone
type ZoneChild struct {
	ID      int64  `json:"id"`
	Name    string `json:"nombre"`
	Surname string `json:"apellido,omitempty"`
}

// SafeZone represents a guardian-defined polygon (zona segura)
type SafeZone struct {
	ID          int64          `json:"id"`
	Name        string         `json:"nombre"`
	Description string         `json:"descripcion,omitempty"`
	Polygon     GeoJSONPolygon `json:"poligono"`
	Owner       ZoneOwner      `json:"tutor"`
	Children    []ZoneChild    `json:"hijos"`
	CreatedAt   time.Time      `json:"fechaCreacion"`
}

// HasChild reports whether the child is associated with the zone
func (z *SafeZone) HasChild(childID int64) bool {
	for _, c := range z.Children {
		if c.ID == childID {
			return true
		}
	}
	return false
}

// CreateSafeZoneRequest represents a new safe zone
type CreateSafeZoneRequest struct {
	Name        string         `json:"nombre"`
	Description string         `json:"descripcion,omitempty"`
	Polygon     GeoJSONPolygon `json:"poligono"`
	ChildIDs    []int64        `json:"hijosIds"`
}

// Validate checks the request before it is sent
func (r *CreateSafeZoneRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if err := r.Polygon.Validate(); err != nil {
		return err
	}
	if r.ChildIDs == nil {
		r.ChildIDs = []int64{}
	}
	return nil
}

// UpdateSafeZoneRequest is a partial update of a safe zone
type UpdateSafeZoneRequest struct {
	Name        *string         `json:"nombre,omitempty"`
	Description *string         `json:"descripcion,omitempty"`
	Polygon     *GeoJSONPolygon `json:"poligono,omitempty"`
	// ChildIDs replaces the assigned children when set; an empty list
	// unassigns all of them
	ChildIDs *[]int64 `json:"hijosIds,omitempty"`
}

// Validate checks the fields that are present
func (r *UpdateSafeZoneRequest) Validate() error {
	if r.Name != nil && *r.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if r.Polygon != nil {
		return r.Polygon.Validate()
	}
	return nil
}

// MessageResponse is the body of delete responses
type MessageResponse struct {
	Message string `json:"message"`
}
