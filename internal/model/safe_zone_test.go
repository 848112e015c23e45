package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolygonFromCoordinates_ClosesOpenRing(t *testing.T) {
	open := []Coordinate{
		{Lat: -33.40, Lng: -70.60},
		{Lat: -33.40, Lng: -70.55},
		{Lat: -33.45, Lng: -70.55},
	}

	poly := PolygonFromCoordinates(open)

	require.Len(t, poly.Coordinates, 1)
	ring := poly.Coordinates[0]
	require.Len(t, ring, 4)
	assert.Equal(t, ring[0], ring[len(ring)-1])
	assert.Equal(t, []float64{-70.60, -33.40}, ring[0])
	assert.Equal(t, GeoJSONPolygonType, poly.Type)
	assert.NoError(t, poly.Validate())
}

func TestPolygonFromCoordinates_KeepsClosedRing(t *testing.T) {
	closed := []Coordinate{
		{Lat: 0, Lng: 0},
		{Lat: 0, Lng: 1},
		{Lat: 1, Lng: 1},
		{Lat: 0, Lng: 0},
	}

	poly := PolygonFromCoordinates(closed)

	assert.Len(t, poly.Coordinates[0], 4)
	assert.Len(t, closed, 4)
}

func TestPolygonFromCoordinates_DoesNotMutateInput(t *testing.T) {
	open := make([]Coordinate, 3, 8)
	open[0] = Coordinate{Lat: 0, Lng: 0}
	open[1] = Coordinate{Lat: 0, Lng: 1}
	open[2] = Coordinate{Lat: 1, Lng: 1}

	PolygonFromCoordinates(open)

	assert.Len(t, open, 3)
	assert.Equal(t, Coordinate{}, open[:4][3])
}

func TestGeoJSONPolygon_CoordinatesRoundTrip(t *testing.T) {
	open := []Coordinate{{Lat: 1, Lng: 2}, {Lat: 3, Lng: 4}, {Lat: 5, Lng: 6}}

	coords := PolygonFromCoordinates(open).Points()

	assert.Equal(t, append(open, open[0]), coords)
	assert.Empty(t, GeoJSONPolygon{}.Points())
}

func TestGeoJSONPolygon_Validate(t *testing.T) {
	tests := []struct {
		name    string
		poly    GeoJSONPolygon
		wantErr string
	}{
		{
			name:    "wrong type",
			poly:    GeoJSONPolygon{Type: "Point"},
			wantErr: "unsupported geometry type",
		},
		{
			name:    "too few points",
			poly:    PolygonFromCoordinates([]Coordinate{{Lat: 0, Lng: 0}, {Lat: 1, Lng: 1}}),
			wantErr: "at least 3 points",
		},
		{
			name: "repeated vertices",
			poly: PolygonFromCoordinates([]Coordinate{
				{Lat: 0, Lng: 0}, {Lat: 1, Lng: 1}, {Lat: 1, Lng: 1},
			}),
			wantErr: "3 distinct points",
		},
		{
			name: "open ring",
			poly: GeoJSONPolygon{Type: "Polygon", Coordinates: [][][]float64{{
				{0, 0}, {1, 0}, {1, 1}, {0, 1},
			}}},
			wantErr: "not closed",
		},
		{
			name: "latitude out of range",
			poly: PolygonFromCoordinates([]Coordinate{
				{Lat: 95, Lng: 0}, {Lat: 1, Lng: 1}, {Lat: 2, Lng: 0},
			}),
			wantErr: "invalid latitude",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.poly.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGeoJSONPolygon_Contains(t *testing.T) {
	poly := PolygonFromCoordinates([]Coordinate{
		{Lat: 0, Lng: 0}, {Lat: 0, Lng: 10}, {Lat: 10, Lng: 10}, {Lat: 10, Lng: 0},
	})

	assert.True(t, poly.Contains(5, 5))
	assert.False(t, poly.Contains(5, 11))
}

func TestSafeZone_JSONShape(t *testing.T) {
	raw := `{
		"id": 4,
		"nombre": "Colegio",
		"poligono": {"type": "Polygon", "coordinates": [[[-70.6, -33.4], [-70.5, -33.4], [-70.5, -33.5], [-70.6, -33.4]]]},
		"tutor": {"id": 1, "nombre": "Ana"},
		"hijos": [{"id": 7, "nombre": "Tomas"}],
		"fechaCreacion": "2026-03-01T10:00:00Z"
	}`

	var zone SafeZone
	require.NoError(t, json.Unmarshal([]byte(raw), &zone))

	assert.Equal(t, int64(4), zone.ID)
	assert.Equal(t, "Ana", zone.Owner.Name)
	assert.True(t, zone.HasChild(7))
	assert.False(t, zone.HasChild(8))
	assert.NoError(t, zone.Polygon.Validate())
}

func TestUpdateSafeZoneRequest_ChildIDs(t *testing.T) {
	data, err := json.Marshal(UpdateSafeZoneRequest{ChildIDs: &[]int64{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"hijosIds":[]}`, string(data))

	name := "Casa"
	data, err = json.Marshal(UpdateSafeZoneRequest{Name: &name})
	require.NoError(t, err)
	assert.JSONEq(t, `{"nombre":"Casa"}`, string(data))

	var req UpdateSafeZoneRequest
	require.NoError(t, json.Unmarshal([]byte(`{"hijosIds":[]}`), &req))
	require.NotNil(t, req.ChildIDs)
	assert.Empty(t, *req.ChildIDs)
}

func TestChild_ApplyNewCode(t *testing.T) {
	child := Child{ID: 3, LinkCode: "OLD123", Linked: true}

	child.ApplyNewCode("NEW456")

	assert.Equal(t, "NEW456", child.LinkCode)
	assert.False(t, child.Linked)
}

func TestChildRef_Unmarshal(t *testing.T) {
	var msg struct {
		A ChildRef `json:"a"`
		B ChildRef `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": "12", "b": 34}`), &msg))

	assert.Equal(t, ChildRef("12"), msg.A)
	assert.Equal(t, ChildRef("34"), msg.B)
	assert.Equal(t, ChildRef("9"), RefFromID(9))
}
