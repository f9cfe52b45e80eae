// Package geo holds farm boundary geometry: the polygon type drawn on the map,
// the structural validator, and the GeoJSON/WKB codecs used on the wire and on disk.
package geo

import (
	"github.com/twpayne/go-geom"
)

// Kind tags how a boundary was drawn.
type Kind string

const (
	KindPolygon   Kind = "Polygon"
	KindRectangle Kind = "Rectangle"
)

// Valid reports whether k is a known geometry kind.
func (k Kind) Valid() bool {
	return k == KindPolygon || k == KindRectangle
}

// MinVertices is the number of distinct corners a boundary needs.
const MinVertices = 4

// Vertex is a WGS84 coordinate as placed on the map.
type Vertex struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// InRange reports whether v is a valid WGS84 position. NaN is out of range.
func (v Vertex) InRange() bool {
	return v.Lat >= -90 && v.Lat <= 90 && v.Lng >= -180 && v.Lng <= 180
}

// GeoPolygon is a closed boundary ring. Vertices hold the open ring: the closing
// vertex is implied and never stored.
type GeoPolygon struct {
	Kind     Kind     `json:"kind"`
	Vertices []Vertex `json:"vertices"`
}

// Clone returns a deep copy so callers can mutate vertices freely.
func (p GeoPolygon) Clone() GeoPolygon {
	out := GeoPolygon{Kind: p.Kind}
	if p.Vertices != nil {
		out.Vertices = make([]Vertex, len(p.Vertices))
		copy(out.Vertices, p.Vertices)
	}
	return out
}

// Equal compares kind and vertex sequence exactly.
func (p GeoPolygon) Equal(o GeoPolygon) bool {
	if p.Kind != o.Kind || len(p.Vertices) != len(o.Vertices) {
		return false
	}
	for i := range p.Vertices {
		if p.Vertices[i] != o.Vertices[i] {
			return false
		}
	}
	return true
}

// ring returns the closed ring in GeoJSON axis order (lng, lat).
func (p GeoPolygon) ring() []geom.Coord {
	coords := make([]geom.Coord, 0, len(p.Vertices)+1)
	for _, v := range p.Vertices {
		coords = append(coords, geom.Coord{v.Lng, v.Lat})
	}
	if len(p.Vertices) > 0 {
		first := p.Vertices[0]
		coords = append(coords, geom.Coord{first.Lng, first.Lat})
	}
	return coords
}

// Geom converts the boundary into a go-geom polygon with a closed ring.
func (p GeoPolygon) Geom() (*geom.Polygon, error) {
	return geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{p.ring()})
}

// RectangleFromCorners builds the four corners of the axis-aligned rectangle
// spanned by two drag corners, in south-west, north-west, north-east, south-east order.
func RectangleFromCorners(a, b Vertex) GeoPolygon {
	south, north := a.Lat, b.Lat
	if south > north {
		south, north = north, south
	}
	west, east := a.Lng, b.Lng
	if west > east {
		west, east = east, west
	}
	return GeoPolygon{
		Kind: KindRectangle,
		Vertices: []Vertex{
			{Lat: south, Lng: west},
			{Lat: north, Lng: west},
			{Lat: north, Lng: east},
			{Lat: south, Lng: east},
		},
	}
}
