package geo

import (
	"math"

	"github.com/twpayne/go-geom"
)

// BoundingBox is a lat/lng extent used to fit the map viewport.
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLat float64 `json:"max_lat"`
	MaxLng float64 `json:"max_lng"`
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() Vertex {
	return Vertex{Lat: (b.MinLat + b.MaxLat) / 2, Lng: (b.MinLng + b.MaxLng) / 2}
}

// BoundsOf returns the combined extent of all polygons, or nil when there are none.
func BoundsOf(polygons ...GeoPolygon) *BoundingBox {
	bounds := geom.NewBounds(geom.XY)
	for _, p := range polygons {
		g, err := p.Geom()
		if err != nil {
			continue
		}
		bounds.Extend(g)
	}
	if bounds.IsEmpty() {
		return nil
	}
	return &BoundingBox{
		MinLat: bounds.Min(1),
		MinLng: bounds.Min(0),
		MaxLat: bounds.Max(1),
		MaxLng: bounds.Max(0),
	}
}

// Approximate metres per degree at a latitude (WGS84 series expansion).
func metersPerDegree(latRad float64) (perLat, perLng float64) {
	perLat = 111132.92 - 559.82*math.Cos(2*latRad)
	perLng = 111412.84 * math.Cos(latRad)
	return perLat, perLng
}

// AreaHectares approximates the enclosed area by scaling the planar area in
// square degrees at the boundary's mid latitude. Good enough for farm-sized shapes;
// it is informational and never replaces the declared size.
func AreaHectares(p GeoPolygon) float64 {
	g, err := p.Geom()
	if err != nil {
		return 0
	}
	box := BoundsOf(p)
	if box == nil {
		return 0
	}
	perLat, perLng := metersPerDegree(box.Center().Lat * math.Pi / 180)
	return math.Abs(g.Area()) * perLat * perLng / 10000
}
