package geo

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twpayne/go-geom"
	gjson "github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkb"
)

var (
	ErrEmptyGeometry       = errors.New("geometry is empty")
	ErrUnsupportedGeometry = errors.New("geometry must be a single Polygon or MultiPolygon with one part")
	ErrPolygonHoles        = errors.New("boundary must not contain holes")
	ErrCoordinateRange     = errors.New("coordinates must be within latitude -90..90 and longitude -180..180")
	ErrTooManyVertices     = fmt.Errorf("boundary must not have more than %d vertices", MaxVertices)
)

// MaxVertices caps the ring size accepted from clients.
const MaxVertices = 10000

// kindProperty is the Feature property carrying the drawn kind.
const kindProperty = "kind"

// MarshalGeoJSON encodes the boundary as a GeoJSON Polygon geometry with a closed ring.
func MarshalGeoJSON(p GeoPolygon) (json.RawMessage, error) {
	g, err := p.Geom()
	if err != nil {
		return nil, fmt.Errorf("build polygon: %w", err)
	}
	b, err := gjson.Marshal(g)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

// MarshalFeature wraps the boundary in a GeoJSON Feature with the given id and
// properties. The drawn kind is always written to properties.kind.
func MarshalFeature(id string, p GeoPolygon, props map[string]interface{}) (json.RawMessage, error) {
	g, err := p.Geom()
	if err != nil {
		return nil, fmt.Errorf("build polygon: %w", err)
	}
	properties := make(map[string]interface{}, len(props)+1)
	for k, v := range props {
		properties[k] = v
	}
	properties[kindProperty] = string(p.Kind)

	f := &gjson.Feature{ID: id, Geometry: g, Properties: properties}
	b, err := f.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

// ParseGeoJSON decodes a boundary from a GeoJSON geometry, Feature or
// single-feature FeatureCollection. The ring is returned open and unvalidated;
// run Validate before accepting it. fallback is the kind used when the document
// does not carry one.
func ParseGeoJSON(raw []byte, fallback Kind) (GeoPolygon, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return GeoPolygon{}, ErrEmptyGeometry
	}
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return GeoPolygon{}, fmt.Errorf("decode geojson: %w", err)
	}

	switch head.Type {
	case "Feature":
		var f gjson.Feature
		if err := f.UnmarshalJSON(raw); err != nil {
			return GeoPolygon{}, fmt.Errorf("decode feature: %w", err)
		}
		return checked(fromFeature(&f, fallback))
	case "FeatureCollection":
		var fc gjson.FeatureCollection
		if err := fc.UnmarshalJSON(raw); err != nil {
			return GeoPolygon{}, fmt.Errorf("decode feature collection: %w", err)
		}
		if len(fc.Features) != 1 {
			return GeoPolygon{}, ErrUnsupportedGeometry
		}
		return checked(fromFeature(fc.Features[0], fallback))
	default:
		var g geom.T
		if err := gjson.Unmarshal(raw, &g); err != nil {
			return GeoPolygon{}, fmt.Errorf("decode geometry: %w", err)
		}
		return checked(fromGeom(g, fallback))
	}
}

// checked applies the limits for client supplied boundaries.
func checked(p GeoPolygon, err error) (GeoPolygon, error) {
	if err != nil {
		return GeoPolygon{}, err
	}
	if len(p.Vertices) > MaxVertices {
		return GeoPolygon{}, ErrTooManyVertices
	}
	for _, v := range p.Vertices {
		if !v.InRange() {
			return GeoPolygon{}, ErrCoordinateRange
		}
	}
	return p, nil
}

func fromFeature(f *gjson.Feature, fallback Kind) (GeoPolygon, error) {
	if f == nil || f.Geometry == nil {
		return GeoPolygon{}, ErrEmptyGeometry
	}
	if s, ok := f.Properties[kindProperty].(string); ok && Kind(s).Valid() {
		fallback = Kind(s)
	}
	return fromGeom(f.Geometry, fallback)
}

func fromGeom(g geom.T, kind Kind) (GeoPolygon, error) {
	if !kind.Valid() {
		kind = KindPolygon
	}
	var poly *geom.Polygon
	switch t := g.(type) {
	case *geom.Polygon:
		poly = t
	case *geom.MultiPolygon:
		if t.NumPolygons() != 1 {
			return GeoPolygon{}, ErrUnsupportedGeometry
		}
		poly = t.Polygon(0)
	default:
		return GeoPolygon{}, ErrUnsupportedGeometry
	}

	switch poly.NumLinearRings() {
	case 0:
		return GeoPolygon{}, ErrEmptyGeometry
	case 1:
	default:
		return GeoPolygon{}, ErrPolygonHoles
	}

	coords := poly.LinearRing(0).Coords()
	vertices := make([]Vertex, 0, len(coords))
	for _, c := range coords {
		vertices = append(vertices, Vertex{Lat: c.Y(), Lng: c.X()})
	}
	if n := len(vertices); n > 1 && vertices[0] == vertices[n-1] {
		vertices = vertices[:n-1]
	}
	return GeoPolygon{Kind: kind, Vertices: vertices}, nil
}

// MarshalWKB encodes the boundary for the database column.
func MarshalWKB(p GeoPolygon) ([]byte, error) {
	g, err := p.Geom()
	if err != nil {
		return nil, fmt.Errorf("build polygon: %w", err)
	}
	return wkb.Marshal(g, binary.LittleEndian)
}

// UnmarshalWKB decodes a stored boundary; kind comes from its own column.
func UnmarshalWKB(b []byte, kind Kind) (GeoPolygon, error) {
	if len(b) == 0 {
		return GeoPolygon{}, ErrEmptyGeometry
	}
	g, err := wkb.Unmarshal(b)
	if err != nil {
		return GeoPolygon{}, fmt.Errorf("decode wkb: %w", err)
	}
	return fromGeom(g, kind)
}
