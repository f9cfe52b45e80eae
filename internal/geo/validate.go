package geo

import (
	"fmt"
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy/lineintersector"
)

// Reason explains why a drawn shape was rejected.
type Reason string

const (
	ReasonTooFewVertices   Reason = "too_few_vertices"
	ReasonSelfIntersecting Reason = "self_intersecting"
	ReasonDegenerate       Reason = "degenerate"
	ReasonNotRectangular   Reason = "not_rectangular"
)

var reasonMessages = map[Reason]string{
	ReasonTooFewVertices:   "a boundary needs at least 4 distinct points",
	ReasonSelfIntersecting: "boundary edges must not cross each other",
	ReasonDegenerate:       "boundary encloses no area",
	ReasonNotRectangular:   "a rectangle must have exactly 4 corners",
}

// InvalidGeometryError is returned when a shape fails structural validation.
// The shape must be discarded; nothing of it is kept.
type InvalidGeometryError struct {
	Reason Reason
}

func (e *InvalidGeometryError) Error() string {
	if msg, ok := reasonMessages[e.Reason]; ok {
		return "invalid geometry: " + msg
	}
	return fmt.Sprintf("invalid geometry: %s", e.Reason)
}

// Message is the human readable text shown to the user.
func (e *InvalidGeometryError) Message() string {
	if msg, ok := reasonMessages[e.Reason]; ok {
		return msg
	}
	return string(e.Reason)
}

func invalid(r Reason) error { return &InvalidGeometryError{Reason: r} }

// areaEpsilon is the smallest enclosed area, in square degrees, treated as non-zero.
const areaEpsilon = 1e-15

// Validate checks a drawn vertex sequence and returns the accepted polygon.
// Rules run in order: distinct vertex count, self intersection, enclosed area.
// The input slice is not modified.
func Validate(kind Kind, vertices []Vertex) (GeoPolygon, error) {
	if !kind.Valid() {
		kind = KindPolygon
	}
	ring := normalizeRing(vertices)

	if distinct(ring) < MinVertices {
		return GeoPolygon{}, invalid(ReasonTooFewVertices)
	}
	if kind == KindRectangle && len(ring) != MinVertices {
		return GeoPolygon{}, invalid(ReasonNotRectangular)
	}
	if selfIntersects(ring) {
		return GeoPolygon{}, invalid(ReasonSelfIntersecting)
	}

	p := GeoPolygon{Kind: kind, Vertices: ring}
	g, err := p.Geom()
	if err != nil || math.Abs(g.Area()) < areaEpsilon {
		return GeoPolygon{}, invalid(ReasonDegenerate)
	}
	return p, nil
}

// MustValidate is Validate for fixtures known to be valid.
func MustValidate(kind Kind, vertices []Vertex) GeoPolygon {
	p, err := Validate(kind, vertices)
	if err != nil {
		panic(err)
	}
	return p
}

// normalizeRing drops the explicit closing vertex and collapses consecutive duplicates.
func normalizeRing(in []Vertex) []Vertex {
	out := make([]Vertex, 0, len(in))
	for _, v := range in {
		if len(out) > 0 && out[len(out)-1] == v {
			continue
		}
		out = append(out, v)
	}
	for len(out) > 1 && out[0] == out[len(out)-1] {
		out = out[:len(out)-1]
	}
	return out
}

func distinct(vs []Vertex) int {
	seen := make(map[Vertex]struct{}, len(vs))
	for _, v := range vs {
		seen[v] = struct{}{}
	}
	return len(seen)
}

// selfIntersects reports whether any two non-adjacent edges of the closed ring
// touch or cross. Edge i runs from vertex i to vertex i+1 (wrapping).
func selfIntersects(ring []Vertex) bool {
	n := len(ring)
	coords := make([]geom.Coord, n)
	for i, v := range ring {
		coords[i] = geom.Coord{v.Lng, v.Lat}
	}
	for i := 0; i < n; i++ {
		a1, a2 := coords[i], coords[(i+1)%n]
		for j := i + 1; j < n; j++ {
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			res := lineintersector.LineIntersectsLine(lineintersector.RobustLineIntersector{}, a1, a2, coords[j], coords[(j+1)%n])
			if res.HasIntersection() {
				return true
			}
		}
	}
	return false
}
