// Package render turns a list of farms into what the map should draw.
package render

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"farm_mapper/internal/geo"
	"farm_mapper/internal/models"
)

// Style is the stroke and fill of one boundary layer.
type Style struct {
	Color       string  `json:"color" mapstructure:"color"`
	Weight      int     `json:"weight" mapstructure:"weight"`
	FillOpacity float64 `json:"fill_opacity" mapstructure:"fill_opacity"`
}

// Options select the two boundary styles.
type Options struct {
	Unselected Style
	Selected   Style
}

// DefaultOptions returns green boundaries with the selected farm in amber.
func DefaultOptions() Options {
	return Options{
		Unselected: Style{Color: "#16a34a", Weight: 2, FillOpacity: 0.3},
		Selected:   Style{Color: "#f59e0b", Weight: 4, FillOpacity: 0.5},
	}
}

// Layer is one farm boundary ready for the map.
type Layer struct {
	FarmID   uuid.UUID       `json:"farm_id"`
	Name     string          `json:"name"`
	Selected bool            `json:"selected"`
	Style    Style           `json:"style"`
	Geometry json.RawMessage `json:"geometry"`
}

// Plan is the full drawing instruction for one farm list.
type Plan struct {
	Layers []Layer `json:"layers"`
	// Viewport is nil when there is nothing to fit; the map keeps its current view.
	Viewport *geo.BoundingBox `json:"viewport"`
}

// Selected returns the selected layer, if any.
func (p Plan) Selected() (Layer, bool) {
	for _, l := range p.Layers {
		if l.Selected {
			return l, true
		}
	}
	return Layer{}, false
}

// Renderer builds plans. It holds no state between calls.
type Renderer struct {
	opts Options
}

func New(opts Options) *Renderer {
	return &Renderer{opts: opts}
}

// Plan styles every farm, marking at most the one whose id is selected, and
// fits the viewport to all boundaries. A selected id that matches no farm
// selects nothing.
func (r *Renderer) Plan(farms []models.Farm, selected uuid.UUID) (Plan, error) {
	plan := Plan{Layers: make([]Layer, 0, len(farms))}
	boundaries := make([]geo.GeoPolygon, 0, len(farms))

	for _, f := range farms {
		raw, err := geo.MarshalGeoJSON(f.Boundary)
		if err != nil {
			return Plan{}, fmt.Errorf("render farm %s: %w", f.ID, err)
		}
		isSelected := selected != uuid.Nil && f.ID == selected
		style := r.opts.Unselected
		if isSelected {
			style = r.opts.Selected
		}
		plan.Layers = append(plan.Layers, Layer{
			FarmID:   f.ID,
			Name:     f.Name,
			Selected: isSelected,
			Style:    style,
			Geometry: raw,
		})
		boundaries = append(boundaries, f.Boundary)
	}
	plan.Viewport = geo.BoundsOf(boundaries...)
	return plan, nil
}
