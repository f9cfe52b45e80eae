// Package editor drives the drawing and editing of a single farm boundary.
//
// An Editor is not safe for concurrent use; callers serialise access to it.
package editor

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"farm_mapper/internal/geo"
)

// Mode is the editor state.
type Mode string

const (
	ModeIdle              Mode = "idle"
	ModeDrawing           Mode = "drawing"
	ModeEditing           Mode = "editing"
	ModePendingValidation Mode = "pending_validation"
	ModeCompleted         Mode = "completed"
)

var (
	ErrNotDrawing     = errors.New("no shape is being drawn")
	ErrNotEditing     = errors.New("no boundary is being edited")
	ErrNothingToCheck = errors.New("no shape to finish")
	ErrVertexIndex    = errors.New("vertex index out of range")
)

// Style is a stroke/fill configuration for the drawing tools.
type Style struct {
	Color       string  `json:"color" mapstructure:"color"`
	FillColor   string  `json:"fill_color" mapstructure:"fill_color"`
	FillOpacity float64 `json:"fill_opacity" mapstructure:"fill_opacity"`
	Weight      int     `json:"weight" mapstructure:"weight"`
}

// Options configure an editor at construction.
type Options struct {
	// ShapeStyle is handed to the client for the shape under construction.
	ShapeStyle Style
	// Validate defaults to geo.Validate.
	Validate func(kind geo.Kind, vertices []geo.Vertex) (geo.GeoPolygon, error)
}

// DefaultOptions matches the green drawing style of the mapping page.
func DefaultOptions() Options {
	return Options{
		ShapeStyle: Style{Color: "#16a34a", FillColor: "#16a34a", FillOpacity: 0.3, Weight: 3},
	}
}

// Completion is a validated shape waiting to be saved.
type Completion struct {
	Polygon geo.GeoPolygon
	// FarmID is set when the shape came from editing a persisted farm.
	FarmID *uuid.UUID
}

// Progress is the live drawing tooltip.
type Progress struct {
	Placed    int    `json:"placed"`
	Required  int    `json:"required"`
	Remaining int    `json:"remaining"`
	CanFinish bool   `json:"can_finish"`
	Message   string `json:"message"`
}

// Snapshot is a read-only view of the editor for clients.
type Snapshot struct {
	Mode      Mode            `json:"mode"`
	Kind      geo.Kind        `json:"kind,omitempty"`
	Vertices  []geo.Vertex    `json:"vertices"`
	FarmID    *uuid.UUID      `json:"farm_id,omitempty"`
	Progress  *Progress       `json:"progress,omitempty"`
	Completed *geo.GeoPolygon `json:"completed,omitempty"`
	LastError string          `json:"last_error,omitempty"`
	Style     Style           `json:"style"`
}

// Editor is the state machine for one boundary at a time.
type Editor struct {
	opts Options

	mode     Mode
	kind     geo.Kind
	vertices []geo.Vertex
	farmID   *uuid.UUID
	result   *Completion
	lastErr  error

	subscribers []func(Completion)
}

// New returns an idle editor.
func New(opts Options) *Editor {
	if opts.Validate == nil {
		opts.Validate = geo.Validate
	}
	return &Editor{opts: opts, mode: ModeIdle}
}

// Subscribe registers fn to receive every validated shape.
func (e *Editor) Subscribe(fn func(Completion)) {
	e.subscribers = append(e.subscribers, fn)
}

// Mode returns the current state.
func (e *Editor) Mode() Mode { return e.mode }

// LastError is the reason the previous shape was rejected, if any.
func (e *Editor) LastError() error { return e.lastErr }

// reset discards any in-progress or completed shape.
func (e *Editor) reset() {
	e.mode = ModeIdle
	e.kind = ""
	e.vertices = nil
	e.farmID = nil
	e.result = nil
}

// StartDrawing begins a new shape, cancelling whatever was pending.
func (e *Editor) StartDrawing(kind geo.Kind) {
	if !kind.Valid() {
		kind = geo.KindPolygon
	}
	e.reset()
	e.lastErr = nil
	e.mode = ModeDrawing
	e.kind = kind
}

// AddVertex places the next vertex of the shape being drawn.
func (e *Editor) AddVertex(v geo.Vertex) (Progress, error) {
	if e.mode != ModeDrawing {
		return Progress{}, ErrNotDrawing
	}
	if len(e.vertices) >= geo.MaxVertices {
		return e.progress(), geo.ErrTooManyVertices
	}
	e.vertices = append(e.vertices, v)
	return e.progress(), nil
}

// DrawRectangle completes a rectangle from its two drag corners in one step.
func (e *Editor) DrawRectangle(a, b geo.Vertex) (geo.GeoPolygon, error) {
	e.StartDrawing(geo.KindRectangle)
	e.vertices = geo.RectangleFromCorners(a, b).Vertices
	return e.Finish()
}

// StartEditing loads a persisted boundary as mutable vertices.
func (e *Editor) StartEditing(farmID uuid.UUID, boundary geo.GeoPolygon) {
	e.reset()
	e.lastErr = nil
	id := farmID
	cp := boundary.Clone()
	e.mode = ModeEditing
	e.kind = cp.Kind
	e.vertices = cp.Vertices
	e.farmID = &id
}

// MoveVertex drags vertex i to v. Any vertex change turns a rectangle into a
// general polygon.
func (e *Editor) MoveVertex(i int, v geo.Vertex) error {
	if e.mode != ModeEditing {
		return ErrNotEditing
	}
	if i < 0 || i >= len(e.vertices) {
		return ErrVertexIndex
	}
	e.vertices[i] = v
	e.kind = geo.KindPolygon
	return nil
}

// InsertVertex adds v before position i; i == len appends.
func (e *Editor) InsertVertex(i int, v geo.Vertex) error {
	if e.mode != ModeEditing {
		return ErrNotEditing
	}
	if i < 0 || i > len(e.vertices) {
		return ErrVertexIndex
	}
	if len(e.vertices) >= geo.MaxVertices {
		return geo.ErrTooManyVertices
	}
	e.vertices = append(e.vertices, geo.Vertex{})
	copy(e.vertices[i+1:], e.vertices[i:])
	e.vertices[i] = v
	e.kind = geo.KindPolygon
	return nil
}

// DeleteVertex removes vertex i.
func (e *Editor) DeleteVertex(i int) error {
	if e.mode != ModeEditing {
		return ErrNotEditing
	}
	if i < 0 || i >= len(e.vertices) {
		return ErrVertexIndex
	}
	e.vertices = append(e.vertices[:i], e.vertices[i+1:]...)
	e.kind = geo.KindPolygon
	return nil
}

// Finish closes the current shape and validates it. On success the shape is
// kept as the completed result and sent to subscribers. On failure the shape is
// dropped and the editor goes back to idle.
func (e *Editor) Finish() (geo.GeoPolygon, error) {
	if e.mode != ModeDrawing && e.mode != ModeEditing {
		return geo.GeoPolygon{}, ErrNothingToCheck
	}
	farmID := e.farmID
	kind, vertices := e.kind, e.vertices
	e.mode = ModePendingValidation

	p, err := e.opts.Validate(kind, vertices)
	if err != nil {
		e.reset()
		e.lastErr = err
		return geo.GeoPolygon{}, err
	}

	done := Completion{Polygon: p, FarmID: farmID}
	e.reset()
	e.lastErr = nil
	e.mode = ModeCompleted
	e.result = &done
	for _, fn := range e.subscribers {
		fn(Completion{Polygon: p.Clone(), FarmID: farmID})
	}
	return p.Clone(), nil
}

// Result returns the completed shape awaiting save.
func (e *Editor) Result() (Completion, bool) {
	if e.result == nil {
		return Completion{}, false
	}
	return Completion{Polygon: e.result.Polygon.Clone(), FarmID: e.result.FarmID}, true
}

// Cancel discards any in-progress or completed shape without side effects.
func (e *Editor) Cancel() {
	e.reset()
	e.lastErr = nil
}

// Clear is called once a completed shape has been saved.
func (e *Editor) Clear() {
	e.reset()
}

func (e *Editor) progress() Progress {
	placed := len(e.vertices)
	remaining := geo.MinVertices - placed
	if remaining < 0 {
		remaining = 0
	}
	p := Progress{
		Placed:    placed,
		Required:  geo.MinVertices,
		Remaining: remaining,
		CanFinish: remaining == 0,
	}
	switch {
	case placed == 0:
		p.Message = "Click to start drawing the boundary"
	case remaining > 0:
		p.Message = fmt.Sprintf("Place %d more point(s) to close the boundary", remaining)
	default:
		p.Message = "Double-click or click the first point to finish"
	}
	return p
}

// Snapshot describes the editor for rendering.
func (e *Editor) Snapshot() Snapshot {
	s := Snapshot{
		Mode:     e.mode,
		Kind:     e.kind,
		Vertices: append([]geo.Vertex{}, e.vertices...),
		FarmID:   e.farmID,
		Style:    e.opts.ShapeStyle,
	}
	if e.mode == ModeDrawing {
		p := e.progress()
		s.Progress = &p
	}
	if e.result != nil {
		c := e.result.Polygon.Clone()
		s.Completed = &c
		s.Kind = c.Kind
		s.FarmID = e.result.FarmID
	}
	if e.lastErr != nil {
		var ig *geo.InvalidGeometryError
		if errors.As(e.lastErr, &ig) {
			s.LastError = ig.Message()
		} else {
			s.LastError = e.lastErr.Error()
		}
	}
	return s
}
