// Package mapping keeps one mapping session per owner: the boundary editor, the
// farm form and the highlighted farm, plus the save flow that ties them to the store.
package mapping

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"farm_mapper/internal/editor"
	"farm_mapper/internal/farmform"
	"farm_mapper/internal/geo"
	"farm_mapper/internal/metrics"
	"farm_mapper/internal/models"
	"farm_mapper/internal/render"
	"farm_mapper/internal/store"
)

// ErrNoShape is returned by Save when no validated boundary is waiting.
var ErrNoShape = errors.New("finish drawing a valid boundary before saving")

// View is what a client needs to redraw the editing surface.
type View struct {
	Editor   editor.Snapshot    `json:"editor"`
	Form     farmform.FormState `json:"form"`
	Selected *uuid.UUID         `json:"selected,omitempty"`
}

// SaveResult is returned by a successful save.
type SaveResult struct {
	Farm    *models.Farm  `json:"farm"`
	Created bool          `json:"created"`
	Farms   []models.Farm `json:"farms"`
	Plan    render.Plan   `json:"plan"`
	// Stale is set when the farm was saved but the list could not be re-read.
	Stale bool `json:"stale,omitempty"`
}

// Session is one owner's editing surface. All methods are safe for concurrent use.
type Session struct {
	OwnerID uuid.UUID

	deps *Registry

	mu       sync.Mutex
	editor   *editor.Editor
	form     farmform.FormState
	selected uuid.UUID
	lastUsed time.Time
}

func newSession(owner uuid.UUID, deps *Registry) *Session {
	s := &Session{
		OwnerID:  owner,
		deps:     deps,
		editor:   editor.New(deps.editorOpts),
		lastUsed: deps.now(),
	}
	// A finished shape decides whether the form creates or updates.
	s.editor.Subscribe(func(c editor.Completion) {
		s.form.FarmID = c.FarmID
	})
	return s
}

func (s *Session) touch() { s.lastUsed = s.deps.now() }

// lock also refreshes the idle timer.
func (s *Session) lock() {
	s.mu.Lock()
	s.touch()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

func (s *Session) view() View {
	v := View{Editor: s.editor.Snapshot(), Form: s.form}
	if s.selected != uuid.Nil {
		id := s.selected
		v.Selected = &id
	}
	return v
}

// View returns the current state.
func (s *Session) View() View {
	s.lock()
	defer s.mu.Unlock()
	return s.view()
}

// StartDrawing begins a new boundary, dropping any unsaved shape.
func (s *Session) StartDrawing(kind geo.Kind) View {
	s.lock()
	defer s.mu.Unlock()
	s.editor.StartDrawing(kind)
	s.form.FarmID = nil
	return s.view()
}

func (s *Session) AddVertex(v geo.Vertex) (editor.Progress, error) {
	s.lock()
	defer s.mu.Unlock()
	return s.editor.AddVertex(v)
}

// DrawRectangle draws and finishes a rectangle from two corners.
func (s *Session) DrawRectangle(a, b geo.Vertex) (View, error) {
	s.lock()
	defer s.mu.Unlock()
	s.form.FarmID = nil
	_, err := s.editor.DrawRectangle(a, b)
	recordRejection(err)
	return s.view(), err
}

// Edit loads a persisted farm into the editor and pre-fills the form with its
// attributes. The farm becomes the selected one.
func (s *Session) Edit(ctx context.Context, farmID uuid.UUID) (View, error) {
	farm, err := s.deps.store.Get(ctx, farmID, s.OwnerID)
	if store.IsNotFound(err) {
		// deleted elsewhere; drop what this session still holds of it
		s.forget(farmID)
		return s.View(), err
	}
	if err != nil {
		return View{}, err
	}
	s.lock()
	defer s.mu.Unlock()
	if s.form.Submitting {
		return s.view(), farmform.ErrSubmitInProgress
	}
	s.editor.StartEditing(farm.ID, farm.Boundary)
	s.form = farmform.FormState{Values: formFromFarm(farm), FarmID: &farm.ID}
	s.selected = farm.ID
	return s.view(), nil
}

func formFromFarm(f *models.Farm) farmform.Form {
	form := farmform.Form{
		Name:      farmform.FormValue(f.Name),
		Size:      farmform.FormValue(strconv.FormatFloat(f.SizeHectares, 'f', -1, 64)),
		HeadCount: farmform.FormValue(strconv.Itoa(f.HeadCount)),
	}
	if f.Notes != nil {
		form.Notes = farmform.FormValue(*f.Notes)
	}
	return form
}

func (s *Session) MoveVertex(i int, v geo.Vertex) error {
	s.lock()
	defer s.mu.Unlock()
	return s.editor.MoveVertex(i, v)
}

func (s *Session) InsertVertex(i int, v geo.Vertex) error {
	s.lock()
	defer s.mu.Unlock()
	return s.editor.InsertVertex(i, v)
}

func (s *Session) DeleteVertex(i int) error {
	s.lock()
	defer s.mu.Unlock()
	return s.editor.DeleteVertex(i)
}

// Finish validates the shape being drawn or edited.
func (s *Session) Finish() (View, error) {
	s.lock()
	defer s.mu.Unlock()
	_, err := s.editor.Finish()
	recordRejection(err)
	return s.view(), err
}

// Cancel drops the shape and closes the form without saving anything.
func (s *Session) Cancel() View {
	s.lock()
	defer s.mu.Unlock()
	s.editor.Cancel()
	if !s.form.Submitting {
		s.form.Reset()
	}
	return s.view()
}

// Select highlights a farm; uuid.Nil clears the selection.
func (s *Session) Select(farmID uuid.UUID) View {
	s.lock()
	defer s.mu.Unlock()
	s.selected = farmID
	return s.view()
}

// SetForm replaces the entered values.
func (s *Session) SetForm(values farmform.Form) (View, error) {
	s.lock()
	defer s.mu.Unlock()
	if s.form.Submitting {
		return s.view(), farmform.ErrSubmitInProgress
	}
	s.form.Values = values
	s.form.LastError = ""
	return s.view(), nil
}

// Save submits the finished boundary with the form. The store call runs
// without holding the session lock; a concurrent save gets
// farmform.ErrSubmitInProgress. On success the farm list is re-read and
// rendered with the saved farm selected. On failure the form and the finished
// shape stay as they were.
func (s *Session) Save(ctx context.Context) (SaveResult, error) {
	s.lock()
	done, ok := s.editor.Result()
	if !ok {
		s.mu.Unlock()
		return SaveResult{}, ErrNoShape
	}
	if s.form.Submitting {
		s.mu.Unlock()
		return SaveResult{}, farmform.ErrSubmitInProgress
	}
	s.form.FarmID = done.FarmID
	req, err := s.deps.forms.Begin(&s.form, done.Polygon)
	s.mu.Unlock()
	if err != nil {
		return SaveResult{}, err
	}

	res, err := s.deps.forms.Send(ctx, s.OwnerID, req)

	s.lock()
	s.deps.forms.End(&s.form, err)
	if err == nil {
		// a drawing started while the store call was running is left alone
		if s.editor.Mode() == editor.ModeCompleted {
			s.editor.Clear()
		}
		s.selected = res.Farm.ID
	}
	s.mu.Unlock()

	if err != nil {
		logrus.WithError(err).WithField("owner_id", s.OwnerID).Warn("mapping: save failed")
		return SaveResult{}, err
	}

	op := "update"
	if res.Created {
		op = "create"
	}
	s.deps.Notify(s.OwnerID, res.Farm.ID, op)

	out := SaveResult{Farm: res.Farm, Created: res.Created}
	farms, plan, err := s.deps.plan(ctx, s.OwnerID, res.Farm.ID)
	if err != nil {
		logrus.WithError(err).WithField("owner_id", s.OwnerID).Warn("mapping: reload after save failed")
		out.Stale = true
		return out, nil
	}
	out.Farms, out.Plan = farms, plan
	return out, nil
}

// Plan re-reads the farm list and renders it with the current selection.
func (s *Session) Plan(ctx context.Context) ([]models.Farm, render.Plan, error) {
	s.lock()
	selected := s.selected
	s.mu.Unlock()
	return s.deps.plan(ctx, s.OwnerID, selected)
}

// forget drops any reference to a farm that no longer exists.
func (s *Session) forget(farmID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == farmID {
		s.selected = uuid.Nil
	}
	if snap := s.editor.Snapshot(); snap.FarmID != nil && *snap.FarmID == farmID {
		s.editor.Cancel()
	}
	if s.form.FarmID != nil && *s.form.FarmID == farmID && !s.form.Submitting {
		s.form.Reset()
	}
}

func recordRejection(err error) {
	var ig *geo.InvalidGeometryError
	if errors.As(err, &ig) {
		metrics.GeometryRejections.WithLabelValues(string(ig.Reason)).Inc()
	}
}
