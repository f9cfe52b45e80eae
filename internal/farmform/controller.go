package farmform

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"farm_mapper/internal/geo"
	"farm_mapper/internal/models"
	"farm_mapper/internal/store"
)

// ErrSubmitInProgress rejects a second submission while one is in flight.
var ErrSubmitInProgress = errors.New("a save is already in progress")

// Request is a locally validated submission ready for the store.
type Request struct {
	FarmID     *uuid.UUID
	Attributes Attributes
	Geometry   geo.GeoPolygon
}

// Result of a successful submission. Reload tells the caller to re-read the
// farm list rather than patching its local copy.
type Result struct {
	Farm    *models.Farm
	Created bool
	Reload  bool
}

// Controller binds a finished boundary to the form and persists it.
type Controller struct {
	store store.FarmRecordStore
}

func NewController(s store.FarmRecordStore) *Controller {
	return &Controller{store: s}
}

// Begin validates the form and the geometry without touching the store and
// marks the state as submitting. A non-nil error leaves the state unchanged
// apart from LastError.
func (c *Controller) Begin(state *FormState, geometry geo.GeoPolygon) (Request, error) {
	if state.Submitting {
		return Request{}, ErrSubmitInProgress
	}
	attrs, err := Validate(state.Values)
	if err != nil {
		state.LastError = ErrorMessage(err)
		return Request{}, err
	}
	p, err := geo.Validate(geometry.Kind, geometry.Vertices)
	if err != nil {
		state.LastError = ErrorMessage(err)
		return Request{}, err
	}
	state.Submitting = true
	state.LastError = ""

	req := Request{Attributes: attrs, Geometry: p}
	if state.FarmID != nil {
		id := *state.FarmID
		req.FarmID = &id
	}
	return req, nil
}

// Send performs the create or update. It does not touch any form state and is
// safe to call without holding the caller's lock.
func (c *Controller) Send(ctx context.Context, ownerID uuid.UUID, req Request) (Result, error) {
	a := req.Attributes
	if req.FarmID == nil {
		farm, err := c.store.Create(ctx, ownerID, store.FarmInput{
			Name:         a.Name,
			Boundary:     req.Geometry,
			SizeHectares: a.SizeHectares,
			HeadCount:    a.HeadCount,
			Notes:        a.Notes,
		})
		if err != nil {
			return Result{}, err
		}
		return Result{Farm: farm, Created: true, Reload: true}, nil
	}

	boundary := req.Geometry
	patch := store.FarmPatch{
		Name:         &a.Name,
		Boundary:     &boundary,
		SizeHectares: &a.SizeHectares,
		HeadCount:    &a.HeadCount,
		Notes:        a.Notes,
		ClearNotes:   a.Notes == nil,
	}
	farm, err := c.store.Update(ctx, *req.FarmID, ownerID, patch)
	if err != nil {
		return Result{}, err
	}
	return Result{Farm: farm, Reload: true}, nil
}

// End records the outcome on the form. A failure keeps every entered value;
// success closes the form.
func (c *Controller) End(state *FormState, err error) {
	state.Submitting = false
	if err != nil {
		state.LastError = ErrorMessage(err)
		return
	}
	state.Reset()
}

// Submit runs Begin, Send and End in one call.
func (c *Controller) Submit(ctx context.Context, ownerID uuid.UUID, state *FormState, geometry geo.GeoPolygon) (Result, error) {
	req, err := c.Begin(state, geometry)
	if err != nil {
		return Result{}, err
	}
	res, err := c.Send(ctx, ownerID, req)
	if err != nil {
		logrus.WithError(err).WithField("owner_id", ownerID).Warn("farmform: submit failed")
	}
	c.End(state, err)
	return res, err
}

// ErrorMessage returns the user-facing text for any error the save flow produces.
func ErrorMessage(err error) string {
	var (
		ve *ValidationError
		ig *geo.InvalidGeometryError
		pe *store.PersistenceError
	)
	switch {
	case errors.As(err, &ve):
		return ve.Message()
	case errors.As(err, &ig):
		return ig.Message()
	case errors.As(err, &pe):
		return pe.Message()
	case err != nil:
		return err.Error()
	}
	return ""
}
