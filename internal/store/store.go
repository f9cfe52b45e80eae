// Package store persists farms. Every operation is scoped to the owner making it.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"farm_mapper/internal/geo"
	"farm_mapper/internal/models"
)

// FarmRecordStore is the owner-scoped persistence contract for farms.
type FarmRecordStore interface {
	Create(ctx context.Context, ownerID uuid.UUID, in FarmInput) (*models.Farm, error)
	// Update replaces the supplied fields of a farm owned by ownerID.
	// A supplied boundary replaces the stored one entirely.
	Update(ctx context.Context, farmID, ownerID uuid.UUID, patch FarmPatch) (*models.Farm, error)
	List(ctx context.Context, ownerID uuid.UUID) ([]models.Farm, error)
	Get(ctx context.Context, farmID, ownerID uuid.UUID) (*models.Farm, error)
	Delete(ctx context.Context, farmID, ownerID uuid.UUID) error
}

// FarmInput is everything needed to create a farm.
type FarmInput struct {
	Name         string
	Boundary     geo.GeoPolygon
	SizeHectares float64
	HeadCount    int
	Notes        *string
}

// FarmPatch lists the fields an update may change; nil means unchanged.
// ClearNotes sets notes to NULL.
type FarmPatch struct {
	Name         *string
	Boundary     *geo.GeoPolygon
	SizeHectares *float64
	HeadCount    *int
	Notes        *string
	ClearNotes   bool
}

// Apply writes the patch onto f.
func (p FarmPatch) Apply(f *models.Farm) {
	if p.Name != nil {
		f.Name = *p.Name
	}
	if p.Boundary != nil {
		f.Boundary = p.Boundary.Clone()
	}
	if p.SizeHectares != nil {
		f.SizeHectares = *p.SizeHectares
	}
	if p.HeadCount != nil {
		f.HeadCount = *p.HeadCount
	}
	if p.ClearNotes {
		f.Notes = nil
	} else if p.Notes != nil {
		n := *p.Notes
		f.Notes = &n
	}
}

// Kind classifies a persistence failure.
type Kind string

const (
	KindNetwork      Kind = "network"
	KindUnauthorized Kind = "unauthorized"
	KindNotFound     Kind = "not_found"
	KindServer       Kind = "server"
)

// ErrOwnershipViolation marks an attempt to touch another owner's farm. It is
// always wrapped in a not_found PersistenceError so callers cannot tell it apart
// from a missing record.
var ErrOwnershipViolation = errors.New("farm belongs to another owner")

// PersistenceError is returned by every store failure.
type PersistenceError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s farm: %s", e.Op, e.Message())
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Message is the user-facing text. It never includes the underlying cause.
func (e *PersistenceError) Message() string {
	switch e.Kind {
	case KindNotFound:
		return "farm not found"
	case KindUnauthorized:
		return "not allowed to access farms"
	case KindNetwork:
		return "farm storage is unreachable, try again"
	default:
		return "farm storage failed"
	}
}

func fail(op string, kind Kind, err error) error {
	return &PersistenceError{Op: op, Kind: kind, Err: err}
}

// IsNotFound reports whether err is a not_found PersistenceError.
func IsNotFound(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe) && pe.Kind == KindNotFound
}
