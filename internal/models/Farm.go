package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"farm_mapper/internal/geo"
)

// Farm is one owned property with its drawn boundary.
// The boundary is kept on disk as WKB; Boundary is the decoded form.
type Farm struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID      uuid.UUID `gorm:"type:uuid;index:idx_farms_owner_created,priority:1;not null" json:"owner_id"`
	Name         string    `gorm:"not null" json:"name"`
	BoundaryWKB  []byte    `gorm:"column:boundary;type:bytea;not null" json:"-"`
	BoundaryKind geo.Kind  `gorm:"size:16;not null;default:Polygon" json:"boundary_kind"`
	SizeHectares float64   `gorm:"not null" json:"size_hectares"`
	HeadCount    int       `gorm:"not null;default:0" json:"head_count"`
	Notes        *string   `json:"notes"`
	CreatedAt    time.Time `gorm:"index:idx_farms_owner_created,priority:2,sort:desc" json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Boundary geo.GeoPolygon `gorm:"-" json:"-"`
}

// BeforeCreate assigns the primary key when the caller did not.
func (f *Farm) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// BeforeSave encodes the boundary into its column.
func (f *Farm) BeforeSave(tx *gorm.DB) error {
	b, err := geo.MarshalWKB(f.Boundary)
	if err != nil {
		return err
	}
	f.BoundaryWKB = b
	f.BoundaryKind = f.Boundary.Kind
	return nil
}

// AfterFind decodes the stored boundary.
func (f *Farm) AfterFind(tx *gorm.DB) error {
	p, err := geo.UnmarshalWKB(f.BoundaryWKB, f.BoundaryKind)
	if err != nil {
		return err
	}
	f.Boundary = p
	return nil
}

// Clone returns a copy that shares no mutable state with f.
func (f Farm) Clone() Farm {
	out := f
	out.Boundary = f.Boundary.Clone()
	if f.BoundaryWKB != nil {
		out.BoundaryWKB = append([]byte(nil), f.BoundaryWKB...)
	}
	if f.Notes != nil {
		n := *f.Notes
		out.Notes = &n
	}
	return out
}
