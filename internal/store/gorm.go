package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"farm_mapper/internal/models"
)

// GormStore implements FarmRecordStore on PostgreSQL through gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an open gorm handle.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Create(ctx context.Context, ownerID uuid.UUID, in FarmInput) (*models.Farm, error) {
	farm := models.Farm{
		OwnerID:      ownerID,
		Name:         in.Name,
		Boundary:     in.Boundary.Clone(),
		SizeHectares: in.SizeHectares,
		HeadCount:    in.HeadCount,
		Notes:        in.Notes,
	}
	if err := s.db.WithContext(ctx).Create(&farm).Error; err != nil {
		logrus.WithError(err).WithField("owner_id", ownerID).Error("store: create farm failed")
		return nil, classify("create", err)
	}
	return &farm, nil
}

func (s *GormStore) Update(ctx context.Context, farmID, ownerID uuid.UUID, patch FarmPatch) (*models.Farm, error) {
	var farm models.Farm
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&farm, "id = ?", farmID).Error; err != nil {
			return err
		}
		if farm.OwnerID != ownerID {
			logrus.WithFields(logrus.Fields{
				"farm_id":  farmID,
				"owner_id": ownerID,
			}).Warn("store: update rejected, farm belongs to another owner")
			return ErrOwnershipViolation
		}
		patch.Apply(&farm)
		return tx.Save(&farm).Error
	})
	if err != nil {
		if errors.Is(err, ErrOwnershipViolation) {
			return nil, fail("update", KindNotFound, err)
		}
		return nil, classify("update", err)
	}
	return &farm, nil
}

func (s *GormStore) List(ctx context.Context, ownerID uuid.UUID) ([]models.Farm, error) {
	var farms []models.Farm
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&farms).Error
	if err != nil {
		return nil, classify("list", err)
	}
	if farms == nil {
		farms = []models.Farm{}
	}
	return farms, nil
}

func (s *GormStore) Get(ctx context.Context, farmID, ownerID uuid.UUID) (*models.Farm, error) {
	var farm models.Farm
	err := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", farmID, ownerID).
		First(&farm).Error
	if err != nil {
		return nil, classify("get", err)
	}
	return &farm, nil
}

func (s *GormStore) Delete(ctx context.Context, farmID, ownerID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owners []uuid.UUID
		err := tx.Model(&models.Farm{}).Where("id = ?", farmID).Pluck("owner_id", &owners).Error
		if err != nil {
			return classify("delete", err)
		}
		if len(owners) == 0 {
			return fail("delete", KindNotFound, gorm.ErrRecordNotFound)
		}
		if owners[0] != ownerID {
			logrus.WithFields(logrus.Fields{
				"farm_id":  farmID,
				"owner_id": ownerID,
			}).Warn("store: delete rejected, farm belongs to another owner")
			return fail("delete", KindNotFound, ErrOwnershipViolation)
		}
		res := tx.Where("id = ? AND owner_id = ?", farmID, ownerID).Delete(&models.Farm{})
		if res.Error != nil {
			return classify("delete", res.Error)
		}
		if res.RowsAffected == 0 {
			return fail("delete", KindNotFound, nil)
		}
		return nil
	})
}

// classify maps driver and gorm errors onto persistence kinds.
func classify(op string, err error) error {
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(op, KindNotFound, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) {
		return fail(op, KindNetwork, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fail(op, KindNetwork, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		switch {
		case strings.HasPrefix(code, "08"), strings.HasPrefix(code, "57P"):
			return fail(op, KindNetwork, err)
		case strings.HasPrefix(code, "28"), code == "42501":
			return fail(op, KindUnauthorized, err)
		case code == "22P02":
			// malformed uuid or similar input that cannot match a row
			return fail(op, KindNotFound, err)
		}
	}
	return fail(op, KindServer, err)
}
