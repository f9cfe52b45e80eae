package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"farm_mapper/internal/metrics"
	"farm_mapper/internal/models"
)

// Instrumented counts every store call by operation and outcome.
type Instrumented struct {
	next FarmRecordStore
}

func Instrument(next FarmRecordStore) *Instrumented {
	return &Instrumented{next: next}
}

func observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = string(KindServer)
		var pe *PersistenceError
		if errors.As(err, &pe) {
			result = string(pe.Kind)
		}
	}
	metrics.FarmMutations.WithLabelValues(op, result).Inc()
}

func (s *Instrumented) Create(ctx context.Context, ownerID uuid.UUID, in FarmInput) (*models.Farm, error) {
	f, err := s.next.Create(ctx, ownerID, in)
	observe("create", err)
	return f, err
}

func (s *Instrumented) Update(ctx context.Context, farmID, ownerID uuid.UUID, patch FarmPatch) (*models.Farm, error) {
	f, err := s.next.Update(ctx, farmID, ownerID, patch)
	observe("update", err)
	return f, err
}

func (s *Instrumented) List(ctx context.Context, ownerID uuid.UUID) ([]models.Farm, error) {
	farms, err := s.next.List(ctx, ownerID)
	observe("list", err)
	return farms, err
}

func (s *Instrumented) Get(ctx context.Context, farmID, ownerID uuid.UUID) (*models.Farm, error) {
	f, err := s.next.Get(ctx, farmID, ownerID)
	observe("get", err)
	return f, err
}

func (s *Instrumented) Delete(ctx context.Context, farmID, ownerID uuid.UUID) error {
	err := s.next.Delete(ctx, farmID, ownerID)
	observe("delete", err)
	return err
}
