package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"farm_mapper/internal/models"
)

// MemoryStore keeps farms in process. Used for development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	farms map[uuid.UUID]models.Farm
	seq   map[uuid.UUID]uint64
	next  uint64
	now   func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		farms: make(map[uuid.UUID]models.Farm),
		seq:   make(map[uuid.UUID]uint64),
		now:   time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, ownerID uuid.UUID, in FarmInput) (*models.Farm, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail("create", KindNetwork, err)
	}
	now := s.now().UTC()
	f := models.Farm{
		ID:           uuid.New(),
		OwnerID:      ownerID,
		Name:         in.Name,
		Boundary:     in.Boundary.Clone(),
		BoundaryKind: in.Boundary.Kind,
		SizeHectares: in.SizeHectares,
		HeadCount:    in.HeadCount,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if in.Notes != nil {
		n := *in.Notes
		f.Notes = &n
	}

	s.mu.Lock()
	s.next++
	s.farms[f.ID] = f
	s.seq[f.ID] = s.next
	s.mu.Unlock()

	out := f.Clone()
	return &out, nil
}

func (s *MemoryStore) Update(ctx context.Context, farmID, ownerID uuid.UUID, patch FarmPatch) (*models.Farm, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail("update", KindNetwork, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.farms[farmID]
	if !ok {
		return nil, fail("update", KindNotFound, nil)
	}
	if f.OwnerID != ownerID {
		return nil, fail("update", KindNotFound, ErrOwnershipViolation)
	}
	f = f.Clone()
	patch.Apply(&f)
	f.BoundaryKind = f.Boundary.Kind
	f.UpdatedAt = s.now().UTC()
	s.farms[farmID] = f

	out := f.Clone()
	return &out, nil
}

func (s *MemoryStore) List(ctx context.Context, ownerID uuid.UUID) ([]models.Farm, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail("list", KindNetwork, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Farm, 0)
	for _, f := range s.farms {
		if f.OwnerID == ownerID {
			out = append(out, f.Clone())
		}
	}
	// newest first, like the database listing
	sort.Slice(out, func(i, j int) bool {
		return s.seq[out[i].ID] > s.seq[out[j].ID]
	})
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, farmID, ownerID uuid.UUID) (*models.Farm, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail("get", KindNetwork, err)
	}
	s.mu.RLock()
	f, ok := s.farms[farmID]
	s.mu.RUnlock()
	if !ok || f.OwnerID != ownerID {
		return nil, fail("get", KindNotFound, nil)
	}
	out := f.Clone()
	return &out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, farmID, ownerID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return fail("delete", KindNetwork, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.farms[farmID]
	if !ok {
		return fail("delete", KindNotFound, nil)
	}
	if f.OwnerID != ownerID {
		return fail("delete", KindNotFound, ErrOwnershipViolation)
	}
	delete(s.farms, farmID)
	delete(s.seq, farmID)
	return nil
}
