package store_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"farm_mapper/internal/metrics"
	"farm_mapper/internal/store"
)

func TestInstrumented_CountsOutcomes(t *testing.T) {
	s := store.Instrument(store.NewMemoryStore())
	owner := uuid.New()

	okBefore := testutil.ToFloat64(metrics.FarmMutations.WithLabelValues("create", "ok"))
	missBefore := testutil.ToFloat64(metrics.FarmMutations.WithLabelValues("delete", "not_found"))

	if _, err := s.Create(context.Background(), owner, store.FarmInput{
		Name: "Santa Maria", Boundary: boundary(0, 0), SizeHectares: 1,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = s.Delete(context.Background(), uuid.New(), owner)

	if got := testutil.ToFloat64(metrics.FarmMutations.WithLabelValues("create", "ok")); got != okBefore+1 {
		t.Errorf("expected create/ok to increase by 1, got %v -> %v", okBefore, got)
	}
	if got := testutil.ToFloat64(metrics.FarmMutations.WithLabelValues("delete", "not_found")); got != missBefore+1 {
		t.Errorf("expected delete/not_found to increase by 1, got %v -> %v", missBefore, got)
	}
}
