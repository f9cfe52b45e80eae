package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"farm_mapper/internal/geo"
	"farm_mapper/internal/store"
)

var farmColumns = []string{
	"id", "owner_id", "name", "boundary", "boundary_kind",
	"size_hectares", "head_count", "notes", "created_at", "updated_at",
}

func newMockStore(t *testing.T) (*store.GormStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("gorm open: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
	return store.NewGormStore(db), mock
}

func wkb(t *testing.T, p geo.GeoPolygon) []byte {
	t.Helper()
	b, err := geo.MarshalWKB(p)
	if err != nil {
		t.Fatalf("wkb: %v", err)
	}
	return b
}

func farmRow(t *testing.T, rows *sqlmock.Rows, id, owner uuid.UUID, name string, p geo.GeoPolygon) *sqlmock.Rows {
	t.Helper()
	now := time.Now().UTC()
	return rows.AddRow(id.String(), owner.String(), name, wkb(t, p), string(p.Kind), 2.5, 7, nil, now, now)
}

func otherSquare() geo.GeoPolygon { return boundary(10, 10) }

func kindOf(t *testing.T, err error) store.Kind {
	t.Helper()
	var pe *store.PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	return pe.Kind
}

func TestGormStore_Create(t *testing.T) {
	s, mock := newMockStore(t)
	owner := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "farms"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	farm, err := s.Create(context.Background(), owner, store.FarmInput{
		Name: "North", Boundary: boundary(0, 0), SizeHectares: 2.5, HeadCount: 7,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if farm.ID == uuid.Nil || farm.OwnerID != owner {
		t.Errorf("unexpected ids: id=%s owner=%s", farm.ID, farm.OwnerID)
	}
	decoded, err := geo.UnmarshalWKB(farm.BoundaryWKB, farm.BoundaryKind)
	if err != nil {
		t.Fatalf("stored boundary does not decode: %v", err)
	}
	if len(decoded.Vertices) != len(boundary(0, 0).Vertices) {
		t.Errorf("expected %d vertices on disk, got %d", len(boundary(0, 0).Vertices), len(decoded.Vertices))
	}
}

func TestGormStore_CreateConnectionLost(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "farms"`).WillReturnError(&pq.Error{Code: "08006"})
	mock.ExpectRollback()

	_, err := s.Create(context.Background(), uuid.New(), store.FarmInput{Name: "North", Boundary: boundary(0, 0), SizeHectares: 1})
	if got := kindOf(t, err); got != store.KindNetwork {
		t.Errorf("expected %s, got %s", store.KindNetwork, got)
	}
}

func TestGormStore_UpdateReplacesBoundary(t *testing.T) {
	s, mock := newMockStore(t)
	owner, id := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "farms"`).
		WillReturnRows(farmRow(t, sqlmock.NewRows(farmColumns), id, owner, "North", boundary(0, 0)))
	mock.ExpectExec(`UPDATE "farms" SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	next := otherSquare()
	name := "Renamed"
	farm, err := s.Update(context.Background(), id, owner, store.FarmPatch{Name: &name, Boundary: &next})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if farm.Name != "Renamed" || farm.OwnerID != owner {
		t.Errorf("unexpected farm %+v", farm)
	}
	if farm.Boundary.Vertices[0] != next.Vertices[0] || len(farm.Boundary.Vertices) != len(next.Vertices) {
		t.Errorf("boundary not replaced: %v", farm.Boundary.Vertices)
	}
	if string(farm.BoundaryWKB) != string(wkb(t, next)) {
		t.Error("stored WKB does not match the new boundary")
	}
}

func TestGormStore_UpdateOtherOwnerIsNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "farms"`).
		WillReturnRows(farmRow(t, sqlmock.NewRows(farmColumns), id, uuid.New(), "North", boundary(0, 0)))
	mock.ExpectRollback()

	name := "mine now"
	_, err := s.Update(context.Background(), id, uuid.New(), store.FarmPatch{Name: &name})
	if got := kindOf(t, err); got != store.KindNotFound {
		t.Errorf("expected %s, got %s", store.KindNotFound, got)
	}
	if !errors.Is(err, store.ErrOwnershipViolation) {
		t.Errorf("expected ownership violation as the cause, got %v", err)
	}
}

func TestGormStore_List(t *testing.T) {
	s, mock := newMockStore(t)
	owner := uuid.New()

	rows := sqlmock.NewRows(farmColumns)
	farmRow(t, rows, uuid.New(), owner, "Newer", otherSquare())
	farmRow(t, rows, uuid.New(), owner, "Older", boundary(0, 0))
	mock.ExpectQuery(`SELECT \* FROM "farms" WHERE owner_id = \$1 ORDER BY created_at DESC`).
		WithArgs(owner.String()).
		WillReturnRows(rows)

	farms, err := s.List(context.Background(), owner)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(farms) != 2 || farms[0].Name != "Newer" || farms[1].Name != "Older" {
		t.Fatalf("unexpected farms %+v", farms)
	}
	if len(farms[1].Boundary.Vertices) != 4 {
		t.Errorf("boundary not decoded: %+v", farms[1].Boundary)
	}
}

func TestGormStore_ListEmpty(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM "farms"`).WillReturnRows(sqlmock.NewRows(farmColumns))

	farms, err := s.List(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if farms == nil || len(farms) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", farms)
	}
}

func TestGormStore_GetMissing(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM "farms"`).WillReturnRows(sqlmock.NewRows(farmColumns))

	_, err := s.Get(context.Background(), uuid.New(), uuid.New())
	if got := kindOf(t, err); got != store.KindNotFound {
		t.Errorf("expected %s, got %s", store.KindNotFound, got)
	}
}

func TestGormStore_Delete(t *testing.T) {
	s, mock := newMockStore(t)
	owner, id := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT "owner_id" FROM "farms"`).
		WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows([]string{"owner_id"}).AddRow(owner.String()))
	mock.ExpectExec(`DELETE FROM "farms"`).
		WithArgs(id.String(), owner.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := s.Delete(context.Background(), id, owner); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestGormStore_DeleteRejected(t *testing.T) {
	cases := []struct {
		name string
		rows func(owner uuid.UUID) *sqlmock.Rows
	}{
		{"missing", func(uuid.UUID) *sqlmock.Rows { return sqlmock.NewRows([]string{"owner_id"}) }},
		{"other owner", func(uuid.UUID) *sqlmock.Rows {
			return sqlmock.NewRows([]string{"owner_id"}).AddRow(uuid.NewString())
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			owner := uuid.New()

			mock.ExpectBegin()
			mock.ExpectQuery(`SELECT "owner_id" FROM "farms"`).WillReturnRows(tc.rows(owner))
			mock.ExpectRollback()

			err := s.Delete(context.Background(), uuid.New(), owner)
			if got := kindOf(t, err); got != store.KindNotFound {
				t.Errorf("expected %s, got %s", store.KindNotFound, got)
			}
		})
	}
}
