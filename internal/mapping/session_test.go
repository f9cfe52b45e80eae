package mapping_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"farm_mapper/internal/editor"
	"farm_mapper/internal/farmform"
	"farm_mapper/internal/geo"
	"farm_mapper/internal/mapping"
	"farm_mapper/internal/models"
	"farm_mapper/internal/render"
	"farm_mapper/internal/store"
)

// flakyStore wraps a real store and records create/update calls. failWith, when
// set, is returned from every write.
type flakyStore struct {
	store.FarmRecordStore
	failWith error
	creates  []store.FarmInput
	updates  []uuid.UUID
	patches  []store.FarmPatch
}

func (s *flakyStore) Create(ctx context.Context, owner uuid.UUID, in store.FarmInput) (*models.Farm, error) {
	s.creates = append(s.creates, in)
	if s.failWith != nil {
		return nil, s.failWith
	}
	return s.FarmRecordStore.Create(ctx, owner, in)
}

func (s *flakyStore) Update(ctx context.Context, farmID, owner uuid.UUID, patch store.FarmPatch) (*models.Farm, error) {
	s.updates = append(s.updates, farmID)
	s.patches = append(s.patches, patch)
	if s.failWith != nil {
		return nil, s.failWith
	}
	return s.FarmRecordStore.Update(ctx, farmID, owner, patch)
}

type change struct {
	owner, farm uuid.UUID
	op          string
}

func setup(t *testing.T) (*mapping.Registry, *flakyStore, *[]change) {
	t.Helper()
	fs := &flakyStore{FarmRecordStore: store.NewMemoryStore()}
	var changes []change
	reg := mapping.NewRegistry(mapping.Config{
		Store:    fs,
		Renderer: render.New(render.DefaultOptions()),
		Editor:   editor.DefaultOptions(),
		OnChange: func(owner, farm uuid.UUID, op string) {
			changes = append(changes, change{owner, farm, op})
		},
	})
	return reg, fs, &changes
}

var (
	cornerA = geo.Vertex{Lat: -15.80, Lng: -47.90}
	cornerB = geo.Vertex{Lat: -15.79, Lng: -47.89}
)

func testForm() farmform.Form {
	return farmform.Form{Name: "Fazenda Teste", Size: "10", HeadCount: "5"}
}

func TestSave_RectangleEndToEnd(t *testing.T) {
	reg, fs, changes := setup(t)
	owner := uuid.New()
	s := reg.Open(owner)

	if _, err := s.DrawRectangle(cornerA, cornerB); err != nil {
		t.Fatalf("draw rectangle: %v", err)
	}
	if _, err := s.SetForm(testForm()); err != nil {
		t.Fatalf("set form: %v", err)
	}
	res, err := s.Save(context.Background())
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	if len(fs.creates) != 1 || len(fs.updates) != 0 {
		t.Fatalf("expected exactly one create, got %d creates %d updates", len(fs.creates), len(fs.updates))
	}
	want := geo.RectangleFromCorners(cornerA, cornerB)
	if !fs.creates[0].Boundary.Equal(want) {
		t.Errorf("expected the drawn corners, got %+v", fs.creates[0].Boundary)
	}
	if !res.Created || res.Stale {
		t.Errorf("unexpected result %+v", res)
	}
	if len(res.Farms) != 1 || res.Farms[0].Name != "Fazenda Teste" || res.Farms[0].HeadCount != 5 {
		t.Errorf("expected reloaded list with the new farm, got %+v", res.Farms)
	}
	if sel, ok := res.Plan.Selected(); !ok || sel.FarmID != res.Farm.ID {
		t.Errorf("expected new farm to be selected in the plan")
	}

	v := s.View()
	if v.Editor.Mode != editor.ModeIdle || v.Editor.Completed != nil {
		t.Errorf("expected editor cleared after save, got %+v", v.Editor)
	}
	if v.Form.Values != (farmform.Form{}) {
		t.Errorf("expected form closed, got %+v", v.Form.Values)
	}
	if v.Selected == nil || *v.Selected != res.Farm.ID {
		t.Errorf("expected saved farm selected")
	}
	if len(*changes) != 1 || (*changes)[0].op != "create" || (*changes)[0].owner != owner {
		t.Errorf("unexpected change notifications %+v", *changes)
	}
}

func TestSave_FailureKeepsFormAndShape(t *testing.T) {
	reg, fs, changes := setup(t)
	owner := uuid.New()
	s := reg.Open(owner)
	fs.failWith = &store.PersistenceError{Kind: store.KindServer, Op: "create"}

	_, _ = s.DrawRectangle(cornerA, cornerB)
	_, _ = s.SetForm(testForm())
	_, err := s.Save(context.Background())
	var pe *store.PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("expected persistence error, got %v", err)
	}

	v := s.View()
	if v.Form.Values != testForm() {
		t.Errorf("form values lost: %+v", v.Form.Values)
	}
	if v.Form.LastError == "" || v.Form.Submitting {
		t.Errorf("unexpected form state %+v", v.Form)
	}
	if v.Editor.Completed == nil {
		t.Error("finished shape was dropped on failure")
	}
	farms, plan, err := s.Plan(context.Background())
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(farms) != 0 || len(plan.Layers) != 0 {
		t.Errorf("expected no farms rendered, got %d", len(farms))
	}
	if len(*changes) != 0 {
		t.Errorf("expected no change notifications, got %+v", *changes)
	}

	// resubmitting once the store recovers succeeds with the retained values
	fs.failWith = nil
	res, err := s.Save(context.Background())
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if res.Farm.Name != "Fazenda Teste" {
		t.Errorf("unexpected farm %+v", res.Farm)
	}
}

func TestSave_EditUpdatesAndReplacesGeometry(t *testing.T) {
	reg, fs, _ := setup(t)
	owner := uuid.New()
	s := reg.Open(owner)

	_, _ = s.DrawRectangle(cornerA, cornerB)
	_, _ = s.SetForm(testForm())
	first, err := s.Save(context.Background())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	farmID := first.Farm.ID

	v, err := s.Edit(context.Background(), farmID)
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if v.Form.Values.Name != "Fazenda Teste" || v.Form.Values.Size != "10" || v.Form.Values.HeadCount != "5" {
		t.Errorf("expected form prefilled from the farm, got %+v", v.Form.Values)
	}
	if err := s.InsertVertex(2, geo.Vertex{Lat: -15.785, Lng: -47.895}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := s.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}
	res, err := s.Save(context.Background())
	if err != nil {
		t.Fatalf("save edit: %v", err)
	}

	if len(fs.creates) != 1 {
		t.Errorf("edit must not create, got %d creates", len(fs.creates))
	}
	if len(fs.updates) != 1 || fs.updates[0] != farmID {
		t.Fatalf("expected one update of %s, got %v", farmID, fs.updates)
	}
	if res.Created || res.Farm.ID != farmID {
		t.Errorf("unexpected result %+v", res)
	}
	got := res.Farms[0].Boundary
	if len(got.Vertices) != 5 || got.Kind != geo.KindPolygon {
		t.Errorf("expected the edited five-vertex polygon to replace the rectangle, got %+v", got)
	}
	if got.Vertices[2] != (geo.Vertex{Lat: -15.785, Lng: -47.895}) {
		t.Errorf("inserted vertex missing: %+v", got.Vertices)
	}
}

func TestSave_WithoutShape(t *testing.T) {
	reg, _, _ := setup(t)
	s := reg.Open(uuid.New())
	_, _ = s.SetForm(testForm())
	if _, err := s.Save(context.Background()); !errors.Is(err, mapping.ErrNoShape) {
		t.Errorf("expected ErrNoShape, got %v", err)
	}
}

func TestSave_ValidationErrorKeepsShape(t *testing.T) {
	reg, fs, _ := setup(t)
	s := reg.Open(uuid.New())
	_, _ = s.DrawRectangle(cornerA, cornerB)
	_, _ = s.SetForm(farmform.Form{Size: "10"})

	_, err := s.Save(context.Background())
	if !farmform.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(fs.creates) != 0 {
		t.Errorf("expected no store calls")
	}
	if s.View().Editor.Completed == nil {
		t.Error("expected finished shape to survive a form error")
	}
}

func TestSession_RejectedShape(t *testing.T) {
	reg, _, _ := setup(t)
	s := reg.Open(uuid.New())
	s.StartDrawing(geo.KindPolygon)
	for _, v := range []geo.Vertex{{Lat: 0, Lng: 0}, {Lat: 1, Lng: 1}, {Lat: 1, Lng: 0}, {Lat: 0, Lng: 1}} {
		if _, err := s.AddVertex(v); err != nil {
			t.Fatalf("add vertex: %v", err)
		}
	}
	v, err := s.Finish()
	if err == nil {
		t.Fatal("expected bowtie to be rejected")
	}
	if v.Editor.Mode != editor.ModeIdle || v.Editor.LastError == "" {
		t.Errorf("unexpected editor state %+v", v.Editor)
	}
}

func TestSession_CancelDiscards(t *testing.T) {
	reg, fs, _ := setup(t)
	s := reg.Open(uuid.New())
	_, _ = s.DrawRectangle(cornerA, cornerB)
	_, _ = s.SetForm(testForm())
	v := s.Cancel()
	if v.Editor.Completed != nil || v.Form.Values != (farmform.Form{}) {
		t.Errorf("expected cancel to drop shape and form, got %+v", v)
	}
	if len(fs.creates) != 0 {
		t.Error("cancel must not persist anything")
	}
}

func TestSession_EditOtherOwnersFarm(t *testing.T) {
	reg, _, _ := setup(t)
	a := reg.Open(uuid.New())
	_, _ = a.DrawRectangle(cornerA, cornerB)
	_, _ = a.SetForm(testForm())
	res, err := a.Save(context.Background())
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	b := reg.Open(uuid.New())
	if _, err := b.Edit(context.Background(), res.Farm.ID); !store.IsNotFound(err) {
		t.Errorf("expected not_found for another owner's farm, got %v", err)
	}
}

func TestSession_EditFarmDeletedElsewhere(t *testing.T) {
	reg, fs, _ := setup(t)
	owner := uuid.New()
	s := reg.Open(owner)
	_, _ = s.DrawRectangle(cornerA, cornerB)
	_, _ = s.SetForm(testForm())
	res, err := s.Save(context.Background())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := s.Edit(context.Background(), res.Farm.ID); err != nil {
		t.Fatalf("edit: %v", err)
	}

	// removed through another client, bypassing this registry
	if err := fs.FarmRecordStore.Delete(context.Background(), res.Farm.ID, owner); err != nil {
		t.Fatalf("delete: %v", err)
	}

	v, err := s.Edit(context.Background(), res.Farm.ID)
	if !store.IsNotFound(err) {
		t.Fatalf("expected not_found, got %v", err)
	}
	if v.Selected != nil || v.Editor.FarmID != nil || v.Form.FarmID != nil {
		t.Errorf("expected the stale farm to be dropped, got %+v", v)
	}
	if v.Editor.Mode != editor.ModeIdle {
		t.Errorf("expected editor idle, got %s", v.Editor.Mode)
	}
}

func TestRegistry_OpenGetClose(t *testing.T) {
	reg, _, _ := setup(t)
	owner := uuid.New()
	if _, err := reg.Get(owner); !errors.Is(err, mapping.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	s := reg.Open(owner)
	if again := reg.Open(owner); again != s {
		t.Error("expected Open to return the existing session")
	}
	_, _ = s.DrawRectangle(cornerA, cornerB)
	if !reg.Close(owner) {
		t.Error("expected close to report an open session")
	}
	if reg.Close(owner) {
		t.Error("expected second close to be a no-op")
	}
	if fresh := reg.Open(owner); fresh.View().Editor.Completed != nil {
		t.Error("unsaved geometry survived teardown")
	}
}

func TestRegistry_FarmDeleted(t *testing.T) {
	reg, _, changes := setup(t)
	owner := uuid.New()
	s := reg.Open(owner)
	_, _ = s.DrawRectangle(cornerA, cornerB)
	_, _ = s.SetForm(testForm())
	res, _ := s.Save(context.Background())
	_, _ = s.Edit(context.Background(), res.Farm.ID)

	reg.FarmDeleted(owner, res.Farm.ID)
	v := s.View()
	if v.Selected != nil || v.Editor.FarmID != nil || v.Form.FarmID != nil {
		t.Errorf("expected deleted farm to be forgotten, got %+v", v)
	}
	last := (*changes)[len(*changes)-1]
	if last.op != "delete" || last.farm != res.Farm.ID {
		t.Errorf("expected delete notification, got %+v", last)
	}
}
