package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"farm_mapper/internal/farmform"
	"farm_mapper/internal/geo"
	"farm_mapper/internal/mapping"
	"farm_mapper/internal/middleware"
	"farm_mapper/internal/models"
	"farm_mapper/internal/store"
)

// FarmResponse is the API shape of a farm, with the boundary as GeoJSON.
type FarmResponse struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Geometry     json.RawMessage `json:"geometry"`
	BoundaryKind geo.Kind        `json:"boundary_kind"`
	SizeHectares float64         `json:"size_hectares"`
	// DrawnHectares is the area enclosed by the boundary, for comparison with the declared size.
	DrawnHectares float64   `json:"drawn_hectares"`
	HeadCount     int       `json:"head_count"`
	Notes         *string   `json:"notes"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toFarmResponse(f models.Farm) (FarmResponse, error) {
	raw, err := geo.MarshalGeoJSON(f.Boundary)
	if err != nil {
		return FarmResponse{}, err
	}
	return FarmResponse{
		ID:            f.ID,
		Name:          f.Name,
		Geometry:      raw,
		BoundaryKind:  f.Boundary.Kind,
		SizeHectares:  f.SizeHectares,
		DrawnHectares: geo.AreaHectares(f.Boundary),
		HeadCount:     f.HeadCount,
		Notes:         f.Notes,
		CreatedAt:     f.CreatedAt,
		UpdatedAt:     f.UpdatedAt,
	}, nil
}

func toFarmResponses(farms []models.Farm) ([]FarmResponse, error) {
	out := make([]FarmResponse, 0, len(farms))
	for _, f := range farms {
		r, err := toFarmResponse(f)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// farmRequest is a boundary plus the attribute form, as posted by the map page.
type farmRequest struct {
	Geometry json.RawMessage `json:"geometry"`
	Kind     geo.Kind        `json:"kind"`
	farmform.Form
}

// FarmController serves the owner's farm list.
type FarmController struct {
	store    store.FarmRecordStore
	sessions *mapping.Registry
}

func NewFarmController(s store.FarmRecordStore, sessions *mapping.Registry) *FarmController {
	return &FarmController{store: s, sessions: sessions}
}

// parseID reads the :id path parameter. Malformed ids are reported as not found.
func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "farm not found", "code": string(store.KindNotFound)})
		return uuid.Nil, false
	}
	return id, true
}

// selectedParam reads ?selected=; anything unparsable selects nothing.
func selectedParam(c *gin.Context) uuid.UUID {
	id, err := uuid.Parse(c.Query("selected"))
	if err != nil {
		return uuid.Nil
	}
	return id
}

func (fc *FarmController) listing(c *gin.Context, owner, selected uuid.UUID) (gin.H, bool) {
	farms, plan, err := fc.sessions.Plan(c.Request.Context(), owner, selected)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	resp, err := toFarmResponses(farms)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return gin.H{"farms": resp, "plan": plan}, true
}

// ListFarms returns every farm of the owner, newest first, with a render plan.
func (fc *FarmController) ListFarms(c *gin.Context) {
	body, ok := fc.listing(c, middleware.OwnerID(c), selectedParam(c))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, body)
}

// GetPlan returns only the render plan.
func (fc *FarmController) GetPlan(c *gin.Context) {
	_, plan, err := fc.sessions.Plan(c.Request.Context(), middleware.OwnerID(c), selectedParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plan": plan})
}

// ExportFarms returns every farm of the owner as a GeoJSON FeatureCollection,
// one Feature per farm keyed by its id.
func (fc *FarmController) ExportFarms(c *gin.Context) {
	farms, err := fc.store.List(c.Request.Context(), middleware.OwnerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	features := make([]json.RawMessage, 0, len(farms))
	for _, f := range farms {
		raw, err := geo.MarshalFeature(f.ID.String(), f.Boundary, map[string]interface{}{
			"name":          f.Name,
			"size_hectares": f.SizeHectares,
			"head_count":    f.HeadCount,
			"notes":         f.Notes,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		features = append(features, raw)
	}
	c.Header("Content-Disposition", `attachment; filename="farms.geojson"`)
	c.JSON(http.StatusOK, gin.H{"type": "FeatureCollection", "features": features})
}

func (fc *FarmController) GetFarm(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	farm, err := fc.store.Get(c.Request.Context(), id, middleware.OwnerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	resp, err := toFarmResponse(*farm)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"farm": resp})
}

func (fc *FarmController) bindFarm(c *gin.Context, required bool) (farmRequest, *geo.GeoPolygon, bool) {
	var input farmRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		logrus.WithError(err).Warn("farm: invalid input payload")
		badRequest(c, err)
		return input, nil, false
	}
	if len(input.Geometry) == 0 || string(input.Geometry) == "null" {
		if required {
			c.JSON(http.StatusBadRequest, gin.H{"error": geo.ErrEmptyGeometry.Error(), "code": "invalid_geojson"})
			return input, nil, false
		}
		return input, nil, true
	}
	kind := input.Kind
	if !kind.Valid() {
		kind = geo.KindPolygon
	}
	p, err := geo.ParseGeoJSON(input.Geometry, kind)
	if errors.Is(err, geo.ErrTooManyVertices) {
		respondError(c, err)
		return input, nil, false
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid geometry: " + err.Error(), "code": "invalid_geojson"})
		return input, nil, false
	}
	return input, &p, true
}

func (fc *FarmController) saved(c *gin.Context, status int, owner uuid.UUID, res farmform.Result, op string) {
	fc.sessions.Notify(owner, res.Farm.ID, op)
	farm, err := toFarmResponse(*res.Farm)
	if err != nil {
		respondError(c, err)
		return
	}
	body, ok := fc.listing(c, owner, res.Farm.ID)
	if !ok {
		return
	}
	body["farm"] = farm
	c.JSON(status, body)
}

// CreateFarm validates and stores a new farm from a GeoJSON boundary and the form.
func (fc *FarmController) CreateFarm(c *gin.Context) {
	input, boundary, ok := fc.bindFarm(c, true)
	if !ok {
		return
	}
	owner := middleware.OwnerID(c)
	state := &farmform.FormState{Values: input.Form}
	res, err := fc.sessions.Forms().Submit(c.Request.Context(), owner, state, *boundary)
	if err != nil {
		respondError(c, err)
		return
	}
	fc.saved(c, http.StatusCreated, owner, res, "create")
}

// UpdateFarm replaces a farm's attributes and, when a geometry is sent, its boundary.
func (fc *FarmController) UpdateFarm(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	input, boundary, ok := fc.bindFarm(c, false)
	if !ok {
		return
	}
	owner := middleware.OwnerID(c)
	if boundary == nil {
		current, err := fc.store.Get(c.Request.Context(), id, owner)
		if err != nil {
			respondError(c, err)
			return
		}
		boundary = &current.Boundary
	}
	state := &farmform.FormState{Values: input.Form, FarmID: &id}
	res, err := fc.sessions.Forms().Submit(c.Request.Context(), owner, state, *boundary)
	if err != nil {
		respondError(c, err)
		return
	}
	fc.saved(c, http.StatusOK, owner, res, "update")
}

// DeleteFarm removes a farm and returns the remaining list.
func (fc *FarmController) DeleteFarm(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	owner := middleware.OwnerID(c)
	if err := fc.store.Delete(c.Request.Context(), id, owner); err != nil {
		respondError(c, err)
		return
	}
	fc.sessions.FarmDeleted(owner, id)

	body, ok := fc.listing(c, owner, uuid.Nil)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, body)
}
