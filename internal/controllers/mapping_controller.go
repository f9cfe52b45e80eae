package controllers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"farm_mapper/internal/farmform"
	"farm_mapper/internal/geo"
	"farm_mapper/internal/mapping"
	"farm_mapper/internal/middleware"
)

type vertexInput struct {
	Lat *float64 `json:"lat" binding:"required,min=-90,max=90"`
	Lng *float64 `json:"lng" binding:"required,min=-180,max=180"`
}

func (v vertexInput) vertex() geo.Vertex {
	return geo.Vertex{Lat: *v.Lat, Lng: *v.Lng}
}

type drawInput struct {
	Kind geo.Kind `json:"kind"`
}

type rectangleInput struct {
	A vertexInput `json:"a"`
	B vertexInput `json:"b"`
}

type selectionInput struct {
	FarmID *uuid.UUID `json:"farm_id"`
}

// MappingController exposes the owner's editing session.
type MappingController struct {
	sessions *mapping.Registry
}

func NewMappingController(sessions *mapping.Registry) *MappingController {
	return &MappingController{sessions: sessions}
}

func (mc *MappingController) session(c *gin.Context) (*mapping.Session, bool) {
	s, err := mc.sessions.Get(middleware.OwnerID(c))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return s, true
}

// respondView answers with the session view, attaching err when the action failed.
func respondView(c *gin.Context, view mapping.View, err error) {
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"view": view})
		return
	}
	status, body := errorBody(err)
	body["view"] = view
	c.JSON(status, body)
}

func vertexIndex(c *gin.Context) (int, bool) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "vertex index must be an integer", "code": "vertex_index"})
		return 0, false
	}
	return i, true
}

func (mc *MappingController) OpenSession(c *gin.Context) {
	s := mc.sessions.Open(middleware.OwnerID(c))
	c.JSON(http.StatusOK, gin.H{"view": s.View()})
}

func (mc *MappingController) GetSession(c *gin.Context) {
	s, ok := mc.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"view": s.View()})
}

// CloseSession tears the session down; unsaved geometry is lost.
func (mc *MappingController) CloseSession(c *gin.Context) {
	if !mc.sessions.Close(middleware.OwnerID(c)) {
		respondError(c, mapping.ErrNoSession)
		return
	}
	c.Status(http.StatusNoContent)
}

func (mc *MappingController) StartDrawing(c *gin.Context) {
	s, ok := mc.session(c)
	if !ok {
		return
	}
	// an empty body draws a polygon
	var input drawInput
	if err := c.ShouldBindJSON(&input); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}
	respondView(c, s.StartDrawing(input.Kind), nil)
}

func (mc *MappingController) AddVertex(c *gin.Context) {
	s, ok := mc.session(c)
	if !ok {
		return
	}
	var input vertexInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	progress, err := s.AddVertex(input.vertex())
	if err != nil {
		respondView(c, s.View(), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"progress": progress, "view": s.View()})
}

func (mc *MappingController) DrawRectangle(c *gin.Context) {
	s, ok := mc.session(c)
	if !ok {
		return
	}
	var input rectangleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	view, err := s.DrawRectangle(input.A.vertex(), input.B.vertex())
	respondView(c, view, err)
}

// editVertex runs one of the vertex edits against the :index parameter.
func (mc *MappingController) editVertex(c *gin.Context, needsVertex bool, edit func(*mapping.Session, int, geo.Vertex) error) {
	s, ok := mc.session(c)
	if !ok {
		return
	}
	i, ok := vertexIndex(c)
	if !ok {
		return
	}
	var v geo.Vertex
	if needsVertex {
		var input vertexInput
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, err)
			return
		}
		v = input.vertex()
	}
	err := edit(s, i, v)
	respondView(c, s.View(), err)
}

func (mc *MappingController) MoveVertex(c *gin.Context) {
	mc.editVertex(c, true, func(s *mapping.Session, i int, v geo.Vertex) error { return s.MoveVertex(i, v) })
}

func (mc *MappingController) InsertVertex(c *gin.Context) {
	mc.editVertex(c, true, func(s *mapping.Session, i int, v geo.Vertex) error { return s.InsertVertex(i, v) })
}

func (mc *MappingController) DeleteVertex(c *gin.Context) {
	mc.editVertex(c, false, func(s *mapping.Session, i int, _ geo.Vertex) error { return s.DeleteVertex(i) })
}

func (mc *MappingController) Finish(c *gin.Context) {
	s, ok := mc.session(c)
	if !ok {
		return
	}
	view, err := s.Finish()
	respondView(c, view, err)
}

func (mc *MappingController) Cancel(c *gin.Context) {
	s, ok := mc.session(c)
	if !ok {
		return
	}
	respondView(c, s.Cancel(), nil)
}

// EditFarm loads a persisted farm into the editor.
func (mc *MappingController) EditFarm(c *gin.Context) {
	s, ok := mc.session(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}
	view, err := s.Edit(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondView(c, view, nil)
}

func (mc *MappingController) Select(c *gin.Context) {
	s, ok := mc.session(c)
	if !ok {
		return
	}
	var input selectionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	id := uuid.Nil
	if input.FarmID != nil {
		id = *input.FarmID
	}
	respondView(c, s.Select(id), nil)
}

func (mc *MappingController) SetForm(c *gin.Context) {
	s, ok := mc.session(c)
	if !ok {
		return
	}
	var form farmform.Form
	if err := c.ShouldBindJSON(&form); err != nil {
		badRequest(c, err)
		return
	}
	view, err := s.SetForm(form)
	respondView(c, view, err)
}

// Save persists the finished boundary with the form and returns the reloaded list.
func (mc *MappingController) Save(c *gin.Context) {
	s, ok := mc.session(c)
	if !ok {
		return
	}
	res, err := s.Save(c.Request.Context())
	if err != nil {
		respondView(c, s.View(), err)
		return
	}

	farm, err := toFarmResponse(*res.Farm)
	if err != nil {
		respondError(c, err)
		return
	}
	body := gin.H{"farm": farm, "created": res.Created, "view": s.View()}
	if res.Stale {
		body["stale"] = true
	} else {
		farms, err := toFarmResponses(res.Farms)
		if err != nil {
			respondError(c, err)
			return
		}
		body["farms"], body["plan"] = farms, res.Plan
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	c.JSON(status, body)
}
