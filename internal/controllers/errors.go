package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"farm_mapper/internal/editor"
	"farm_mapper/internal/farmform"
	"farm_mapper/internal/geo"
	"farm_mapper/internal/mapping"
	"farm_mapper/internal/store"
)

var persistenceStatus = map[store.Kind]int{
	store.KindNotFound:     http.StatusNotFound,
	store.KindUnauthorized: http.StatusForbidden,
	store.KindNetwork:      http.StatusServiceUnavailable,
	store.KindServer:       http.StatusInternalServerError,
}

// errorBody maps a domain error onto a status code and {"error","code"} body.
func errorBody(err error) (int, gin.H) {
	var (
		ig *geo.InvalidGeometryError
		ve *farmform.ValidationError
		pe *store.PersistenceError
	)
	switch {
	case errors.As(err, &ig):
		return http.StatusUnprocessableEntity, gin.H{"error": ig.Message(), "code": "invalid_geometry", "reason": ig.Reason}
	case errors.As(err, &ve):
		return http.StatusBadRequest, gin.H{"error": ve.Message(), "code": string(ve.Kind), "field": ve.Field}
	case errors.As(err, &pe):
		status, ok := persistenceStatus[pe.Kind]
		if !ok {
			status = http.StatusInternalServerError
		}
		return status, gin.H{"error": pe.Message(), "code": string(pe.Kind)}
	case errors.Is(err, farmform.ErrSubmitInProgress):
		return http.StatusConflict, gin.H{"error": err.Error(), "code": "submit_in_progress"}
	case errors.Is(err, mapping.ErrNoSession):
		return http.StatusNotFound, gin.H{"error": err.Error(), "code": "no_session"}
	case errors.Is(err, mapping.ErrNoShape),
		errors.Is(err, editor.ErrNotDrawing),
		errors.Is(err, editor.ErrNotEditing),
		errors.Is(err, editor.ErrNothingToCheck):
		return http.StatusConflict, gin.H{"error": err.Error(), "code": "invalid_state"}
	case errors.Is(err, editor.ErrVertexIndex):
		return http.StatusBadRequest, gin.H{"error": err.Error(), "code": "vertex_index"}
	case errors.Is(err, geo.ErrTooManyVertices):
		return http.StatusBadRequest, gin.H{"error": err.Error(), "code": "too_many_vertices"}
	case errors.Is(err, geo.ErrEmptyGeometry),
		errors.Is(err, geo.ErrUnsupportedGeometry),
		errors.Is(err, geo.ErrPolygonHoles),
		errors.Is(err, geo.ErrCoordinateRange):
		return http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_geojson"}
	}
	return http.StatusInternalServerError, gin.H{"error": "Something went wrong", "code": string(store.KindServer)}
}

// respondError writes the mapped error. Server-side failures are logged.
func respondError(c *gin.Context, err error) {
	status, body := errorBody(err)
	if status >= http.StatusInternalServerError {
		logrus.WithError(err).WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("request failed")
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body is too large", "code": "body_too_large"})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error(), "code": "bad_request"})
}
